package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/project"
)

type projectRepository struct {
	db *projectTable
}

var _ project.Repository = (*projectRepository)(nil)

func NewProjectRepository(db *DB) project.Repository {
	return &projectRepository{db: db.project}
}

// clone copies the project so callers never share slices with the table.
func clone(prj project.Project) project.Project {
	cl := prj
	if prj.Data.Sequences != nil {
		cl.Data.Sequences = make([]project.Sequence, 0, len(prj.Data.Sequences))
		for _, seq := range prj.Data.Sequences {
			cl.Data.Sequences = append(cl.Data.Sequences, seq.Clone())
		}
	}
	return cl
}

func (repo *projectRepository) CreateProject(_ context.Context, prj project.Project) (project.Project, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pk++
	prj.ID = repo.db.pk
	stored := clone(prj)
	repo.db.table[prj.ID] = &stored
	return clone(stored), nil
}

func (repo *projectRepository) GetProjectByID(_ context.Context, id int) (project.Project, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if prj, ok := repo.db.table[id]; ok && !repo.db.delete[id] {
		return clone(*prj), nil
	}
	return project.Project{}, project.ErrNotFound
}

func (repo *projectRepository) FilterProjects(_ context.Context, filter project.QueryFilter, ordering ...core.DBOrdering) ([]project.Project, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	projects := make([]project.Project, 0)
	for id, prj := range repo.db.table {
		if repo.db.delete[id] {
			continue
		}
		if filter.UserID != 0 && prj.UserID != filter.UserID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(prj.Name), search) {
			continue
		}
		projects = append(projects, clone(*prj))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "id", Ascending: true}}
	}
	sort.SliceStable(projects, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(projects[i], projects[j], ord.Field)
			if c == 0 {
				continue
			}
			return (c < 0) == ord.Ascending
		}
		return false
	})
	return projects, nil
}

func compare(a, b project.Project, field string) int {
	switch field {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "create_date":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "update_date":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.ID - b.ID
	}
}

func (repo *projectRepository) UpdateProject(_ context.Context, prj project.Project) (project.Project, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[prj.ID]
	if !ok || repo.db.delete[prj.ID] {
		return project.Project{}, project.ErrNotFound
	}
	stored := clone(prj)
	stored.UserID = orig.UserID
	stored.OwnerEmail = orig.OwnerEmail
	stored.CreatedAt = orig.CreatedAt
	repo.db.table[prj.ID] = &stored
	return clone(stored), nil
}

func (repo *projectRepository) DeleteProjectsByID(_ context.Context, userID int, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		if prj, ok := repo.db.table[id]; ok && prj.UserID == userID {
			repo.db.delete[id] = true
		}
	}
	return nil
}
