package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/project"
)

const projectTable = "projects"

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	projectColumns = []string{
		"id", "user_id", "user_email", "name", "language", "data",
		"collaboration_code", "collaboration_code_expires_at", "video_job_id",
		"create_date", "update_date",
	}

	// orderable columns, by ordering field
	projectOrderings = map[string]string{
		"id":          "id",
		"name":        "LOWER(name)",
		"create_date": "create_date",
		"update_date": "update_date",
	}
)

type projectRow struct {
	ID                         int            `db:"id"`
	UserID                     int            `db:"user_id"`
	UserEmail                  string         `db:"user_email"`
	Name                       string         `db:"name"`
	Language                   string         `db:"language"`
	Data                       types.JSONText `db:"data"`
	CollaborationCode          null.String    `db:"collaboration_code"`
	CollaborationCodeExpiresAt null.Time      `db:"collaboration_code_expires_at"`
	VideoJobID                 null.String    `db:"video_job_id"`
	CreatedAt                  time.Time      `db:"create_date"`
	UpdatedAt                  time.Time      `db:"update_date"`
}

type projectRepository struct {
	exec sqlx.ExtContext
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(exec sqlx.ExtContext) project.Repository {
	return &projectRepository{exec: exec}
}

func (repo projectRepository) toRow(prj project.Project) (projectRow, error) {
	data, err := json.Marshal(prj.Data)
	if err != nil {
		return projectRow{}, errors.Wrap(err, "encoding project data")
	}
	return projectRow{
		ID:                         prj.ID,
		UserID:                     prj.UserID,
		UserEmail:                  prj.OwnerEmail,
		Name:                       prj.Name,
		Language:                   prj.Language,
		Data:                       data,
		CollaborationCode:          null.NewString(prj.CollaborationCode, prj.CollaborationCode != ""),
		CollaborationCodeExpiresAt: prj.CollaborationCodeExpiresAt,
		VideoJobID:                 null.NewString(prj.VideoJobID, prj.VideoJobID != ""),
		CreatedAt:                  prj.CreatedAt.UTC(),
		UpdatedAt:                  prj.UpdatedAt.UTC(),
	}, nil
}

func (repo projectRepository) fromRow(row projectRow) (project.Project, error) {
	prj := project.Project{
		ID:                         row.ID,
		UserID:                     row.UserID,
		OwnerEmail:                 row.UserEmail,
		Name:                       row.Name,
		Language:                   row.Language,
		CollaborationCode:          row.CollaborationCode.String,
		CollaborationCodeExpiresAt: row.CollaborationCodeExpiresAt,
		VideoJobID:                 row.VideoJobID.String,
		CreatedAt:                  row.CreatedAt,
		UpdatedAt:                  row.UpdatedAt,
	}
	if len(row.Data) > 0 {
		if err := row.Data.Unmarshal(&prj.Data); err != nil {
			return project.Project{}, errors.Wrapf(err, "decoding data of project %d", row.ID)
		}
	}
	return prj, nil
}

// trapNoRowsErr maps "no rows" err to project.ErrNotFound
func (repo projectRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return project.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo projectRepository) queryRow(ctx context.Context, b sq.Sqlizer, msg string) (project.Project, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return project.Project{}, errors.Wrap(err, msg)
	}
	var row projectRow
	if err = repo.exec.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		return project.Project{}, repo.trapNoRowsErr(err, msg)
	}
	return repo.fromRow(row)
}

func (repo projectRepository) CreateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	row, err := repo.toRow(prj)
	if err != nil {
		return project.Project{}, err
	}
	b := psql.Insert(projectTable).
		SetMap(sq.Eq{
			"user_id":                       row.UserID,
			"user_email":                    row.UserEmail,
			"name":                          row.Name,
			"language":                      row.Language,
			"data":                          row.Data,
			"collaboration_code":            row.CollaborationCode,
			"collaboration_code_expires_at": row.CollaborationCodeExpiresAt,
			"video_job_id":                  row.VideoJobID,
			"create_date":                   row.CreatedAt,
			"update_date":                   row.UpdatedAt,
		}).
		Suffix("RETURNING " + strings.Join(projectColumns, ", "))
	return repo.queryRow(ctx, b, "inserting project")
}

func (repo projectRepository) GetProjectByID(ctx context.Context, id int) (project.Project, error) {
	b := psql.Select(projectColumns...).
		From(projectTable).
		Where(sq.Eq{"id": id, "delete_date": nil})
	return repo.queryRow(ctx, b, "getting project")
}

func (repo projectRepository) FilterProjects(ctx context.Context, filter project.QueryFilter, ordering ...core.DBOrdering) ([]project.Project, error) {
	b := psql.Select(projectColumns...).
		From(projectTable).
		Where(sq.Eq{"delete_date": nil})
	if filter.UserID != 0 {
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Search != "" {
		b = b.Where(sq.ILike{"name": "%" + filter.Search + "%"})
	}

	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := projectOrderings[ord.Field]; ok {
			orderBy = append(orderBy, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "id ASC")
	}
	b = b.OrderBy(orderBy...)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "filtering projects")
	}
	var rows []projectRow
	if err = sqlx.SelectContext(ctx, repo.exec, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering projects")
	}
	projects := make([]project.Project, 0, len(rows))
	for _, row := range rows {
		prj, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		projects = append(projects, prj)
	}
	return projects, nil
}

func (repo projectRepository) UpdateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	row, err := repo.toRow(prj)
	if err != nil {
		return project.Project{}, err
	}
	b := psql.Update(projectTable).
		SetMap(sq.Eq{
			"name":                          row.Name,
			"language":                      row.Language,
			"data":                          row.Data,
			"collaboration_code":            row.CollaborationCode,
			"collaboration_code_expires_at": row.CollaborationCodeExpiresAt,
			"video_job_id":                  row.VideoJobID,
			"update_date":                   row.UpdatedAt,
		}).
		Where(sq.Eq{"id": row.ID, "delete_date": nil}).
		Suffix("RETURNING " + strings.Join(projectColumns, ", "))
	return repo.queryRow(ctx, b, "updating project")
}

func (repo projectRepository) DeleteProjectsByID(ctx context.Context, userID int, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := psql.Update(projectTable).
		Set("delete_date", sq.Expr("NOW()")).
		Where(sq.Eq{"id": ids, "user_id": userID, "delete_date": nil}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "deleting projects")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting projects")
	}
	return nil
}
