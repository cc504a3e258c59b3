package project

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/collab"
)

var (
	// errors
	ErrNotFound         = errors.New("project not found")
	ErrSequenceNotFound = errors.New("sequence not found")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrForbidden        = errors.New("you are not allowed to perform this action")
	ErrNoCollaboration  = errors.New("collaboration is not started on this project")
	ErrInvalidCode      = errors.New("invalid collaboration code")

	errCodeAttempts = errors.New("could not reserve a collaboration code")
)

const (
	defaultLanguage = "fr"
	maxCodeAttempts = 10
	lockStripes     = 64
)

type (
	Repository interface {
		CreateProject(ctx context.Context, prj Project) (Project, error)
		GetProjectByID(ctx context.Context, id int) (Project, error)
		// FilterProjects applies AND operation on available QueryFilter fields.
		FilterProjects(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Project, error)
		// UpdateProject saves every column of prj, including its data document.
		UpdateProject(ctx context.Context, prj Project) (Project, error)
		// DeleteProjectsByID soft-deletes the projects of the user.
		DeleteProjectsByID(ctx context.Context, userID int, ids ...int) error
	}

	// Notifier pushes a message to the clients of a collaboration room.
	Notifier interface {
		Broadcast(room, msg string)
	}

	Service struct {
		repo     Repository
		codes    collab.CodeStore
		notifier Notifier
		mailSvc  core.EmailService
		conf     *core.Config
		nowFunc  func() time.Time

		// serializes read-modify-write cycles on the data document of a project
		locks [lockStripes]sync.Mutex
	}
)

func NewService(repo Repository, codes collab.CodeStore, notifier Notifier, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		codes:    codes,
		notifier: notifier,
		mailSvc:  mailSvc,
		conf:     conf,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

func (svc *Service) lock(id int) func() {
	mu := &svc.locks[uint(id)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (svc *Service) notify(prj Project, msg string) {
	if svc.notifier != nil {
		svc.notifier.Broadcast(collab.RoomName(prj.ID), msg)
	}
}

// edit loads the project, applies fn and saves the result.
func (svc *Service) edit(ctx context.Context, id int, fn func(prj *Project) error) (Project, error) {
	defer svc.lock(id)()

	prj, err := svc.repo.GetProjectByID(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if err = fn(&prj); err != nil {
		return Project{}, err
	}
	prj.UpdatedAt = svc.nowFunc()
	if prj, err = svc.repo.UpdateProject(ctx, prj); err != nil {
		return Project{}, err
	}
	svc.notify(prj, collab.MsgUpdateProject)
	return prj, nil
}

// editSequence is like edit for a single sequence the actor is allowed to modify.
func (svc *Service) editSequence(ctx context.Context, id, seqID int, actor Actor, fn func(prj *Project, seq *Sequence) error) (Project, error) {
	return svc.edit(ctx, id, func(prj *Project) error {
		if !actor.CanEdit(*prj, seqID) {
			return ErrForbidden
		}
		idx := prj.SequenceIndex(seqID)
		if idx < 0 {
			return ErrSequenceNotFound
		}
		return fn(prj, &prj.Data.Sequences[idx])
	})
}

func (svc *Service) Create(ctx context.Context, owner Actor, np NewProject) (Project, error) {
	now := svc.nowFunc()
	lang := core.CleanString(np.Language, true /* lower */)
	if lang == "" {
		lang = defaultLanguage
	}
	prj := Project{
		UserID:     owner.UserID,
		OwnerEmail: owner.Email,
		Name:       core.CleanString(np.Name),
		Language:   lang,
		Data: Data{
			ThemeID:      np.ThemeID,
			ThemeName:    np.ThemeName,
			ScenarioID:   np.ScenarioID,
			ScenarioName: np.ScenarioName,
			Sequences:    make([]Sequence, 0, len(np.Sequences)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, seq := range np.Sequences {
		seq.ID = nextSequenceID(prj.Data.Sequences)
		prj.Data.Sequences = append(prj.Data.Sequences, normalizeSequence(seq))
	}
	return svc.repo.CreateProject(ctx, prj)
}

func (svc *Service) Get(ctx context.Context, id int) (Project, error) {
	return svc.repo.GetProjectByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Project, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.FilterProjects(ctx, filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, id int, up UpdateProject) (Project, error) {
	return svc.edit(ctx, id, func(prj *Project) error {
		if up.Name != nil {
			prj.Name = core.CleanString(*up.Name)
		}
		if up.Language != nil {
			prj.Language = core.CleanString(*up.Language, true /* lower */)
		}
		if up.SoundURL != nil {
			prj.Data.SoundURL = *up.SoundURL
		}
		if up.SoundVolume != nil {
			prj.Data.SoundVolume = *up.SoundVolume
		}
		if up.SoundBeginTime != nil {
			prj.Data.SoundBeginTime = *up.SoundBeginTime
		}
		return nil
	})
}

// Delete soft-deletes the projects of the owner and ends their collaborations.
func (svc *Service) Delete(ctx context.Context, owner Actor, ids ...int) error {
	for _, id := range ids {
		prj, err := svc.repo.GetProjectByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return err
		}
		if prj.UserID == owner.UserID && prj.CollaborationCode != "" {
			if err = svc.codes.Release(ctx, prj.CollaborationCode); err != nil {
				return err
			}
			svc.notify(prj, collab.MsgEndCollaboration)
		}
	}
	return svc.repo.DeleteProjectsByID(ctx, owner.UserID, ids...)
}

// SetVideoJob records the montage job of the project.
func (svc *Service) SetVideoJob(ctx context.Context, id int, jobID string) (Project, error) {
	return svc.edit(ctx, id, func(prj *Project) error {
		prj.VideoJobID = jobID
		return nil
	})
}

// Sequences

func (svc *Service) AddSequence(ctx context.Context, id int, ns NewSequence) (Project, Sequence, error) {
	var seq Sequence
	prj, err := svc.edit(ctx, id, func(prj *Project) error {
		seq = normalizeSequence(Sequence{
			ID:       nextSequenceID(prj.Data.Sequences),
			Question: core.CleanString(ns.Question),
			Title:    ns.Title,
			Plans:    ns.Plans,
		})
		prj.Data.Sequences = append(prj.Data.Sequences, seq)
		return nil
	})
	return prj, seq, err
}

func (svc *Service) UpdateSequence(ctx context.Context, id, seqID int, actor Actor, us UpdateSequence) (Project, error) {
	return svc.editSequence(ctx, id, seqID, actor, func(_ *Project, seq *Sequence) error {
		if us.Question != nil {
			seq.Question = core.CleanString(*us.Question)
		}
		if us.Title != nil {
			t := *us.Title
			seq.Title = &t
		} else if us.RemoveTitle {
			seq.Title = nil
		}
		if us.VoiceText != nil {
			seq.VoiceText = *us.VoiceText
		}
		if us.SoundURL != nil {
			seq.SoundURL = *us.SoundURL
		}
		if us.SoundVolume != nil {
			seq.SoundVolume = *us.SoundVolume
		}
		if us.VoiceOffBeginTime != nil {
			seq.VoiceOffBeginTime = *us.VoiceOffBeginTime
		}
		return nil
	})
}

// DeleteSequence removes a sequence. Students cannot delete sequences.
func (svc *Service) DeleteSequence(ctx context.Context, id, seqID int, actor Actor) (Project, error) {
	if actor.Student {
		return Project{}, ErrForbidden
	}
	return svc.editSequence(ctx, id, seqID, actor, func(prj *Project, _ *Sequence) error {
		idx := prj.SequenceIndex(seqID)
		prj.Data.Sequences = append(prj.Data.Sequences[:idx], prj.Data.Sequences[idx+1:]...)
		return nil
	})
}

// ReorderSequences sorts the sequences by the given IDs, which must be a permutation of the existing ones.
func (svc *Service) ReorderSequences(ctx context.Context, id int, order []int) (Project, error) {
	return svc.edit(ctx, id, func(prj *Project) error {
		ids := make([]int, 0, len(prj.Data.Sequences))
		for _, seq := range prj.Data.Sequences {
			ids = append(ids, seq.ID)
		}
		if !isPermutation(ids, order) {
			return core.NewValidationError(nil, core.FieldError{Field: "order", Error: "must list every sequence exactly once"})
		}
		sorted := make([]Sequence, 0, len(order))
		for _, seqID := range order {
			sorted = append(sorted, prj.Data.Sequences[prj.SequenceIndex(seqID)])
		}
		prj.Data.Sequences = sorted
		return nil
	})
}

// EditSequence applies a timeline edit (boundary shift, time nudge) to a sequence.
func (svc *Service) EditSequence(ctx context.Context, id, seqID int, actor Actor, fn func(Sequence) (Sequence, error)) (Project, error) {
	return svc.editSequence(ctx, id, seqID, actor, func(_ *Project, seq *Sequence) error {
		edited, err := fn(seq.Clone())
		if err != nil {
			return err
		}
		edited.ID = seq.ID
		*seq = edited
		return nil
	})
}

// SetSequenceStatus moves a sequence through the storyboard workflow.
// Students may only ask for a validation of their own sequence; teachers may set
// any status and leave a feedback. A student asking for a validation alerts the
// room and emails the project owner.
func (svc *Service) SetSequenceStatus(ctx context.Context, id, seqID int, actor Actor, sc StatusChange) (Project, error) {
	var seqCopy Sequence
	prj, err := svc.editSequence(ctx, id, seqID, actor, func(_ *Project, seq *Sequence) error {
		if actor.Student {
			if !studentTransitionAllowed(seq.Status, sc.Status) {
				return ErrForbidden
			}
		} else if fb := core.CleanString(sc.Feedback); fb != "" {
			seq.Feedbacks = append(seq.Feedbacks, fb)
		}
		seq.Status = sc.Status
		seqCopy = seq.Clone()
		return nil
	})
	if err != nil {
		return Project{}, err
	}

	if actor.Student && sc.Status.IsValidating() {
		payload, _ := json.Marshal(struct {
			QuestionID int    `json:"questionId"`
			Status     Status `json:"status"`
		}{seqID, sc.Status})
		svc.notify(prj, collab.ValidateQuestionMessage(payload))
		svc.sendValidationRequestedMail(prj, seqCopy)
	}
	return prj, nil
}

func studentTransitionAllowed(from, to Status) bool {
	if from == "" {
		from = StatusStoryboard
	}
	return (from == StatusStoryboard && to == StatusStoryboardValidating) ||
		(from == StatusPreMounting && to == StatusPreMountingValidating)
}

func (svc *Service) sendValidationRequestedMail(prj Project, seq Sequence) {
	if svc.mailSvc == nil || prj.OwnerEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: prj.OwnerEmail}},
		Subject:      "Validation requested: " + prj.Name,
		TemplateName: "validation_requested",
		TemplateData: map[string]interface{}{
			"ProjectID":   prj.ID,
			"ProjectName": prj.Name,
			"Question":    seq.Question,
			"Status":      string(seq.Status),
		},
	})
}

// Plans

func (svc *Service) AddPlan(ctx context.Context, id, seqID int, actor Actor, np NewPlan) (Project, Plan, error) {
	var pl Plan
	prj, err := svc.editSequence(ctx, id, seqID, actor, func(_ *Project, seq *Sequence) error {
		pl = Plan{
			ID:          nextPlanID(seq.Plans),
			Description: np.Description,
			ImageURL:    np.ImageURL,
			Duration:    np.Duration,
		}
		seq.Plans = append(seq.Plans, pl)
		return nil
	})
	return prj, pl, err
}

func (svc *Service) UpdatePlan(ctx context.Context, id, seqID, planID int, actor Actor, up UpdatePlan) (Project, error) {
	return svc.editSequence(ctx, id, seqID, actor, func(_ *Project, seq *Sequence) error {
		idx := seq.PlanIndex(planID)
		if idx < 0 {
			return ErrPlanNotFound
		}
		pl := &seq.Plans[idx]
		if up.Description != nil {
			pl.Description = *up.Description
		}
		if up.ImageURL != nil {
			pl.ImageURL = *up.ImageURL
		}
		if up.Duration != nil {
			pl.Duration = *up.Duration
		}
		return nil
	})
}

func (svc *Service) DeletePlan(ctx context.Context, id, seqID, planID int, actor Actor) (Project, error) {
	return svc.editSequence(ctx, id, seqID, actor, func(_ *Project, seq *Sequence) error {
		idx := seq.PlanIndex(planID)
		if idx < 0 {
			return ErrPlanNotFound
		}
		seq.Plans = append(seq.Plans[:idx], seq.Plans[idx+1:]...)
		return nil
	})
}

func (svc *Service) ReorderPlans(ctx context.Context, id, seqID int, actor Actor, order []int) (Project, error) {
	return svc.editSequence(ctx, id, seqID, actor, func(_ *Project, seq *Sequence) error {
		ids := make([]int, 0, len(seq.Plans))
		for _, pl := range seq.Plans {
			ids = append(ids, pl.ID)
		}
		if !isPermutation(ids, order) {
			return core.NewValidationError(nil, core.FieldError{Field: "order", Error: "must list every plan exactly once"})
		}
		sorted := make([]Plan, 0, len(order))
		for _, planID := range order {
			sorted = append(sorted, seq.Plans[seq.PlanIndex(planID)])
		}
		seq.Plans = sorted
		return nil
	})
}

// Collaboration

// StartCollaboration reserves a fresh code for the project.
// A project that already collaborates keeps its code.
func (svc *Service) StartCollaboration(ctx context.Context, id int) (Project, error) {
	return svc.edit(ctx, id, func(prj *Project) error {
		if prj.CollaborationCode != "" && prj.CollaborationCodeExpiresAt.Time.After(svc.nowFunc()) {
			return nil
		}
		ttl := svc.conf.Collaboration.CodeTTL
		for i := 0; i < maxCodeAttempts; i++ {
			code, err := collab.NewCode()
			if err != nil {
				return err
			}
			ok, err := svc.codes.Reserve(ctx, code, prj.ID, ttl)
			if err != nil {
				return err
			}
			if ok {
				prj.CollaborationCode = code
				prj.CollaborationCodeExpiresAt = null.TimeFrom(svc.nowFunc().Add(ttl))
				return nil
			}
		}
		return errCodeAttempts
	})
}

// EndCollaboration releases the code and disconnects the students.
func (svc *Service) EndCollaboration(ctx context.Context, id int) (Project, error) {
	prj, err := svc.edit(ctx, id, func(prj *Project) error {
		if prj.CollaborationCode == "" {
			return ErrNoCollaboration
		}
		if err := svc.codes.Release(ctx, prj.CollaborationCode); err != nil {
			return err
		}
		prj.CollaborationCode = ""
		prj.CollaborationCodeExpiresAt = null.Time{}
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	svc.notify(prj, collab.MsgEndCollaboration)
	return prj, nil
}

// Join resolves a collaboration code to its project and checks the sequence exists.
func (svc *Service) Join(ctx context.Context, code string, seqID int) (Project, error) {
	code = core.CleanString(code)
	projectID, err := svc.codes.Lookup(ctx, code)
	if errors.Is(err, collab.ErrCodeNotFound) {
		return Project{}, core.NewValidationError(ErrInvalidCode, core.FieldError{Field: "code", Error: ErrInvalidCode.Error()})
	} else if err != nil {
		return Project{}, err
	}
	prj, err := svc.repo.GetProjectByID(ctx, projectID)
	if errors.Is(err, ErrNotFound) || (err == nil && prj.CollaborationCode != code) {
		return Project{}, core.NewValidationError(ErrInvalidCode, core.FieldError{Field: "code", Error: ErrInvalidCode.Error()})
	} else if err != nil {
		return Project{}, err
	}
	if prj.SequenceIndex(seqID) < 0 {
		return Project{}, core.NewValidationError(ErrSequenceNotFound, core.FieldError{Field: "questionId", Error: ErrSequenceNotFound.Error()})
	}
	return prj, nil
}

// helpers

func nextSequenceID(seqs []Sequence) int {
	var maxID int
	for _, seq := range seqs {
		if seq.ID > maxID {
			maxID = seq.ID
		}
	}
	return maxID + 1
}

func nextPlanID(plans []Plan) int {
	var maxID int
	for _, pl := range plans {
		if pl.ID > maxID {
			maxID = pl.ID
		}
	}
	return maxID + 1
}

// normalizeSequence gives plans unique IDs and a default status.
func normalizeSequence(seq Sequence) Sequence {
	seq = seq.Clone()
	if seq.Plans == nil {
		seq.Plans = make([]Plan, 0)
	}
	seen := make(map[int]bool, len(seq.Plans))
	for i := range seq.Plans {
		if seq.Plans[i].ID <= 0 || seen[seq.Plans[i].ID] {
			seq.Plans[i].ID = nextPlanID(seq.Plans)
		}
		seen[seq.Plans[i].ID] = true
	}
	if seq.Status == "" {
		seq.Status = StatusStoryboard
	}
	return seq
}

func isPermutation(ids, order []int) bool {
	if len(ids) != len(order) {
		return false
	}
	a := append([]int(nil), ids...)
	b := append([]int(nil), order...)
	sort.Ints(a)
	sort.Ints(b)
	for i := range a {
		if a[i] != b[i] || (i > 0 && b[i] == b[i-1]) {
			return false
		}
	}
	return true
}
