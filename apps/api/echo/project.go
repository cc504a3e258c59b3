package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/collab"
	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
	"github.com/parlemonde/clap-sub002/core/timeline"
	montagesvc "github.com/parlemonde/clap-sub002/services/montage"
)

type projectApi struct {
	conf       *core.Config
	svc        *project.Service
	montage    *montagesvc.Worker
	validate   *validator.Validate
	translator ut.Translator
}

func (api *projectApi) register(g *echo.Group, jwt echo.MiddlewareFunc) {
	// un-authed endpoints
	g.POST("/join", api.join)

	// authed endpoints
	ag := g.Group("", jwt)

	pg := ag.Group("/projects")
	pg.GET("", api.query, teacherMiddleware)
	pg.POST("", api.create, teacherMiddleware)
	pg.DELETE("", api.destroyMultiple, teacherMiddleware)

	// detail endpoints
	dg := pg.Group("/:id", projectMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teacherMiddleware)
	dg.DELETE("", api.destroy, teacherMiddleware)

	dg.POST("/sequences", api.addSequence, teacherMiddleware)
	dg.PUT("/sequences/order", api.reorderSequences, teacherMiddleware)
	dg.PUT("/sequences/:seq", api.updateSequence)
	dg.DELETE("/sequences/:seq", api.deleteSequence)
	dg.PUT("/sequences/:seq/status", api.setSequenceStatus)
	dg.POST("/sequences/:seq/boundaries", api.shiftBoundary)
	dg.POST("/sequences/:seq/time", api.nudgeTime)

	dg.POST("/sequences/:seq/plans", api.addPlan)
	dg.PUT("/sequences/:seq/plans/order", api.reorderPlans)
	dg.PUT("/sequences/:seq/plans/:plan", api.updatePlan)
	dg.DELETE("/sequences/:seq/plans/:plan", api.deletePlan)

	dg.GET("/timeline", api.timeline)
	dg.GET("/timeline/frame", api.frame)
	dg.GET("/timeline/audio", api.audio)

	dg.GET("/montage.mlt", api.mlt, teacherMiddleware)
	dg.POST("/montage", api.submitMontage, teacherMiddleware)

	dg.POST("/collaboration", api.startCollaboration, teacherMiddleware)
	dg.DELETE("/collaboration", api.endCollaboration, teacherMiddleware)
	dg.GET("/collaboration-url", api.collaborationURL)

	mg := ag.Group("/montages", teacherMiddleware)
	mg.GET("/:job", api.montageJob)
	mg.GET("/:job/Montage.zip", api.downloadMontage)
}

// Projects

func (api *projectApi) join(ctx echo.Context) error {
	var data JoinRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err := api.svc.Join(ctx.Request().Context(), data.Code, data.QuestionID)
	if err != nil {
		return errors.Wrap(err, "joining project")
	}
	token, err := GenerateToken(api.conf, StudentClaims(api.conf, prj.ID, data.QuestionID))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, JoinResponse{Token: token, Project: prj})
}

func (api *projectApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data QueryRequest
	if err := ctx.Bind(&data); err != nil {
		return ctx.JSON(http.StatusOK, []project.Project{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	filter := project.QueryFilter{UserID: claims.UserID, Search: data.Search}
	projects, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying projects")
	}
	if projects == nil {
		projects = []project.Project{}
	}
	return ctx.JSON(http.StatusOK, projects)
}

func (api *projectApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data project.NewProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err := api.svc.Create(ctx.Request().Context(), claims.Actor(), data)
	if err != nil {
		return errors.Wrap(err, "creating project")
	}
	return ctx.JSON(http.StatusCreated, prj)
}

func (api *projectApi) retrieve(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) update(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	var data project.UpdateProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err = api.svc.Update(ctx.Request().Context(), prj.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating project")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) destroy(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err := api.svc.Delete(ctx.Request().Context(), claims.Actor(), prj.ID); err != nil {
		return errors.Wrap(err, "deleting project")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) destroyMultiple(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	// projects of other users are left untouched
	if err := api.svc.Delete(ctx.Request().Context(), claims.Actor(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting projects")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Sequences

func (api *projectApi) addSequence(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	var data project.NewSequence
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSequence")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	_, seq, err := api.svc.AddSequence(ctx.Request().Context(), prj.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding sequence")
	}
	return ctx.JSON(http.StatusCreated, seq)
}

func (api *projectApi) reorderSequences(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	var data OrderRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OrderRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err = api.svc.ReorderSequences(ctx.Request().Context(), prj.ID, data.Order)
	if err != nil {
		return errors.Wrap(err, "reordering sequences")
	}
	return ctx.JSON(http.StatusOK, prj)
}

// sequenceTarget returns the project, the `:seq` param and the caller of a sequence route.
func sequenceTarget(ctx echo.Context) (project.Project, int, project.Actor, error) {
	prj, err := getContextProject(ctx)
	if err != nil {
		return prj, 0, project.Actor{}, err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return prj, 0, project.Actor{}, errors.Wrap(err, "getting context claims")
	}
	seqID, err := intParam(ctx, "seq")
	if err != nil {
		return prj, 0, project.Actor{}, err
	}
	return prj, seqID, claims.Actor(), nil
}

func (api *projectApi) updateSequence(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	var data project.UpdateSequence
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSequence")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err = api.svc.UpdateSequence(ctx.Request().Context(), prj.ID, seqID, actor, data)
	if err != nil {
		return errors.Wrap(err, "updating sequence")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) deleteSequence(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.DeleteSequence(ctx.Request().Context(), prj.ID, seqID, actor); err != nil {
		return errors.Wrap(err, "deleting sequence")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) setSequenceStatus(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	var data project.StatusChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusChange")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err = api.svc.SetSequenceStatus(ctx.Request().Context(), prj.ID, seqID, actor, data)
	if err != nil {
		return errors.Wrap(err, "setting sequence status")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) shiftBoundary(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	var data BoundaryRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BoundaryRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err = api.svc.EditSequence(ctx.Request().Context(), prj.ID, seqID, actor, func(seq project.Sequence) (project.Sequence, error) {
		return timeline.ShiftPlanBoundary(seq, data.Index, data.Delta)
	})
	if err != nil {
		return errors.Wrap(err, "shifting plan boundary")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) nudgeTime(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	var data TimeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TimeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	nudge := timeline.AddTime
	if data.Action == timeRemove {
		nudge = timeline.RemoveTime
	}
	prj, err = api.svc.EditSequence(ctx.Request().Context(), prj.ID, seqID, actor, func(seq project.Sequence) (project.Sequence, error) {
		return nudge(seq), nil
	})
	if err != nil {
		return errors.Wrap(err, "changing sequence duration")
	}
	return ctx.JSON(http.StatusOK, prj)
}

// Plans

func (api *projectApi) addPlan(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	var data project.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	_, pl, err := api.svc.AddPlan(ctx.Request().Context(), prj.ID, seqID, actor, data)
	if err != nil {
		return errors.Wrap(err, "adding plan")
	}
	return ctx.JSON(http.StatusCreated, pl)
}

func (api *projectApi) reorderPlans(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	var data OrderRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OrderRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err = api.svc.ReorderPlans(ctx.Request().Context(), prj.ID, seqID, actor, data.Order)
	if err != nil {
		return errors.Wrap(err, "reordering plans")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) updatePlan(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	planID, err := intParam(ctx, "plan")
	if err != nil {
		return err
	}
	var data project.UpdatePlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePlan")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prj, err = api.svc.UpdatePlan(ctx.Request().Context(), prj.ID, seqID, planID, actor, data)
	if err != nil {
		return errors.Wrap(err, "updating plan")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) deletePlan(ctx echo.Context) error {
	prj, seqID, actor, err := sequenceTarget(ctx)
	if err != nil {
		return err
	}
	planID, err := intParam(ctx, "plan")
	if err != nil {
		return err
	}
	if _, err = api.svc.DeletePlan(ctx.Request().Context(), prj.ID, seqID, planID, actor); err != nil {
		return errors.Wrap(err, "deleting plan")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Timeline

func (api *projectApi) timeline(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, timeline.Build(prj))
}

func (api *projectApi) frame(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	t, err := timeQuery(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, timeline.FrameAt(prj.Data.Sequences, t))
}

func (api *projectApi) audio(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	t, err := timeQuery(ctx)
	if err != nil {
		return err
	}

	resp := AudioResponse{
		Time:   t,
		Sounds: timeline.ActiveSounds(timeline.Sounds(prj.Data.Sequences), t),
	}
	if prj.Data.SoundURL != "" {
		if pos, ok := timeline.MusicPosition(prj.Data.SoundBeginTime, t); ok {
			resp.Music = &MusicCursor{
				URL:      prj.Data.SoundURL,
				Volume:   timeline.Volume(prj.Data.SoundVolume),
				Position: pos,
			}
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// Montage

func (api *projectApi) mlt(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	doc, _ := montage.Build(prj, montage.URLFull, api.conf.Media.HostURL)
	data, err := doc.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding mlt")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+montage.ArchiveMLTName+`"`)
	return ctx.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, data)
}

func (api *projectApi) submitMontage(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	job, err := api.montage.Submit(ctx.Request().Context(), prj, claims.Email)
	if err != nil {
		return errors.Wrap(err, "submitting montage")
	}
	if _, err = api.svc.SetVideoJob(ctx.Request().Context(), prj.ID, job.ID); err != nil {
		return errors.Wrap(err, "saving montage job")
	}
	return ctx.JSON(http.StatusAccepted, job)
}

// ownedJob returns the `:job` job when it belongs to a project of the caller.
func (api *projectApi) ownedJob(ctx echo.Context) (montage.Job, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return montage.Job{}, errors.Wrap(err, "getting context claims")
	}
	job, err := api.montage.Job(ctx.Request().Context(), ctx.Param("job"))
	if err != nil {
		return montage.Job{}, errors.Wrap(err, "finding montage job")
	}
	prj, err := api.svc.Get(ctx.Request().Context(), job.ProjectID)
	if err != nil {
		if errors.Cause(err) == project.ErrNotFound {
			return montage.Job{}, montage.ErrJobNotFound
		}
		return montage.Job{}, errors.Wrap(err, "finding project by ID")
	}
	if prj.UserID != claims.UserID {
		return montage.Job{}, montage.ErrJobNotFound
	}
	return job, nil
}

func (api *projectApi) montageJob(ctx echo.Context) error {
	job, err := api.ownedJob(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, job)
}

func (api *projectApi) downloadMontage(ctx echo.Context) error {
	job, err := api.ownedJob(ctx)
	if err != nil {
		return err
	}
	if job.State != montage.JobSucceeded {
		return montage.ErrJobNotFound
	}
	path, err := api.montage.ArchivePath(job.ID)
	if err != nil {
		return err
	}
	return ctx.Attachment(path, "Montage.zip")
}

// Collaboration

func (api *projectApi) startCollaboration(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	prj, err = api.svc.StartCollaboration(ctx.Request().Context(), prj.ID)
	if err != nil {
		return errors.Wrap(err, "starting collaboration")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) endCollaboration(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	prj, err = api.svc.EndCollaboration(ctx.Request().Context(), prj.ID)
	if err != nil {
		return errors.Wrap(err, "ending collaboration")
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) collaborationURL(ctx echo.Context) error {
	prj, err := getContextProject(ctx)
	if err != nil {
		return err
	}
	u, err := collab.URL(api.conf.Collaboration.ServerURL, api.conf.SecretKey, collab.RoomName(prj.ID))
	if err != nil {
		return errors.Wrap(err, "building collaboration url")
	}
	return ctx.JSON(http.StatusOK, CollaborationURLResponse{URL: u, Room: collab.RoomName(prj.ID)})
}

const (
	timeAdd    = "add"
	timeRemove = "remove"
)

type (
	JoinRequest struct {
		Code       string `json:"code" validate:"required,len=6,numeric"`
		QuestionID int    `json:"questionId" validate:"required,min=1"`
	}

	JoinResponse struct {
		Token   string          `json:"token"`
		Project project.Project `json:"project"`
	}

	QueryRequest struct {
		Search string `query:"search"`
	}

	DestroyMultipleRequest struct {
		IDs []int `query:"id"`
	}

	OrderRequest struct {
		Order []int `json:"order" validate:"required"`
	}

	BoundaryRequest struct {
		Index int `json:"index" validate:"min=0"`
		Delta int `json:"delta"`
	}

	TimeRequest struct {
		Action string `json:"action" validate:"required,oneof=add remove"`
	}

	MusicCursor struct {
		URL      string `json:"soundUrl"`
		Volume   int    `json:"volume"`
		Position int    `json:"position"`
	}

	AudioResponse struct {
		Time   int                    `json:"time"`
		Sounds []timeline.ActiveSound `json:"sounds"`
		Music  *MusicCursor           `json:"music,omitempty"`
	}

	CollaborationURLResponse struct {
		URL  string `json:"url"`
		Room string `json:"room"`
	}
)

func (jr *JoinRequest) Validate(validate *validator.Validate) error {
	jr.Code = core.CleanString(jr.Code)
	return validate.Struct(jr)
}

func (or OrderRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(or)
}

func (br BoundaryRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(br)
}

func (tr *TimeRequest) Validate(validate *validator.Validate) error {
	tr.Action = core.CleanString(tr.Action, true /* lower */)
	return validate.Struct(tr)
}
