package tests

import (
	"context"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/parlemonde/clap-sub002/apps/api/echo"
	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
	collabsvc "github.com/parlemonde/clap-sub002/services/collab"
	emailsvc "github.com/parlemonde/clap-sub002/services/email"
	montagesvc "github.com/parlemonde/clap-sub002/services/montage"
	inmemdb "github.com/parlemonde/clap-sub002/storage/database/inmem"
	redisstore "github.com/parlemonde/clap-sub002/storage/redis"
	testutil "github.com/parlemonde/clap-sub002/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf *core.Config
	app  *Server
	svc  *project.Service
	repo project.Repository
	mail *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	conf.Media.Dir = t.TempDir()

	// set up DB & stores
	repo := inmemdb.NewProjectRepository(inmemdb.NewDB())
	client := testutil.NewRedis(t)

	// set up services
	logger := testutil.NopLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	hub := collabsvc.NewHub(conf, logger)
	prjSvc := project.NewService(repo, redisstore.NewCodeStore(client), hub, mailSvc, conf)
	worker := montagesvc.NewWorker(
		conf,
		redisstore.NewJobStore(client, conf.Montage.JobTTL),
		montage.DirSource(conf.Media.Dir),
		mailSvc,
		logger,
	)
	t.Cleanup(func() { _ = worker.Close(context.Background()) })

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	project.InitValidators(validate, translator)

	// set up server
	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		ProjectSvc:     prjSvc,
		Hub:            hub,
		Montage:        worker,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	return fixture{conf: conf, app: app, svc: prjSvc, repo: repo, mail: mailSvc}
}
