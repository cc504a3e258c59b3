package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/parlemonde/clap-sub002/apps/api/echo"
	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
	collabsvc "github.com/parlemonde/clap-sub002/services/collab"
	emailsvc "github.com/parlemonde/clap-sub002/services/email"
	logsvc "github.com/parlemonde/clap-sub002/services/logger"
	montagesvc "github.com/parlemonde/clap-sub002/services/montage"
	"github.com/parlemonde/clap-sub002/storage/database"
	sqlxrepos "github.com/parlemonde/clap-sub002/storage/database/sqlx"
	redisstore "github.com/parlemonde/clap-sub002/storage/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	dbLogger := logsvc.NewRollbarLogger(zl.Named("db"), conf)
	// rollbar is shared by both loggers
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Sync()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		dbLogger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	rdb, err := redisstore.Open(conf)
	if err != nil {
		dbLogger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
	}
	defer func() {
		if err = rdb.Close(); err != nil {
			dbLogger.Error("Failed to close redis", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	hub := collabsvc.NewHub(conf, logger)
	prjSvc := project.NewService(
		sqlxrepos.NewProjectRepository(db),
		redisstore.NewCodeStore(rdb),
		hub,
		mailSvc,
		conf,
	)
	worker := montagesvc.NewWorker(
		conf,
		redisstore.NewJobStore(rdb, conf.Montage.JobTTL),
		montage.Sources{
			montage.DirSource(conf.Media.Dir),
			montage.HTTPSource{Client: &http.Client{Timeout: time.Minute}},
		},
		mailSvc,
		logger,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	project.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			ProjectSvc: prjSvc,
			Hub:        hub,
			Montage:    worker,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
	// queued montages are built before exiting
	if err = worker.Close(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not finish montages: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
