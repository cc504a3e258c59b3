package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/montage"
	logsvc "github.com/parlemonde/clap-sub002/services/logger"
	"github.com/parlemonde/clap-sub002/storage/database"
	sqlxrepos "github.com/parlemonde/clap-sub002/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		conf: conf,
		db:   db.DB,
		repo: sqlxrepos.NewProjectRepository(db),
		src: montage.Sources{
			montage.DirSource(conf.Media.Dir),
			montage.HTTPSource{Client: &http.Client{Timeout: time.Minute}},
		},
		logger: logger,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
