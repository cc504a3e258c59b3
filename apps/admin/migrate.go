package main

import (
	"github.com/spf13/cobra"

	"github.com/parlemonde/clap-sub002/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command over the embedded migrations",
		Long: "Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, " +
			"create NAME [go|sql], fix",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return errHelp
			}
			return migrateFunc(cli.db, args[0], args[1:]...)
		},
	}
}
