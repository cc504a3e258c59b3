package main

import (
	"database/sql"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
)

var (
	isTerminalFunc = isTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	db     *sql.DB
	repo   project.Repository
	src    montage.Source
	logger core.Logger
	out    io.Writer
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (cli *commandLine) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clap-admin",
		Short:         "Clap! administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	if cli.out != nil {
		rootCmd.SetOut(cli.out)
	}

	rootCmd.AddCommand(cli.migrateCommand())
	rootCmd.AddCommand(cli.tokenCommand())
	rootCmd.AddCommand(cli.timelineCommand())
	rootCmd.AddCommand(cli.montageCommand())
	return rootCmd
}

// run executes the command line, args[0] being the program name.
func (cli *commandLine) run(args []string) error {
	rootCmd := cli.rootCommand()
	rootCmd.SetArgs(args[1:])
	return rootCmd.Execute()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
