package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/parlemonde/clap-sub002/core/montage"
)

func (cli *commandLine) montageCommand() *cobra.Command {
	var (
		projectID int
		out       string
		mltOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "montage",
		Short: "Write the montage archive of a project",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := context.Background()
			prj, err := cli.repo.GetProjectByID(ctx, projectID)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, "creating output file")
			}
			defer func() {
				if cErr := f.Close(); err == nil {
					err = cErr
				}
			}()

			if mltOnly {
				doc, _ := montage.Build(prj, montage.URLFull, cli.conf.Media.HostURL)
				data, err := doc.Marshal()
				if err != nil {
					return err
				}
				_, err = f.Write(data)
				return err
			}
			return montage.Archive(ctx, f, prj, cli.src, cli.logger)
		},
	}
	cmd.Flags().IntVar(&projectID, "project", 0, "Project ID")
	cmd.Flags().StringVar(&out, "out", "Montage.zip", "Output file")
	cmd.Flags().BoolVar(&mltOnly, "mlt", false, "Only write the MLT document")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
