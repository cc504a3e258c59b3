package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/parlemonde/clap-sub002/core/project"
	"github.com/parlemonde/clap-sub002/core/timeline"
)

func (cli *commandLine) timelineCommand() *cobra.Command {
	var (
		projectID int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the computed timeline of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			prj, err := cli.repo.GetProjectByID(context.Background(), projectID)
			if err != nil {
				return err
			}
			tl := timeline.Build(prj)
			if asJSON || !isTerminalFunc(cmd.OutOrStdout()) {
				return writeJSON(cmd, tl)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTimeline(prj, tl))
			return err
		},
	}
	cmd.Flags().IntVar(&projectID, "project", 0, "Project ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON even on a terminal")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func renderTimeline(prj project.Project, tl timeline.Timeline) string {
	questions := make(map[int]string, len(prj.Data.Sequences))
	for _, seq := range prj.Data.Sequences {
		questions[seq.ID] = seq.Question
	}
	sounds := make(map[int]timeline.Sound, len(tl.Sounds))
	for _, snd := range tl.Sounds {
		sounds[snd.SequenceID] = snd
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(prj.Name)
	tw.AppendHeader(table.Row{"#", "Question", "Begin", "End", "Duration", "Voice"})
	for _, span := range tl.Spans {
		voice := ""
		if snd, ok := sounds[span.SequenceID]; ok {
			voice = fmt.Sprintf("%s @%s +%dms (%d%%)",
				snd.URL, timeline.FormatDuration(snd.BeginTime), snd.DeltaBeginTime, snd.Volume)
		}
		tw.AppendRow(table.Row{
			strconv.Itoa(span.Index + 1),
			questions[span.SequenceID],
			timeline.FormatDuration(span.Begin),
			timeline.FormatDuration(span.End),
			timeline.FormatDuration(span.Duration),
			voice,
		})
	}
	if tl.Music != nil {
		tw.AppendFooter(table.Row{"", "Music", timeline.FormatDuration(tl.Music.BeginTime), "", "", tl.Music.URL})
	}
	tw.AppendFooter(table.Row{"", "Total", "", "", tl.FormattedDuration, ""})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}
