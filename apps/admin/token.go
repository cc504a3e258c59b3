package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	echoapi "github.com/parlemonde/clap-sub002/apps/api/echo"
)

// tokenCommand mints the JWTs the identity provider would hand out, for development.
func (cli *commandLine) tokenCommand() *cobra.Command {
	var (
		userID     int
		email      string
		role       string
		projectID  int
		questionID int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			var claims *echoapi.Claims
			switch role {
			case echoapi.RoleTeacher:
				if userID <= 0 {
					return errors.New("--user is required for teachers")
				}
				claims = echoapi.TeacherClaims(cli.conf, userID, email)
			case echoapi.RoleStudent:
				if projectID <= 0 || questionID <= 0 {
					return errors.New("--project and --question are required for students")
				}
				claims = echoapi.StudentClaims(cli.conf, projectID, questionID)
			default:
				return errors.Errorf("unknown role %q", role)
			}

			token, err := echoapi.GenerateToken(cli.conf, claims)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().IntVar(&userID, "user", 0, "Teacher ID")
	cmd.Flags().StringVar(&email, "email", "", "Teacher email")
	cmd.Flags().StringVar(&role, "role", echoapi.RoleTeacher, "teacher or student")
	cmd.Flags().IntVar(&projectID, "project", 0, "Project joined by the student")
	cmd.Flags().IntVar(&questionID, "question", 0, "Sequence of the student")
	return cmd
}
