package main

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	echoapi "github.com/parlemonde/clap-sub002/apps/api/echo"
	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
	"github.com/parlemonde/clap-sub002/core/timeline"
	inmemdb "github.com/parlemonde/clap-sub002/storage/database/inmem"
	testutil "github.com/parlemonde/clap-sub002/tests"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := core.NewTestConfig()
	conf.Media.Dir = t.TempDir()
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		conf:   conf,
		repo:   inmemdb.NewProjectRepository(inmemdb.NewDB()),
		src:    montage.DirSource(conf.Media.Dir),
		logger: testutil.NopLogger{},
		out:    out,
	}, out
}

func seedProject(t *testing.T, cli *commandLine) project.Project {
	return testutil.CreateProject(t, cli.repo, 1, "teacher@test.cd", "Film", []project.Sequence{
		{
			ID:                1,
			Question:          "Why?",
			Title:             &project.Title{Text: "Intro", Duration: 1000},
			Plans:             []project.Plan{{ID: 1, ImageURL: "/api/images/a.jpg", Duration: 2000}},
			SoundURL:          "/api/audios/v.mp3",
			VoiceOffBeginTime: null.IntFrom(500),
		},
		{ID: 2, Question: "How?"},
	})
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"clap-admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() no error, want %v%s", tt.wantErr, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "feedbacks", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "teacher without id", args: []string{"token"}, wantErrStr: "--user is required for teachers"},
		{name: "student without project", args: []string{"token", "--role", "student"}, wantErrStr: "--project and --question are required for students"},
		{name: "unknown role", args: []string{"token", "--role", "admin", "--user", "1"}, wantErrStr: `unknown role "admin"`},
	})

	parse := func(t *testing.T) *echoapi.Claims {
		claims := new(echoapi.Claims)
		_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
			return []byte(cli.conf.SecretKey), nil
		})
		require.NoError(t, err)
		return claims
	}

	out.Reset()
	require.NoError(t, cli.run([]string{"clap-admin", "token", "--user", "7", "--email", "t@test.cd"}))
	claims := parse(t)
	assert.Equal(t, echoapi.RoleTeacher, claims.Role)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "t@test.cd", claims.Email)

	out.Reset()
	require.NoError(t, cli.run([]string{"clap-admin", "token", "--role", "student", "--project", "3", "--question", "2"}))
	claims = parse(t)
	assert.True(t, claims.IsStudent())
	assert.Equal(t, 3, claims.ProjectID)
	assert.Equal(t, 2, claims.QuestionID)
}

func Test_commandLine_timeline(t *testing.T) {
	cli, out := setup(t)
	prj := seedProject(t, cli)
	defer func() { isTerminalFunc = isTerminal }()

	runCLITests(t, cli, []cliTest{
		{name: "project required", args: []string{"timeline"}, wantErrStr: `required flag(s) "project" not set`},
		{name: "unknown project", args: []string{"timeline", "--project", "9"}, wantErr: project.ErrNotFound},
	})

	// not a terminal: JSON
	out.Reset()
	require.NoError(t, cli.run([]string{"clap-admin", "timeline", "--project", strconv.Itoa(prj.ID)}))
	var tl timeline.Timeline
	require.NoError(t, json.Unmarshal(out.Bytes(), &tl))
	assert.Equal(t, timeline.Build(prj), tl)

	// terminal: table
	isTerminalFunc = func(io.Writer) bool { return true }
	out.Reset()
	require.NoError(t, cli.run([]string{"clap-admin", "timeline", "--project", strconv.Itoa(prj.ID)}))
	table := out.String()
	assert.Contains(t, table, "Film")
	assert.Contains(t, table, "Why?")
	assert.NotContains(t, table, "How?") // unavailable sequence
	assert.Contains(t, table, "/api/audios/v.mp3 @0:00 +0ms (100%)")
	assert.Contains(t, table, "0:03")

	// --json wins over the terminal
	out.Reset()
	require.NoError(t, cli.run([]string{"clap-admin", "timeline", "--project", strconv.Itoa(prj.ID), "--json"}))
	assert.True(t, json.Valid(out.Bytes()))
}

func Test_commandLine_montage(t *testing.T) {
	cli, _ := setup(t)
	prj := seedProject(t, cli)
	testutil.WriteMedia(t, cli.conf.Media.Dir, montage.FileImage, "a.jpg", []byte("jpg"))
	dir := t.TempDir()

	// archive; the missing narration is skipped
	zipPath := filepath.Join(dir, "Montage.zip")
	require.NoError(t, cli.run([]string{"clap-admin", "montage", "--project", strconv.Itoa(prj.ID), "--out", zipPath}))
	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	_ = zr.Close()
	assert.Equal(t, []string{montage.ArchiveMLTName, "a.jpg"}, names)

	// mlt only
	mltPath := filepath.Join(dir, "Montage.mlt")
	require.NoError(t, cli.run([]string{"clap-admin", "montage", "--project", strconv.Itoa(prj.ID), "--out", mltPath, "--mlt"}))
	data, err := os.ReadFile(mltPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<mlt")
	assert.Contains(t, string(data), cli.conf.Media.HostURL+"/api/images/a.jpg")
}
