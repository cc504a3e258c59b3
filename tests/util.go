// Package testutil holds fixtures shared by the test suites.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
)

// NopLogger discards every entry.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// NewRedis returns a client to an in-process redis server living for the test.
func NewRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func CreateProject(
	t *testing.T,
	repo project.Repository,
	userID int,
	email, name string,
	seqs []project.Sequence,
	createdAt ...time.Time,
) project.Project {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	prj := project.Project{
		UserID:     userID,
		OwnerEmail: email,
		Name:       name,
		Language:   "fr",
		Data:       project.Data{Sequences: seqs},
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	prj, err := repo.CreateProject(context.Background(), prj)
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	return prj
}

// WriteMedia stores a file as it would be uploaded below the media directory.
func WriteMedia(t *testing.T, dir string, kind montage.FileKind, name string, data []byte) {
	path := filepath.Join(dir, string(kind), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("WriteMedia() failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteMedia() failed: %v", err)
	}
}
