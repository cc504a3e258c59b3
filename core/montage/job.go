package montage

import (
	"context"
	"errors"
	"time"
)

type JobState string

const (
	JobWaiting    JobState = "waiting"
	JobProcessing JobState = "processing"
	JobSucceeded  JobState = "succeeded"
	JobFailed     JobState = "failed"
)

var ErrJobNotFound = errors.New("montage job not found")

// Job is a background build of a project archive.
type Job struct {
	ID        string    `json:"id"`
	ProjectID int       `json:"projectId"`
	State     JobState  `json:"state"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (j Job) Done() bool {
	return j.State == JobSucceeded || j.State == JobFailed
}

type JobStore interface {
	SaveJob(ctx context.Context, job Job) error
	// GetJob returns ErrJobNotFound for unknown or expired jobs.
	GetJob(ctx context.Context, id string) (Job, error)
}
