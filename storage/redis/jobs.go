package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/parlemonde/clap-sub002/core/montage"
)

type jobStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ montage.JobStore = (*jobStore)(nil)

// NewJobStore keeps each job for ttl after its last update.
func NewJobStore(client *redis.Client, ttl time.Duration) montage.JobStore {
	return &jobStore{client: client, ttl: ttl}
}

func jobKey(id string) string {
	return keyPrefix + "montage:" + id
}

func (s *jobStore) SaveJob(ctx context.Context, job montage.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encoding job")
	}
	return errors.Wrap(s.client.Set(ctx, jobKey(job.ID), b, s.ttl).Err(), "saving job")
}

func (s *jobStore) GetJob(ctx context.Context, id string) (montage.Job, error) {
	b, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return montage.Job{}, montage.ErrJobNotFound
	} else if err != nil {
		return montage.Job{}, errors.Wrap(err, "getting job")
	}
	var job montage.Job
	if err = json.Unmarshal(b, &job); err != nil {
		return montage.Job{}, errors.Wrap(err, "decoding job")
	}
	return job, nil
}
