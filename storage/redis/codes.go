package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/parlemonde/clap-sub002/core/collab"
)

type codeStore struct {
	client *redis.Client
}

var _ collab.CodeStore = (*codeStore)(nil)

func NewCodeStore(client *redis.Client) collab.CodeStore {
	return &codeStore{client: client}
}

func codeKey(code string) string {
	return keyPrefix + "collab:" + code
}

func (s *codeStore) Reserve(ctx context.Context, code string, projectID int, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, codeKey(code), projectID, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "reserving collaboration code")
	}
	return ok, nil
}

func (s *codeStore) Lookup(ctx context.Context, code string) (int, error) {
	val, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, collab.ErrCodeNotFound
	} else if err != nil {
		return 0, errors.Wrap(err, "looking up collaboration code")
	}
	id, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrap(err, "parsing project id")
	}
	return id, nil
}

func (s *codeStore) Release(ctx context.Context, code string) error {
	return errors.Wrap(s.client.Del(ctx, codeKey(code)).Err(), "releasing collaboration code")
}
