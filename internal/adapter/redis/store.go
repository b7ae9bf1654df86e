// Package redis mirrors tagging job status into Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

const keyPrefix = "storm-tagger:job:"

// StatusStore keeps the latest JobResult per job id with a TTL.
// It implements pipeline.StatusStore.
type StatusStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// NewStatusStore wraps a connected client. ttl <= 0 keeps entries forever.
func NewStatusStore(client *goredis.Client, ttl time.Duration) *StatusStore {
	return &StatusStore{client: client, ttl: max(ttl, 0)}
}

func (s *StatusStore) Put(ctx context.Context, res domain.JobResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("serialize job status: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+res.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store job status %s: %w", res.ID, err)
	}
	return nil
}

func (s *StatusStore) Get(ctx context.Context, id string) (domain.JobResult, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.JobResult{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("load job status %s: %w", id, err)
	}
	var res domain.JobResult
	if err := json.Unmarshal(data, &res); err != nil {
		return domain.JobResult{}, fmt.Errorf("decode job status %s: %w", id, err)
	}
	return res, nil
}

// CheckReadiness pings the server.
func (s *StatusStore) CheckReadiness(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	return nil
}

func (s *StatusStore) Close() error {
	return s.client.Close()
}
