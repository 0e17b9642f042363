package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisJobPrefix = "colorize:job:"
	redisJobIndex  = "colorize:jobs"

	redisListWindow = 100
)

// RedisJobStore keeps each job as a JSON value with a TTL and indexes job ids
// in a sorted set scored by creation time.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ JobStore = (*RedisJobStore)(nil)

func NewRedisJobStore(ctx context.Context, url string, ttl time.Duration) (*RedisJobStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisJobStore{client: client, ttl: ttl}, nil
}

func (s *RedisJobStore) key(id string) string {
	return redisJobPrefix + id
}

func (s *RedisJobStore) CreateJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.key(job.Id), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("error creating job %s: %w", job.Id, err)
	}
	if !created {
		return fmt.Errorf("error creating job %s: job already exists", job.Id)
	}

	score := float64(job.CreationTime.UnixNano())
	if err := s.client.ZAdd(ctx, redisJobIndex, redis.Z{Score: score, Member: job.Id}).Err(); err != nil {
		return fmt.Errorf("error indexing job %s: %w", job.Id, err)
	}
	return nil
}

func (s *RedisJobStore) GetJob(ctx context.Context, id string) (*Job, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("error getting job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("error decoding job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisJobStore) CompleteJob(ctx context.Context, id, resultKey, contentType string) error {
	return s.finish(ctx, id, func(job *Job) {
		job.Status = JobCompleted
		job.ResultKey = resultKey
		job.ResultContentType = contentType
	})
}

func (s *RedisJobStore) FailJob(ctx context.Context, id, message string) error {
	return s.finish(ctx, id, func(job *Job) {
		job.Status = JobFailed
		job.Error = message
	})
}

// finish applies a terminal transition under WATCH so a concurrent transition
// of the same job makes one side observe ErrJobNotPending.
func (s *RedisJobStore) finish(ctx context.Context, id string, apply func(job *Job)) error {
	key := s.key(id)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}

		var job Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("error decoding job %s: %w", id, err)
		}
		if job.Status != JobPending {
			return ErrJobNotPending
		}

		apply(&job)
		job.CompletionTime = sql.NullTime{Time: time.Now().UTC(), Valid: true}

		data, err := json.Marshal(job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrJobNotPending
}

// ListJobs walks the index newest first in windows of redisListWindow ids,
// fetching each window's jobs in one pipeline. Expired ids are dropped from
// the index as they are found.
func (s *RedisJobStore) ListJobs(ctx context.Context, status string, limit int) ([]Job, error) {
	jobs := make([]Job, 0)

	offset := int64(0)
	for {
		ids, err := s.client.ZRevRange(ctx, redisJobIndex, offset, offset+redisListWindow-1).Result()
		if err != nil {
			return nil, fmt.Errorf("error listing jobs: %w", err)
		}
		if len(ids) == 0 {
			return jobs, nil
		}

		cmds := make([]*redis.StringCmd, len(ids))
		_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = pipe.Get(ctx, s.key(id))
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("error listing jobs: %w", err)
		}

		expired := make([]any, 0)
		for i, cmd := range cmds {
			raw, err := cmd.Bytes()
			if errors.Is(err, redis.Nil) {
				expired = append(expired, ids[i])
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("error getting job %s: %w", ids[i], err)
			}

			var job Job
			if err := json.Unmarshal(raw, &job); err != nil {
				return nil, fmt.Errorf("error decoding job %s: %w", ids[i], err)
			}
			if status != "" && job.Status != status {
				continue
			}
			jobs = append(jobs, job)
			if limit > 0 && len(jobs) >= limit {
				s.dropExpired(ctx, expired)
				return jobs, nil
			}
		}

		// Removed ids shift the remaining members toward the start of the index.
		offset += int64(len(ids) - s.dropExpired(ctx, expired))
		if len(ids) < redisListWindow {
			return jobs, nil
		}
	}
}

// dropExpired removes ids whose job has expired from the index and returns how
// many were removed.
func (s *RedisJobStore) dropExpired(ctx context.Context, ids []any) int {
	if len(ids) == 0 {
		return 0
	}
	removed, err := s.client.ZRem(ctx, redisJobIndex, ids...).Result()
	if err != nil {
		slog.Warn("error pruning expired jobs from index", "count", len(ids), "error", err)
		return 0
	}
	return int(removed)
}

func (s *RedisJobStore) Close() error {
	return s.client.Close()
}
