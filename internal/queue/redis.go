package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/models"
)

const defaultRedisPrefix = "feedback:queue"

// RedisQueue keeps job bodies in a hash and ids in a ready list, a processing
// list and a delayed sorted set scored by availability time. Claimed ids are
// also kept in a claimed sorted set scored by claim time so RequeueStale can
// recover jobs from crashed workers.
type RedisQueue struct {
	client      *redis.Client
	prefix      string
	now         func() time.Time
	maxAttempts int
}

// NewRedisClient parses a redis:// URL, or treats the value as host:port, and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		redisURL = "localhost:6379"
		log.Warn("REDIS_URL not set, using localhost:6379 (development mode)")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL, DB: 0}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	log.WithField("addr", opts.Addr).Info("Redis initialized")
	return client, nil
}

// NewRedisQueue creates a queue using client under the default key prefix.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, prefix: defaultRedisPrefix, now: time.Now, maxAttempts: DefaultMaxAttempts}
}

// SetMaxAttempts changes the attempt limit given to jobs that do not set one.
func (q *RedisQueue) SetMaxAttempts(n int) {
	if n > 0 {
		q.maxAttempts = n
	}
}

func (q *RedisQueue) key(name string) string { return q.prefix + ":" + name }

func (q *RedisQueue) save(ctx context.Context, job *models.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return q.client.HSet(ctx, q.key("jobs"), job.ID, body).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) error {
	now := q.now()
	prepare(job, now, q.maxAttempts)
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	if job.DedupeKey != nil {
		added, err := q.client.SetNX(ctx, q.key("dedupe:"+*job.DedupeKey), job.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("reserve dedupe key: %w", err)
		}
		if !added {
			return ErrDuplicateJob
		}
	}
	if err := q.save(ctx, job); err != nil {
		return err
	}
	if job.AvailableAt.After(now) {
		return q.client.ZAdd(ctx, q.key("delayed"), &redis.Z{
			Score:  float64(job.AvailableAt.UnixMilli()),
			Member: job.ID,
		}).Err()
	}
	return q.client.LPush(ctx, q.key("ready"), job.ID).Err()
}

// promote moves delayed jobs whose time has come onto the ready list.
func (q *RedisQueue) promote(ctx context.Context, now time.Time) error {
	due, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range due {
		// 只有成功移除的一方负责推入 ready，避免多个 worker 重复推送
		removed, err := q.client.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return err
		}
		if removed > 0 {
			if err := q.client.LPush(ctx, q.key("ready"), id).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	now := q.now()
	if err := q.promote(ctx, now); err != nil {
		return nil, fmt.Errorf("promote delayed jobs: %w", err)
	}

	id, err := q.client.RPopLPush(ctx, q.key("ready"), q.key("processing")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop ready job: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.key("claimed"), &redis.Z{Score: float64(now.UnixMilli()), Member: id}).Err(); err != nil {
		return nil, fmt.Errorf("record claim of job %s: %w", id, err)
	}

	body, err := q.client.HGet(ctx, q.key("jobs"), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			q.release(ctx, id)
			return nil, nil
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		q.release(ctx, id)
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	job.Status = models.JobStatusRunning
	job.Attempts++
	job.LockedAt = &now
	job.UpdatedAt = now
	if err := q.save(ctx, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *models.Job) error {
	job.Status = models.JobStatusDone
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.key("processing"), 1, job.ID)
	pipe.ZRem(ctx, q.key("claimed"), job.ID)
	pipe.HDel(ctx, q.key("jobs"), job.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Fail(ctx context.Context, job *models.Job, cause error) error {
	now := q.now()
	msg := fmt.Sprint(cause)
	job.LastError = &msg
	job.LockedAt = nil
	job.UpdatedAt = now

	if shouldGiveUp(job, cause) {
		job.Status = models.JobStatusFailed
		if err := q.save(ctx, job); err != nil {
			return err
		}
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.key("processing"), 1, job.ID)
		pipe.ZRem(ctx, q.key("claimed"), job.ID)
		pipe.LPush(ctx, q.key("failed"), job.ID)
		_, err := pipe.Exec(ctx)
		return err
	}

	job.Status = models.JobStatusPending
	job.AvailableAt = now.Add(RetryDelay(job.Attempts))
	if err := q.save(ctx, job); err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.key("processing"), 1, job.ID)
	pipe.ZRem(ctx, q.key("claimed"), job.ID)
	pipe.ZAdd(ctx, q.key("delayed"), &redis.Z{Score: float64(job.AvailableAt.UnixMilli()), Member: job.ID})
	_, err := pipe.Exec(ctx)
	return err
}

// release drops an id that cannot be processed from the processing bookkeeping.
func (q *RedisQueue) release(ctx context.Context, id string) {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.key("processing"), 1, id)
	pipe.ZRem(ctx, q.key("claimed"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("jobID", id).Warn("failed to release job claim")
	}
}

// RequeueStale puts jobs claimed before now-olderThan back on the ready list,
// recovering work from crashed workers. The attempt already counted stays counted.
func (q *RedisQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now()
	stale, err := q.client.ZRangeByScore(ctx, q.key("claimed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Add(-olderThan).UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	var requeued int64
	for _, id := range stale {
		// 只有成功移除 claim 的一方负责回收，避免重复推送
		removed, err := q.client.ZRem(ctx, q.key("claimed"), id).Result()
		if err != nil {
			return requeued, err
		}
		if removed == 0 {
			continue
		}
		// worker 已经 Complete/Fail 时 processing 里没有这个 id
		taken, err := q.client.LRem(ctx, q.key("processing"), 1, id).Result()
		if err != nil {
			return requeued, err
		}
		if taken == 0 {
			continue
		}

		body, err := q.client.HGet(ctx, q.key("jobs"), id).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return requeued, fmt.Errorf("load job %s: %w", id, err)
		}
		var job models.Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			log.WithError(err).WithField("jobID", id).Error("dropping undecodable stale job")
			continue
		}
		job.Status = models.JobStatusPending
		job.LockedAt = nil
		job.UpdatedAt = now
		if err := q.save(ctx, &job); err != nil {
			return requeued, err
		}
		if err := q.client.LPush(ctx, q.key("ready"), id).Err(); err != nil {
			return requeued, err
		}
		log.WithFields(log.Fields{"jobID": id, "jobType": job.Type}).Warn("requeued stale job")
		requeued++
	}
	return requeued, nil
}
