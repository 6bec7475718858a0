package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/repositories"
)

// DatabaseQueue stores jobs in the jobs table. Workers claim rows with a
// conditional update, so several worker processes can share one database.
type DatabaseQueue struct {
	db          *gorm.DB
	now         func() time.Time
	maxAttempts int
}

// NewDatabaseQueue creates a queue backed by db.
func NewDatabaseQueue(db *gorm.DB) *DatabaseQueue {
	return &DatabaseQueue{db: db, now: time.Now, maxAttempts: DefaultMaxAttempts}
}

// SetMaxAttempts changes the attempt limit given to jobs that do not set one.
func (q *DatabaseQueue) SetMaxAttempts(n int) {
	if n > 0 {
		q.maxAttempts = n
	}
}

func (q *DatabaseQueue) Enqueue(ctx context.Context, job *models.Job) error {
	prepare(job, q.now(), q.maxAttempts)
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		if repositories.IsUniqueViolation(err) {
			return ErrDuplicateJob
		}
		return fmt.Errorf("enqueue %s job: %w", job.Type, err)
	}
	log.WithFields(log.Fields{"jobID": job.ID, "jobType": job.Type}).Debug("job enqueued")
	return nil
}

const claimRetries = 3

func (q *DatabaseQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	for i := 0; i < claimRetries; i++ {
		now := q.now()
		var candidate models.Job
		err := q.db.WithContext(ctx).
			Where("status = ? AND available_at <= ?", models.JobStatusPending, now).
			Order("available_at ASC").
			First(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("find pending job: %w", err)
		}

		// 条件更新抢占任务，其他 worker 抢先时重新查找
		result := q.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status = ?", candidate.ID, models.JobStatusPending).
			Updates(map[string]interface{}{
				"status":    models.JobStatusRunning,
				"locked_at": now,
				"attempts":  gorm.Expr("attempts + ?", 1),
			})
		if result.Error != nil {
			return nil, fmt.Errorf("claim job %s: %w", candidate.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}

		var claimed models.Job
		if err := q.db.WithContext(ctx).Where("id = ?", candidate.ID).First(&claimed).Error; err != nil {
			return nil, fmt.Errorf("reload job %s: %w", candidate.ID, err)
		}
		return &claimed, nil
	}
	return nil, nil
}

func (q *DatabaseQueue) Complete(ctx context.Context, job *models.Job) error {
	job.Status = models.JobStatusDone
	job.LockedAt = nil
	return q.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":    models.JobStatusDone,
		"locked_at": nil,
	}).Error
}

func (q *DatabaseQueue) Fail(ctx context.Context, job *models.Job, cause error) error {
	msg := fmt.Sprint(cause)
	updates := map[string]interface{}{
		"locked_at":  nil,
		"last_error": msg,
	}
	if shouldGiveUp(job, cause) {
		job.Status = models.JobStatusFailed
	} else {
		job.Status = models.JobStatusPending
		job.AvailableAt = q.now().Add(RetryDelay(job.Attempts))
		updates["available_at"] = job.AvailableAt
	}
	updates["status"] = job.Status
	job.LastError = &msg
	job.LockedAt = nil
	return q.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", job.ID).Updates(updates).Error
}

// RequeueStale returns running jobs locked before now-olderThan to the pending
// state, recovering work from crashed workers.
func (q *DatabaseQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now()
	result := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND locked_at < ?", models.JobStatusRunning, now.Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":       models.JobStatusPending,
			"locked_at":    nil,
			"available_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.WithField("count", result.RowsAffected).Warn("requeued stale jobs")
	}
	return result.RowsAffected, nil
}
