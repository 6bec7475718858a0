// Package queue provides the at-least-once job queue that drives the feedback workflows.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/feedback_management/internal/models"
)

// 任务类型
const (
	TypeGenerateReply = "generate_reply"
	TypeEscalateReply = "escalate_reply"
	TypeSendReminder  = "send_reminder"
	TypeSyncReviews   = "sync_reviews"
)

const (
	DefaultMaxAttempts = 5
	retryBaseDelay     = 5 * time.Second
	retryMaxDelay      = 10 * time.Minute
)

var (
	// ErrDuplicateJob is returned by Enqueue when a job with the same dedupe key exists.
	ErrDuplicateJob = errors.New("job with the same dedupe key already enqueued")
	// ErrPermanent marks failures that must not be retried.
	ErrPermanent = errors.New("permanent job failure")
)

// Enqueuer submits jobs. Services depend on this narrow interface.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Queue is an at-least-once job queue. Dequeue returns (nil, nil) when no job is ready.
type Queue interface {
	Enqueuer
	Dequeue(ctx context.Context) (*models.Job, error)
	Complete(ctx context.Context, job *models.Job) error
	// Fail reschedules the job with backoff, or marks it failed when the error is
	// permanent or the attempts are exhausted.
	Fail(ctx context.Context, job *models.Job, cause error) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Is(target error) bool {
	return target == ErrPermanent
}

// Permanent wraps err so the worker does not retry it.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// RetryDelay is the pause before attempt number attempts+1.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

func shouldGiveUp(job *models.Job, cause error) bool {
	return IsPermanent(cause) || job.Attempts >= job.MaxAttempts
}

// Payloads

type GenerateReplyPayload struct {
	FeedbackID string `json:"feedbackId"`
}

type EscalateReplyPayload struct {
	RequestID string `json:"requestId"`
	ReplyID   string `json:"replyId"`
}

type SendReminderPayload struct {
	RequestID string `json:"requestId"`
}

type SyncReviewsPayload struct {
	CompanyID string `json:"companyId"`
}

// NewJob builds a pending job available as soon as it is enqueued.
// An empty dedupeKey disables deduplication.
func NewJob(jobType string, payload interface{}, dedupeKey string) (*models.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	job := &models.Job{
		Type:    jobType,
		Payload: datatypes.JSON(data),
		Status:  models.JobStatusPending,
	}
	if dedupeKey != "" {
		job.DedupeKey = &dedupeKey
	}
	return job, nil
}

// DecodePayload unmarshals the job payload. A malformed payload is permanent.
func DecodePayload(job *models.Job, v interface{}) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", job.Type, err))
	}
	return nil
}

// EscalationDedupeKey identifies the single escalation allowed per reply.
func EscalationDedupeKey(replyID string) string {
	return "escalation:" + replyID
}

// ReminderDedupeKey identifies the single scheduled reminder per request.
func ReminderDedupeKey(requestID string) string {
	return "reminder:" + requestID
}

// GenerateReplyDedupeKey identifies the automatic reply job for a feedback.
func GenerateReplyDedupeKey(feedbackID string) string {
	return "reply:" + feedbackID
}

func prepare(job *models.Job, now time.Time, maxAttempts int) {
	job.Status = models.JobStatusPending
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = maxAttempts
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
}
