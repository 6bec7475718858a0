package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/pkg/db/dbtest"
)

func newTestQueue(t *testing.T) (*DatabaseQueue, *time.Time) {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := NewDatabaseQueue(dbtest.New(t))
	q.now = func() time.Time { return now }
	return q, &now
}

func TestDatabaseQueueDedupe(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := NewJob(TypeEscalateReply, EscalateReplyPayload{RequestID: "r", ReplyID: "x"}, EscalationDedupeKey("x"))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, first))

	second, err := NewJob(TypeEscalateReply, EscalateReplyPayload{RequestID: "r", ReplyID: "x"}, EscalationDedupeKey("x"))
	require.NoError(t, err)
	assert.ErrorIs(t, q.Enqueue(ctx, second), ErrDuplicateJob)

	// 没有去重键的任务可以重复提交
	for i := 0; i < 2; i++ {
		job, err := NewJob(TypeGenerateReply, GenerateReplyPayload{FeedbackID: "f"}, "")
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, job))
	}
}

func TestDatabaseQueueLifecycle(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	job, err := NewJob(TypeGenerateReply, GenerateReplyPayload{FeedbackID: "f-1"}, "")
	require.NoError(t, err)
	job.MaxAttempts = 2
	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, models.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	var payload GenerateReplyPayload
	require.NoError(t, DecodePayload(claimed, &payload))
	assert.Equal(t, "f-1", payload.FeedbackID)

	// 正在运行的任务不会被再次取出
	none, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, q.Fail(ctx, claimed, errors.New("provider down")))
	assert.Equal(t, models.JobStatusPending, claimed.Status)
	assert.Equal(t, now.Add(RetryDelay(1)), claimed.AvailableAt)

	none, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "job must wait for its backoff")

	*now = now.Add(time.Minute)
	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)

	require.NoError(t, q.Fail(ctx, again, errors.New("still down")))
	assert.Equal(t, models.JobStatusFailed, again.Status)
	require.NotNil(t, again.LastError)
	assert.Equal(t, "still down", *again.LastError)
}

func TestDatabaseQueuePermanentFailureSkipsRetry(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := NewJob(TypeSendReminder, SendReminderPayload{RequestID: "r"}, "")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, claimed, Permanent(errors.New("request not found"))))
	assert.Equal(t, models.JobStatusFailed, claimed.Status)
}

func TestDatabaseQueueRequeueStale(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	job, err := NewJob(TypeSyncReviews, SyncReviewsPayload{CompanyID: "c"}, "")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, job))
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	n, err := q.RequeueStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryDelay(0))
	assert.Equal(t, 5*time.Second, RetryDelay(1))
	assert.Equal(t, 10*time.Second, RetryDelay(2))
	assert.Equal(t, 20*time.Second, RetryDelay(3))
	assert.Equal(t, 10*time.Minute, RetryDelay(50))
}

func TestPermanent(t *testing.T) {
	base := errors.New("x")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
	assert.Same(t, err, Permanent(err))
}
