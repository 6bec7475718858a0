package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/pkg/google"
)

func (f *fixture) reviewSyncService() ReviewSyncService {
	return NewReviewSyncService(f.companies, f.feedbacks, f.runs, f.reviews, f.queue, nil)
}

func (f *fixture) connectedCompany() *models.Company {
	f.t.Helper()
	c := f.company()
	c.GoogleAccountID = strPtr("acc-1")
	c.GoogleLocationID = strPtr("loc-1")
	c.GoogleRefreshToken = strPtr("refresh")
	require.NoError(f.t, f.db.Save(c).Error)
	return c
}

func sampleReviews() []google.Review {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []google.Review{
		{ExternalID: "r1", Rating: intPtr(5), Comment: "Lovely", ReviewerName: "Ann", CreatedAt: created},
		{ExternalID: "r2", Rating: intPtr(2), Comment: "Slow service", ReviewerName: "Ben", CreatedAt: created},
		{ExternalID: "r3", Rating: nil, Comment: "", ReviewerName: "Cid", CreatedAt: created},
		{ExternalID: "r1", Rating: intPtr(5), Comment: "Lovely", ReviewerName: "Ann", CreatedAt: created},
	}
}

func TestReviewSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	company := f.connectedCompany()
	f.reviews.reviews = sampleReviews()
	svc := f.reviewSyncService()

	run, err := svc.Sync(f.ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, run.Status)
	assert.Equal(t, 4, run.FetchedCount)
	assert.Equal(t, 3, run.SyncedCount)
	assert.Equal(t, 1, run.SkippedCount)
	assert.NotNil(t, run.FinishedAt)

	again, err := svc.Sync(f.ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.SyncedCount)
	assert.Equal(t, 4, again.SkippedCount)

	var rows []models.Feedback
	require.NoError(t, f.db.Where("company_id = ?", company.ID).Order("external_id").Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, models.FeedbackSourceGoogle, row.Source)
		assert.True(t, row.IsPublic)
		assert.Nil(t, row.FeedbackRequestID)
	}
	assert.Equal(t, "Ann", *rows[0].ReviewerName)
	assert.Equal(t, 2, *rows[1].Rating)
	assert.Nil(t, rows[2].Rating)
}

func TestReviewSyncRecordsPerReviewErrors(t *testing.T) {
	f := newFixture(t)
	company := f.connectedCompany()
	f.reviews.reviews = []google.Review{
		{ExternalID: "ok", Rating: intPtr(4), Comment: "Good"},
		{ExternalID: "", Rating: intPtr(1), Comment: "no id"},
	}

	run, err := f.reviewSyncService().Sync(f.ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompletedWithErrors, run.Status)
	assert.Equal(t, 1, run.SyncedCount)
	assert.Equal(t, 1, run.ErrorCount)

	var summary []models.ReviewSyncError
	require.NoError(t, json.Unmarshal(run.ErrorSummary, &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, "review without id", summary[0].Reason)
}

func TestReviewSyncFetchFailureMarksRunFailed(t *testing.T) {
	f := newFixture(t)
	company := f.connectedCompany()
	f.reviews.err = errors.New("token revoked")

	_, err := f.reviewSyncService().Sync(f.ctx, company.ID)
	require.Error(t, err)

	runs, err := f.runs.ListForCompany(f.ctx, company.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.SyncStatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].ErrorCount)
}

func TestReviewSyncRequiresConnection(t *testing.T) {
	f := newFixture(t)
	company := f.company()

	_, err := f.reviewSyncService().Sync(f.ctx, company.ID)
	assert.ErrorIs(t, err, ErrNoExternalAccount)
	assert.Zero(t, f.reviews.calls)
}

func TestReviewSyncEnqueueAll(t *testing.T) {
	f := newFixture(t)
	connected := f.connectedCompany()
	f.company()

	n, err := f.reviewSyncService().EnqueueAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	jobs := f.queue.ofType(queue.TypeSyncReviews)
	require.Len(t, jobs, 1)
	var payload queue.SyncReviewsPayload
	require.NoError(t, queue.DecodePayload(jobs[0], &payload))
	assert.Equal(t, connected.ID, payload.CompanyID)
}
