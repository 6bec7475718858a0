package repositories

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/pkg/db/dbtest"
)

func seedCompany(t *testing.T, conn *gorm.DB) *models.Company {
	t.Helper()
	company := &models.Company{Name: "Acme", Slug: "acme-" + time.Now().Format("150405.000000")}
	require.NoError(t, NewGormCompanyRepository(conn).Create(context.Background(), company))
	return company
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestResponsePolicyGetOrCreateDefaults(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	company := seedCompany(t, conn)
	repo := NewGormResponsePolicyRepository(conn)

	policy, err := repo.GetOrCreate(ctx, company.ID)
	require.NoError(t, err)
	assert.True(t, policy.AutoReplyEnabled)
	assert.Equal(t, models.ToneProfessional, policy.Tone)
	assert.Equal(t, 2, policy.EscalateThreshold)
	assert.Equal(t, models.RoleManager, policy.EscalateToRole)

	// 第二次调用必须返回同一条记录
	again, err := repo.GetOrCreate(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.ID, again.ID)

	again.AutoReplyEnabled = false
	require.NoError(t, repo.Update(ctx, again))
	reloaded, err := repo.GetOrCreate(ctx, company.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.AutoReplyEnabled)

	var count int64
	require.NoError(t, conn.Model(&models.ResponsePolicy{}).Where("company_id = ?", company.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPublicSummaryExcludesPrivateFeedback(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	company := seedCompany(t, conn)
	repo := NewGormFeedbackRepository(conn)

	rows := []models.Feedback{
		{CompanyID: company.ID, Rating: intPtr(5), Comment: "great", IsPublic: true, IsPinned: true, Source: models.FeedbackSourceManual},
		{CompanyID: company.ID, Rating: intPtr(3), Comment: "ok", IsPublic: true, Source: models.FeedbackSourceManual},
		{CompanyID: company.ID, Rating: intPtr(1), Comment: "hidden", IsPublic: false, IsPinned: true, Source: models.FeedbackSourceManual},
		{CompanyID: company.ID, Comment: "no rating", IsPublic: true, Source: models.FeedbackSourceManual},
	}
	for i := range rows {
		require.NoError(t, repo.Create(ctx, &rows[i]))
	}

	summary, err := repo.PublicSummary(ctx, company.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.TotalCount)
	assert.EqualValues(t, 2, summary.RatedCount)
	assert.InDelta(t, 4.0, summary.AverageRating, 0.0001)
	assert.Equal(t, map[int]int{5: 1, 3: 1}, summary.Distribution)
	require.Len(t, summary.Pinned, 1)
	assert.Equal(t, "great", summary.Pinned[0].Comment)
}

func TestExistingExternalIDs(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	company := seedCompany(t, conn)
	repo := NewGormFeedbackRepository(conn)

	require.NoError(t, repo.Create(ctx, &models.Feedback{
		CompanyID: company.ID, Source: models.FeedbackSourceGoogle, ExternalID: strPtr("r-1"), IsPublic: true,
	}))

	existing, err := repo.ExistingExternalIDs(ctx, company.ID, models.FeedbackSourceGoogle, []string{"r-1", "r-2"})
	require.NoError(t, err)
	assert.True(t, existing["r-1"])
	assert.False(t, existing["r-2"])

	// 同一公司同一外部 ID 不能插入两次
	err = repo.Create(ctx, &models.Feedback{
		CompanyID: company.ID, Source: models.FeedbackSourceGoogle, ExternalID: strPtr("r-1"), IsPublic: true,
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestReplyTransitionStatusOnlyFromPending(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	repo := NewGormFeedbackReplyRepository(conn)

	reply := &models.FeedbackReply{FeedbackID: "f-1", ResponderKind: models.ResponderAI, Content: "hi", Status: models.ReplyStatusPending}
	require.NoError(t, repo.Create(ctx, reply))

	changed, err := repo.TransitionStatus(ctx, reply.ID, models.ReplyStatusPending, models.ReplyStatusEscalated)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.TransitionStatus(ctx, reply.ID, models.ReplyStatusPending, models.ReplyStatusSent)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.TransitionStatus(ctx, reply.ID, models.ReplyStatusEscalated, models.ReplyStatusPending)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusEscalated, got.Status)
}

func TestReplyOverwriteOnlyReplacesFailedRow(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	repo := NewGormFeedbackReplyRepository(conn)

	reply := &models.FeedbackReply{FeedbackID: "f-2", ResponderKind: models.ResponderAI, Content: models.FailedReplyPlaceholder, Status: models.ReplyStatusFailed}
	require.NoError(t, repo.Create(ctx, reply))

	reply.Content = "Sorry to hear that."
	reply.Status = models.ReplyStatusPending
	require.NoError(t, repo.Overwrite(ctx, reply))

	got, err := repo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusPending, got.Status)
	assert.Equal(t, "Sorry to hear that.", got.Content)

	// 该行已被改写，第二次重写必须报错而不是静默成功
	reply.Content = "Another draft"
	assert.ErrorIs(t, repo.Overwrite(ctx, reply), ErrReplyChanged)

	got, err = repo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sorry to hear that.", got.Content)
}

func TestTaskCreateRejectsSecondTaskForReply(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	repo := NewGormTaskRepository(conn)

	replyID := "reply-1"
	first := &models.Task{CompanyID: "c-1", FeedbackReplyID: &replyID, Title: "t", Priority: models.TaskPriorityCritical, Status: models.TaskStatusOpen, DueDate: time.Now()}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.Task{CompanyID: "c-1", FeedbackReplyID: &replyID, Title: "t", Priority: models.TaskPriorityCritical, Status: models.TaskStatusOpen, DueDate: time.Now()}
	assert.ErrorIs(t, repo.Create(ctx, second), ErrTaskExists)

	found, err := repo.FindByReplyID(ctx, replyID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := repo.FindByReplyID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindDueForReminder(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	repo := NewGormFeedbackRequestRepository(conn)
	now := time.Now()
	old := now.Add(-72 * time.Hour)
	recent := now.Add(-time.Hour)

	due := &models.FeedbackRequest{CompanyID: "c", CustomerID: "x", Channel: models.ChannelEmail, Status: models.DeliveryStatusSent, SentAt: &old}
	fresh := &models.FeedbackRequest{CompanyID: "c", CustomerID: "x", Channel: models.ChannelEmail, Status: models.DeliveryStatusSent, SentAt: &recent}
	answered := &models.FeedbackRequest{CompanyID: "c", CustomerID: "x", Channel: models.ChannelEmail, Status: models.DeliveryStatusSent, SentAt: &old, RespondedAt: &recent}
	sms := &models.FeedbackRequest{CompanyID: "c", CustomerID: "x", Channel: models.ChannelSMS, Status: models.DeliveryStatusSent, SentAt: &old}
	for _, r := range []*models.FeedbackRequest{due, fresh, answered, sms} {
		require.NoError(t, repo.Create(ctx, r))
	}

	found, err := repo.FindDueForReminder(ctx, now.Add(-48*time.Hour), now, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)

	require.NoError(t, repo.MarkReminderSent(ctx, due.ID, now))
	found, err = repo.FindDueForReminder(ctx, now.Add(-48*time.Hour), now, 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	reloaded, err := repo.GetByID(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.ReminderCount)
}

func TestReviewSyncRunAppendsErrors(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	repo := NewGormReviewSyncRunRepository(conn)

	run := &models.ReviewSyncRun{CompanyID: "c", Provider: "google", Status: models.SyncStatusInProgress, StartedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, run))

	require.NoError(t, repo.UpdateCountsAndStatus(ctx, run.ID, ReviewSyncCounts{Fetched: 3, Synced: 1, Errors: 1},
		models.SyncStatusInProgress, []models.ReviewSyncError{{ExternalID: "a", Reason: "boom"}}, nil))
	finished := time.Now()
	require.NoError(t, repo.UpdateCountsAndStatus(ctx, run.ID, ReviewSyncCounts{Skipped: 1, Errors: 1},
		models.SyncStatusCompletedWithErrors, []models.ReviewSyncError{{ExternalID: "b", Reason: "bad"}}, &finished))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FetchedCount)
	assert.Equal(t, 1, got.SyncedCount)
	assert.Equal(t, 1, got.SkippedCount)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, models.SyncStatusCompletedWithErrors, got.Status)
	require.NotNil(t, got.FinishedAt)

	var errs []models.ReviewSyncError
	require.NoError(t, json.Unmarshal(got.ErrorSummary, &errs))
	assert.Len(t, errs, 2)
}

func TestCreateSubmissionAcceptsOnlyOneResponse(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	company := seedCompany(t, conn)
	requests := NewGormFeedbackRequestRepository(conn)
	feedbacks := NewGormFeedbackRepository(conn)

	request := &models.FeedbackRequest{CompanyID: company.ID, CustomerID: "cust", Channel: models.ChannelQR, Status: models.DeliveryStatusGenerated}
	require.NoError(t, requests.Create(ctx, request))

	now := time.Now()
	first := &models.Feedback{CompanyID: company.ID, FeedbackRequestID: &request.ID, Rating: intPtr(4), Comment: "nice", IsPublic: true, Source: models.FeedbackSourceManual}
	require.NoError(t, feedbacks.CreateSubmission(ctx, first, now))

	second := &models.Feedback{CompanyID: company.ID, FeedbackRequestID: &request.ID, Rating: intPtr(1), Comment: "again", IsPublic: true, Source: models.FeedbackSourceManual}
	assert.ErrorIs(t, feedbacks.CreateSubmission(ctx, second, now), ErrRequestAlreadyResponded)

	reloaded, err := requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.RespondedAt)
	require.NotNil(t, reloaded.FeedbackText)
	assert.Equal(t, "nice", *reloaded.FeedbackText)

	got, err := feedbacks.GetByRequestID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}
