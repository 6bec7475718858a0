package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
)

func TestReplyWorkflowPositiveFeedbackStaysPending(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	customer := f.customer(company.ID)
	request := f.sentRequest(company.ID, customer.ID, time.Now().Add(-time.Hour))
	feedback := f.submitted(request, intPtr(5), "Great coffee, friendly staff")
	f.provider.replies = []string{"  Thank you Dana, we are glad you enjoyed it!  "}

	reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, models.ReplyStatusPending, reply.Status)
	assert.Equal(t, models.ResponderAI, reply.ResponderKind)
	assert.Equal(t, "Thank you Dana, we are glad you enjoyed it!", reply.Content)
	require.NotNil(t, reply.Provider)
	assert.Equal(t, "fake:model", *reply.Provider)
	require.NotNil(t, reply.Language)
	assert.Equal(t, "en", *reply.Language)
	assert.Empty(t, f.queue.ofType(queue.TypeEscalateReply))

	// prompt 中带上了客户名、公司名和正面情绪引导
	require.Len(t, f.provider.prompts, 1)
	assert.Contains(t, f.provider.prompts[0], "Dana")
	assert.Contains(t, f.provider.prompts[0], "Acme Coffee")
}

func TestReplyWorkflowNegativeFeedbackEscalatesEndToEnd(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	customer := f.customer(company.ID)
	manager := f.user(company.ID, models.RoleManager, strPtr("manager@acme.test"))
	request := f.sentRequest(company.ID, customer.ID, time.Now().Add(-time.Hour))
	feedback := f.submitted(request, intPtr(1), "Cold food, rude staff")
	f.provider.replies = []string{"We are sorry about your visit, Dana."}

	reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusPending, reply.Status)

	jobs := f.queue.ofType(queue.TypeEscalateReply)
	require.Len(t, jobs, 1)
	var payload queue.EscalateReplyPayload
	require.NoError(t, queue.DecodePayload(jobs[0], &payload))
	assert.Equal(t, request.ID, payload.RequestID)
	assert.Equal(t, reply.ID, payload.ReplyID)

	task, err := f.escalationWorkflow().Run(f.ctx, payload.RequestID, payload.ReplyID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPriorityCritical, task.Priority)
	assert.Equal(t, models.TaskStatusOpen, task.Status)
	assert.Equal(t, "Escalation: negative feedback from Dana", task.Title)
	assert.Contains(t, task.Description, "Cold food, rude staff")
	assert.Contains(t, task.Description, "We are sorry about your visit, Dana.")
	require.NotNil(t, task.AssignedTo)
	assert.Equal(t, manager.ID, *task.AssignedTo)
	assert.WithinDuration(t, reply.CreatedAt.Add(4*time.Hour), task.DueDate, time.Second)

	assert.Equal(t, 1, f.mailer.count("escalation"))
	assert.Equal(t, "manager@acme.test", f.mailer.sent[0].to)

	stored, err := f.replies.GetByID(f.ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusEscalated, stored.Status)
}

func TestReplyWorkflowRespectsEscalationThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		rating    int
		escalate  bool
	}{
		{name: "below threshold", threshold: 2, rating: 1, escalate: true},
		{name: "at threshold", threshold: 2, rating: 2, escalate: true},
		{name: "above threshold", threshold: 2, rating: 3, escalate: false},
		{name: "custom threshold", threshold: 3, rating: 3, escalate: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			company := f.company()
			policy, err := f.policies.GetOrCreate(f.ctx, company.ID)
			require.NoError(t, err)
			policy.EscalateThreshold = tt.threshold
			require.NoError(t, f.policies.Update(f.ctx, policy))

			request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
			feedback := f.submitted(request, intPtr(tt.rating), "service")

			_, err = f.replyWorkflow().Run(f.ctx, feedback.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.escalate, len(f.queue.ofType(queue.TypeEscalateReply)) == 1)
		})
	}
}

func TestReplyWorkflowAutoReplyDisabled(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	policy, err := f.policies.GetOrCreate(f.ctx, company.ID)
	require.NoError(t, err)
	policy.AutoReplyEnabled = false
	require.NoError(t, f.policies.Update(f.ctx, policy))

	request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
	feedback := f.submitted(request, intPtr(1), "terrible")

	reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Zero(t, f.provider.calls)
	assert.Zero(t, f.countReplies(feedback.ID))
	assert.Empty(t, f.queue.jobs)
}

func TestReplyWorkflowProviderFailureStoresFailedReply(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
	feedback := f.submitted(request, intPtr(1), "Cold food")
	f.provider.errs = []error{serverError()}

	reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.Error(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, models.ReplyStatusFailed, reply.Status)
	assert.Equal(t, models.FailedReplyPlaceholder, reply.Content)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(reply.ProviderResponse, &details))
	assert.EqualValues(t, 500, details["status_code"])
	assert.Equal(t, "upstream down", details["body"])

	// 失败时不升级
	assert.Empty(t, f.queue.ofType(queue.TypeEscalateReply))

	// 队列重试：复用同一行，成功后转为 pending 并升级
	f.provider.replies = []string{"", "Sorry to hear that."}
	retried, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, retried.ID)
	assert.Equal(t, models.ReplyStatusPending, retried.Status)
	assert.Equal(t, "Sorry to hear that.", retried.Content)
	assert.EqualValues(t, 1, f.countReplies(feedback.ID))
	assert.Len(t, f.queue.ofType(queue.TypeEscalateReply), 1)
}

func TestReplyWorkflowRerunDoesNotDuplicate(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
	feedback := f.submitted(request, intPtr(2), "Slow")

	first, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	second, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.provider.calls)
	assert.EqualValues(t, 1, f.countReplies(feedback.ID))
	assert.Len(t, f.queue.ofType(queue.TypeEscalateReply), 1)
}

func TestReplyWorkflowLanguageSelection(t *testing.T) {
	t.Run("request language wins", func(t *testing.T) {
		f := newFixture(t)
		company := f.company()
		policy, err := f.policies.GetOrCreate(f.ctx, company.ID)
		require.NoError(t, err)
		policy.Language = "fr"
		require.NoError(t, f.policies.Update(f.ctx, policy))

		request := &models.FeedbackRequest{CompanyID: company.ID, CustomerID: f.customer(company.ID).ID, Channel: models.ChannelQR, Status: models.DeliveryStatusGenerated, Language: strPtr("de")}
		require.NoError(t, f.requests.Create(f.ctx, request))
		feedback := f.submitted(request, intPtr(4), "Gut")

		reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
		require.NoError(t, err)
		assert.Equal(t, "de", *reply.Language)
		assert.Contains(t, f.provider.prompts[0], "German")
	})

	t.Run("policy language used when request has none", func(t *testing.T) {
		f := newFixture(t)
		company := f.company()
		policy, err := f.policies.GetOrCreate(f.ctx, company.ID)
		require.NoError(t, err)
		policy.Language = "fr"
		require.NoError(t, f.policies.Update(f.ctx, policy))

		request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
		feedback := f.submitted(request, intPtr(4), "Bien")

		reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
		require.NoError(t, err)
		assert.Equal(t, "fr", *reply.Language)
	})
}

func TestReplyWorkflowRatingWithoutComment(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
	feedback := f.submitted(request, intPtr(4), "")

	reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.True(t, strings.Contains(f.provider.prompts[0], "4-star rating"))
}

func TestReplyWorkflowMissingFeedbackIsPermanent(t *testing.T) {
	f := newFixture(t)
	_, err := f.replyWorkflow().Run(f.ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeedbackNotFound)
	assert.True(t, queue.IsPermanent(err))
}

func TestReplyWorkflowExternalReviewUsesReviewerName(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	fb := &models.Feedback{
		CompanyID:    company.ID,
		Rating:       intPtr(1),
		Comment:      "Never again",
		IsPublic:     true,
		Source:       models.FeedbackSourceGoogle,
		ExternalID:   strPtr("g-1"),
		ReviewerName: strPtr("Sam Reviewer"),
	}
	require.NoError(t, f.feedbacks.Create(f.ctx, fb))

	reply, err := f.replyWorkflow().Run(f.ctx, fb.ID)
	require.NoError(t, err)
	assert.Contains(t, f.provider.prompts[0], "Sam Reviewer")

	jobs := f.queue.ofType(queue.TypeEscalateReply)
	require.Len(t, jobs, 1)
	var payload queue.EscalateReplyPayload
	require.NoError(t, queue.DecodePayload(jobs[0], &payload))
	assert.Empty(t, payload.RequestID)

	task, err := f.escalationWorkflow().Run(f.ctx, payload.RequestID, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, task.FeedbackRequestID)
	assert.Equal(t, "Escalation: negative feedback from Sam Reviewer", task.Title)
}
