package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
)

func TestSubmitFeedback(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now().Add(-time.Hour))
	svc := f.feedbackService()

	feedback, err := svc.Submit(f.ctx, request.Token, SubmitFeedbackInput{Rating: intPtr(2), Comment: "  Too slow  "})
	require.NoError(t, err)
	assert.Equal(t, "Too slow", feedback.Comment)
	assert.True(t, feedback.IsPublic)
	assert.Equal(t, models.FeedbackSourceManual, feedback.Source)
	assert.Equal(t, company.ID, feedback.CompanyID)

	stored, err := f.requests.GetByID(f.ctx, request.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RespondedAt)
	require.NotNil(t, stored.FeedbackText)
	assert.Equal(t, "Too slow", *stored.FeedbackText)

	jobs := f.queue.ofType(queue.TypeGenerateReply)
	require.Len(t, jobs, 1)
	var payload queue.GenerateReplyPayload
	require.NoError(t, queue.DecodePayload(jobs[0], &payload))
	assert.Equal(t, feedback.ID, payload.FeedbackID)

	_, err = svc.Submit(f.ctx, request.Token, SubmitFeedbackInput{Rating: intPtr(5)})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmitFeedbackValidation(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	customer := f.customer(company.ID)
	svc := f.feedbackService()

	expired := f.sentRequest(company.ID, customer.ID, time.Now().Add(-40*24*time.Hour))
	open := f.sentRequest(company.ID, customer.ID, time.Now())

	tests := []struct {
		name  string
		token string
		input SubmitFeedbackInput
		want  error
	}{
		{name: "unknown token", token: "nope", input: SubmitFeedbackInput{Rating: intPtr(3)}, want: ErrTokenInvalid},
		{name: "expired", token: expired.Token, input: SubmitFeedbackInput{Rating: intPtr(3)}, want: ErrTokenInvalid},
		{name: "rating too high", token: open.Token, input: SubmitFeedbackInput{Rating: intPtr(6)}, want: ErrInvalidRating},
		{name: "rating zero", token: open.Token, input: SubmitFeedbackInput{Rating: intPtr(0)}, want: ErrInvalidRating},
		{name: "empty", token: open.Token, input: SubmitFeedbackInput{Comment: "   "}, want: ErrEmptySubmission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(f.ctx, tt.token, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.queue.jobs)
}

func TestSubmitFeedbackSurvivesEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
	f.queue.err = errors.New("queue down")

	feedback, err := f.feedbackService().Submit(f.ctx, request.Token, SubmitFeedbackInput{Comment: "just a comment"})
	require.NoError(t, err)
	assert.Nil(t, feedback.Rating)
}

func TestPublicSummaryHonoursVisibility(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	customer := f.customer(company.ID)
	svc := f.feedbackService()

	good := f.submitted(f.sentRequest(company.ID, customer.ID, time.Now()), intPtr(5), "great")
	bad := f.submitted(f.sentRequest(company.ID, customer.ID, time.Now()), intPtr(1), "awful")

	summary, err := svc.PublicSummary(f.ctx, company.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.TotalCount)

	hidden, err := svc.SetVisibility(f.ctx, company.ID, bad.ID, false)
	require.NoError(t, err)
	assert.False(t, hidden.IsPublic)

	pinned, err := svc.TogglePin(f.ctx, company.ID, good.ID)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)

	summary, err = svc.PublicSummary(f.ctx, company.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.TotalCount)
	assert.InDelta(t, 5.0, summary.AverageRating, 0.001)
	require.Len(t, summary.Pinned, 1)
	assert.Equal(t, good.ID, summary.Pinned[0].ID)
}

func TestFeedbackIsCompanyScoped(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	other := f.company()
	feedback := f.submitted(f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now()), intPtr(3), "ok")
	svc := f.feedbackService()

	_, err := svc.Get(f.ctx, other.ID, feedback.ID)
	assert.ErrorIs(t, err, ErrFeedbackNotFound)
	_, err = svc.Resolve(f.ctx, other.ID, feedback.ID, nil)
	assert.ErrorIs(t, err, ErrFeedbackNotFound)
}

func TestResolveAndManualReply(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	operator := f.user(company.ID, models.RoleAdmin, nil)
	feedback := f.submitted(f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now()), intPtr(2), "meh")
	svc := f.feedbackService()

	resolved, err := svc.Resolve(f.ctx, company.ID, feedback.ID, strPtr("  called the customer "))
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "called the customer", *resolved.ResolutionNote)

	_, err = svc.AddManualReply(f.ctx, company.ID, feedback.ID, operator.ID, "  ")
	assert.ErrorIs(t, err, ErrEmptyReply)

	reply, err := svc.AddManualReply(f.ctx, company.ID, feedback.ID, operator.ID, "We called you back.")
	require.NoError(t, err)
	assert.Equal(t, models.ResponderAdmin, reply.ResponderKind)
	assert.Equal(t, models.ReplyStatusSent, reply.Status)
	require.NotNil(t, reply.ResponderID)
	assert.Equal(t, operator.ID, *reply.ResponderID)

	detail, err := svc.Get(f.ctx, company.ID, feedback.ID)
	require.NoError(t, err)
	require.Len(t, detail.Replies, 1)
	assert.NotNil(t, detail.ResolvedAt)
}

func TestSendReplyOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	feedback := f.submitted(f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now()), intPtr(4), "nice")
	reply, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	svc := f.feedbackService()

	sent, err := svc.SendReply(f.ctx, company.ID, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusSent, sent.Status)

	_, err = svc.SendReply(f.ctx, company.ID, reply.ID)
	assert.ErrorIs(t, err, ErrReplyNotPending)

	other := f.company()
	_, err = svc.SendReply(f.ctx, other.ID, reply.ID)
	assert.ErrorIs(t, err, ErrReplyNotFound)
}

func TestRegenerateReply(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	feedback := f.submitted(f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now()), intPtr(4), "nice")
	svc := f.feedbackService()

	f.provider.errs = []error{serverError()}
	_, err := f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.Error(t, err)

	require.NoError(t, svc.RegenerateReply(f.ctx, company.ID, feedback.ID))
	assert.Len(t, f.queue.ofType(queue.TypeGenerateReply), 1)

	_, err = f.replyWorkflow().Run(f.ctx, feedback.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RegenerateReply(f.ctx, company.ID, feedback.ID), ErrReplyExists)
}
