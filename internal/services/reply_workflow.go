package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/feedback_management/internal/ai"
	"github.com/feedback_management/internal/events"
	"github.com/feedback_management/internal/metrics"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/internal/repositories"
)

// ReplyGenerator drafts reply text. *ai.ReplyGenerator satisfies it.
type ReplyGenerator interface {
	Generate(ctx context.Context, req ai.ReplyRequest) (*ai.ReplyResult, error)
	ProviderName() string
}

// ReplyWorkflow drafts an AI reply for new feedback and hands negative
// feedback to the escalation workflow.
type ReplyWorkflow struct {
	feedbackRepo repositories.FeedbackRepository
	requestRepo  repositories.FeedbackRequestRepository
	companyRepo  repositories.CompanyRepository
	customerRepo repositories.CustomerRepository
	policyRepo   repositories.ResponsePolicyRepository
	replyRepo    repositories.FeedbackReplyRepository
	generator    ReplyGenerator
	enqueuer     queue.Enqueuer
	publisher    events.Publisher
}

// NewReplyWorkflow wires the workflow dependencies.
func NewReplyWorkflow(
	feedbackRepo repositories.FeedbackRepository,
	requestRepo repositories.FeedbackRequestRepository,
	companyRepo repositories.CompanyRepository,
	customerRepo repositories.CustomerRepository,
	policyRepo repositories.ResponsePolicyRepository,
	replyRepo repositories.FeedbackReplyRepository,
	generator ReplyGenerator,
	enqueuer queue.Enqueuer,
	publisher events.Publisher,
) *ReplyWorkflow {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ReplyWorkflow{
		feedbackRepo: feedbackRepo,
		requestRepo:  requestRepo,
		companyRepo:  companyRepo,
		customerRepo: customerRepo,
		policyRepo:   policyRepo,
		replyRepo:    replyRepo,
		generator:    generator,
		enqueuer:     enqueuer,
		publisher:    publisher,
	}
}

// Run executes the workflow for one feedback. It returns (nil, nil) when the
// policy disables auto-replies. A failed generation still writes a failed reply
// and returns both the reply and the error, so the queue can retry.
func (w *ReplyWorkflow) Run(ctx context.Context, feedbackID string) (*models.FeedbackReply, error) {
	logger := log.WithField("feedbackID", feedbackID)

	feedback, err := w.feedbackRepo.GetByID(ctx, feedbackID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			logger.Warn("feedback not found, skipping reply generation")
			return nil, queue.Permanent(ErrFeedbackNotFound)
		}
		return nil, fmt.Errorf("load feedback %s: %w", feedbackID, err)
	}
	logger = logger.WithField("companyID", feedback.CompanyID)

	var request *models.FeedbackRequest
	if feedback.FeedbackRequestID != nil {
		request, err = w.requestRepo.GetByID(ctx, *feedback.FeedbackRequestID)
		if err != nil {
			if errors.Is(err, repositories.ErrRecordNotFound) {
				logger.WithField("requestID", *feedback.FeedbackRequestID).Warn("feedback request not found, skipping reply generation")
				return nil, queue.Permanent(ErrRequestNotFound)
			}
			return nil, fmt.Errorf("load feedback request: %w", err)
		}
		logger = logger.WithField("requestID", request.ID)
	}

	company, err := w.companyRepo.GetByID(ctx, feedback.CompanyID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			logger.Warn("company not found, skipping reply generation")
			return nil, queue.Permanent(ErrCompanyNotFound)
		}
		return nil, fmt.Errorf("load company: %w", err)
	}

	policy, err := w.policyRepo.GetOrCreate(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("load response policy: %w", err)
	}
	if !policy.ShouldAutoReply() {
		logger.Debug("auto reply disabled by policy")
		return nil, nil
	}

	// 重试时复用已有的 AI 回复，避免同一反馈产生多条回复
	existing, err := w.replyRepo.LatestAIReply(ctx, feedback.ID)
	if err != nil {
		return nil, fmt.Errorf("load existing reply: %w", err)
	}
	if existing != nil && existing.Status != models.ReplyStatusFailed {
		logger.WithField("replyID", existing.ID).Info("reply already exists, resuming escalation check")
		if existing.Status == models.ReplyStatusPending {
			if err := w.maybeEscalate(ctx, feedback, request, policy, existing); err != nil {
				return existing, err
			}
		}
		return existing, nil
	}

	text := feedbackText(feedback, request)
	if text == "" {
		logger.Info("feedback has neither comment nor rating, no reply drafted")
		return nil, nil
	}

	genReq := ai.ReplyRequest{
		FeedbackText: text,
		Rating:       feedback.Rating,
		CustomerName: w.customerName(ctx, feedback, request),
		Language:     requestedLanguage(request, policy),
		Tone:         string(policy.Tone),
		CompanyName:  company.Name,
		CommonIssues: commonIssues(policy),
	}
	if policy.CustomInstructions != nil {
		genReq.CustomInstructions = *policy.CustomInstructions
	}

	result, genErr := w.generator.Generate(ctx, genReq)

	reply := &models.FeedbackReply{
		FeedbackID:    feedback.ID,
		ResponderKind: models.ResponderAI,
	}
	if existing != nil {
		reply.ID = existing.ID
	}
	if genErr != nil {
		provider := w.generator.ProviderName()
		reply.Status = models.ReplyStatusFailed
		reply.Content = models.FailedReplyPlaceholder
		reply.Provider = &provider
		reply.ProviderResponse = failureDetails(genErr)
	} else {
		reply.Status = models.ReplyStatusPending
		reply.Content = result.Content
		reply.Provider = &result.Provider
		reply.ProviderResponse = datatypes.JSON(result.Raw)
		reply.Language = &result.Language
	}

	if err := w.saveReply(ctx, reply, existing != nil); err != nil {
		logger.WithError(err).Error("failed to persist reply")
		if genErr != nil {
			return nil, fmt.Errorf("generate reply: %w (persisting failed reply: %v)", genErr, err)
		}
		return nil, fmt.Errorf("persist reply: %w", err)
	}
	metrics.ObserveReply(string(reply.Status))
	logger = logger.WithField("replyID", reply.ID)

	if genErr != nil {
		logger.WithError(genErr).Error("reply generation failed, stored failed reply")
		return reply, fmt.Errorf("generate reply for feedback %s: %w", feedback.ID, genErr)
	}

	logger.Info("AI reply drafted")
	events.PublishQuietly(ctx, w.publisher, events.New(events.TypeReplyCreated, reply.ID, company.ID, map[string]interface{}{
		"feedbackId": feedback.ID,
		"status":     reply.Status,
		"language":   result.Language,
	}))

	if err := w.maybeEscalate(ctx, feedback, request, policy, reply); err != nil {
		return reply, err
	}
	return reply, nil
}

func (w *ReplyWorkflow) saveReply(ctx context.Context, reply *models.FeedbackReply, overwrite bool) error {
	if overwrite {
		return w.replyRepo.Overwrite(ctx, reply)
	}
	return w.replyRepo.Create(ctx, reply)
}

// maybeEscalate enqueues the escalation job once the reply is durably stored.
func (w *ReplyWorkflow) maybeEscalate(ctx context.Context, feedback *models.Feedback, request *models.FeedbackRequest, policy *models.ResponsePolicy, reply *models.FeedbackReply) error {
	if feedback.Rating == nil || !policy.ShouldEscalate(*feedback.Rating) {
		return nil
	}
	payload := queue.EscalateReplyPayload{ReplyID: reply.ID}
	if request != nil {
		payload.RequestID = request.ID
	}
	job, err := queue.NewJob(queue.TypeEscalateReply, payload, queue.EscalationDedupeKey(reply.ID))
	if err != nil {
		return err
	}
	if err := w.enqueuer.Enqueue(ctx, job); err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			return nil
		}
		return fmt.Errorf("enqueue escalation for reply %s: %w", reply.ID, err)
	}
	log.WithFields(log.Fields{
		"feedbackID": feedback.ID,
		"replyID":    reply.ID,
		"rating":     *feedback.Rating,
		"threshold":  policy.Threshold(),
	}).Info("escalation enqueued")
	return nil
}

func (w *ReplyWorkflow) customerName(ctx context.Context, feedback *models.Feedback, request *models.FeedbackRequest) string {
	if request != nil {
		customer, err := w.customerRepo.GetByID(ctx, request.CustomerID)
		if err == nil {
			return customer.DisplayName()
		}
		log.WithError(err).WithField("customerID", request.CustomerID).Debug("customer lookup failed, using generic greeting")
	}
	if feedback.ReviewerName != nil && *feedback.ReviewerName != "" {
		return *feedback.ReviewerName
	}
	return models.DefaultCustomerName
}

// requestedLanguage 语言优先级：请求记录的语言 > 策略固定语言 > 自动检测
func requestedLanguage(request *models.FeedbackRequest, policy *models.ResponsePolicy) string {
	if request != nil && request.Language != nil {
		if code, ok := ai.NormalizeLanguage(*request.Language); ok {
			return code
		}
	}
	if fixed := policy.FixedLanguage(); fixed != "" {
		return fixed
	}
	return ai.LanguageDetect
}

func feedbackText(feedback *models.Feedback, request *models.FeedbackRequest) string {
	if text := strings.TrimSpace(feedback.Comment); text != "" {
		return text
	}
	if request != nil && request.FeedbackText != nil {
		if text := strings.TrimSpace(*request.FeedbackText); text != "" {
			return text
		}
	}
	if feedback.Rating != nil {
		return fmt.Sprintf("The customer left a %d-star rating without a comment.", *feedback.Rating)
	}
	return ""
}

func failureDetails(err error) datatypes.JSON {
	var perr *ai.ProviderError
	if errors.As(err, &perr) {
		return datatypes.JSON(perr.Details())
	}
	encoded, marshalErr := json.Marshal(map[string]interface{}{"error": err.Error()})
	if marshalErr != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(encoded)
}
