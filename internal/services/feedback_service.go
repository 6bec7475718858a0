package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/events"
	"github.com/feedback_management/internal/metrics"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/internal/repositories"
)

// SubmitFeedbackInput 是客户在公开页面提交的内容
type SubmitFeedbackInput struct {
	Rating  *int   `json:"rating,omitempty"`
	Comment string `json:"comment" binding:"max=5000"`
}

// FeedbackDetail 是一条反馈及其全部回复
type FeedbackDetail struct {
	models.Feedback
	Replies []models.FeedbackReply `json:"replies"`
}

// FeedbackService 定义了反馈提交和管理服务的接口
type FeedbackService interface {
	Submit(ctx context.Context, token string, input SubmitFeedbackInput) (*models.Feedback, error)
	ListForCompany(ctx context.Context, companyID string, filters repositories.FeedbackFilters, page, limit int) ([]models.Feedback, int64, error)
	Get(ctx context.Context, companyID, feedbackID string) (*FeedbackDetail, error)
	Resolve(ctx context.Context, companyID, feedbackID string, note *string) (*models.Feedback, error)
	TogglePin(ctx context.Context, companyID, feedbackID string) (*models.Feedback, error)
	SetVisibility(ctx context.Context, companyID, feedbackID string, public bool) (*models.Feedback, error)
	// PublicSummary 只统计公开的反馈
	PublicSummary(ctx context.Context, companyID string) (*models.FeedbackSummary, error)
	AddManualReply(ctx context.Context, companyID, feedbackID string, userID int64, content string) (*models.FeedbackReply, error)
	// SendReply 把待处理的 AI 回复标记为已发送
	SendReply(ctx context.Context, companyID, replyID string) (*models.FeedbackReply, error)
	// RegenerateReply 为没有 AI 回复或回复生成失败的反馈重新入队生成任务
	RegenerateReply(ctx context.Context, companyID, feedbackID string) error
}

type feedbackService struct {
	feedbackRepo repositories.FeedbackRepository
	requestRepo  repositories.FeedbackRequestRepository
	replyRepo    repositories.FeedbackReplyRepository
	enqueuer     queue.Enqueuer
	publisher    events.Publisher
	now          func() time.Time
}

// NewFeedbackService 创建一个新的 FeedbackService 实例
func NewFeedbackService(
	feedbackRepo repositories.FeedbackRepository,
	requestRepo repositories.FeedbackRequestRepository,
	replyRepo repositories.FeedbackReplyRepository,
	enqueuer queue.Enqueuer,
	publisher events.Publisher,
) FeedbackService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &feedbackService{
		feedbackRepo: feedbackRepo,
		requestRepo:  requestRepo,
		replyRepo:    replyRepo,
		enqueuer:     enqueuer,
		publisher:    publisher,
		now:          time.Now,
	}
}

func (s *feedbackService) Submit(ctx context.Context, token string, input SubmitFeedbackInput) (*models.Feedback, error) {
	request, err := s.requestRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load feedback request: %w", err)
	}
	now := s.now()
	if request.RespondedAt != nil {
		return nil, ErrAlreadySubmitted
	}
	if request.ExpiresAt != nil && now.After(*request.ExpiresAt) {
		return nil, ErrTokenInvalid
	}

	if input.Rating != nil && !models.ValidRating(*input.Rating) {
		return nil, ErrInvalidRating
	}
	comment := strings.TrimSpace(input.Comment)
	if input.Rating == nil && comment == "" {
		return nil, ErrEmptySubmission
	}

	requestID := request.ID
	feedback := &models.Feedback{
		CompanyID:         request.CompanyID,
		FeedbackRequestID: &requestID,
		Rating:            input.Rating,
		Comment:           comment,
		IsPublic:          true,
		Source:            models.FeedbackSourceManual,
		ReviewedAt:        &now,
	}
	if err := s.feedbackRepo.CreateSubmission(ctx, feedback, now); err != nil {
		if errors.Is(err, repositories.ErrRequestAlreadyResponded) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("store feedback: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"companyID":  feedback.CompanyID,
		"requestID":  request.ID,
		"feedbackID": feedback.ID,
	})
	logger.Info("feedback submitted")

	// 入队失败只记录日志，客户的提交依然成功
	if err := s.enqueueGeneration(ctx, feedback.ID, queue.GenerateReplyDedupeKey(feedback.ID)); err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
		logger.WithError(err).Error("failed to enqueue reply generation")
	}

	events.PublishQuietly(ctx, s.publisher, events.New(events.TypeFeedbackSubmitted, feedback.ID, feedback.CompanyID, map[string]interface{}{
		"requestId": request.ID,
		"rating":    feedback.Rating,
	}))
	return feedback, nil
}

func (s *feedbackService) enqueueGeneration(ctx context.Context, feedbackID, dedupeKey string) error {
	job, err := queue.NewJob(queue.TypeGenerateReply, queue.GenerateReplyPayload{FeedbackID: feedbackID}, dedupeKey)
	if err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, job)
}

func (s *feedbackService) ListForCompany(ctx context.Context, companyID string, filters repositories.FeedbackFilters, page, limit int) ([]models.Feedback, int64, error) {
	return s.feedbackRepo.ListForCompany(ctx, companyID, filters, page, limit)
}

func (s *feedbackService) load(ctx context.Context, companyID, feedbackID string) (*models.Feedback, error) {
	feedback, err := s.feedbackRepo.GetForCompany(ctx, companyID, feedbackID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	return feedback, nil
}

func (s *feedbackService) Get(ctx context.Context, companyID, feedbackID string) (*FeedbackDetail, error) {
	feedback, err := s.load(ctx, companyID, feedbackID)
	if err != nil {
		return nil, err
	}
	replies, err := s.replyRepo.ListForFeedback(ctx, feedback.ID)
	if err != nil {
		return nil, fmt.Errorf("load replies: %w", err)
	}
	return &FeedbackDetail{Feedback: *feedback, Replies: replies}, nil
}

func (s *feedbackService) Resolve(ctx context.Context, companyID, feedbackID string, note *string) (*models.Feedback, error) {
	feedback, err := s.load(ctx, companyID, feedbackID)
	if err != nil {
		return nil, err
	}
	if note != nil {
		trimmed := strings.TrimSpace(*note)
		note = &trimmed
		if trimmed == "" {
			note = nil
		}
	}
	resolvedAt := s.now()
	if err := s.feedbackRepo.Resolve(ctx, feedback.ID, resolvedAt, note); err != nil {
		return nil, fmt.Errorf("resolve feedback: %w", err)
	}
	feedback.ResolvedAt = &resolvedAt
	feedback.ResolutionNote = note
	return feedback, nil
}

func (s *feedbackService) TogglePin(ctx context.Context, companyID, feedbackID string) (*models.Feedback, error) {
	feedback, err := s.load(ctx, companyID, feedbackID)
	if err != nil {
		return nil, err
	}
	pinned := !feedback.IsPinned
	if err := s.feedbackRepo.SetPinned(ctx, feedback.ID, pinned); err != nil {
		return nil, fmt.Errorf("toggle pin: %w", err)
	}
	feedback.IsPinned = pinned
	return feedback, nil
}

func (s *feedbackService) SetVisibility(ctx context.Context, companyID, feedbackID string, public bool) (*models.Feedback, error) {
	feedback, err := s.load(ctx, companyID, feedbackID)
	if err != nil {
		return nil, err
	}
	if err := s.feedbackRepo.SetVisibility(ctx, feedback.ID, public); err != nil {
		return nil, fmt.Errorf("set visibility: %w", err)
	}
	feedback.IsPublic = public
	return feedback, nil
}

func (s *feedbackService) PublicSummary(ctx context.Context, companyID string) (*models.FeedbackSummary, error) {
	summary, err := s.feedbackRepo.PublicSummary(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("build public summary: %w", err)
	}
	return summary, nil
}

func (s *feedbackService) AddManualReply(ctx context.Context, companyID, feedbackID string, userID int64, content string) (*models.FeedbackReply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyReply
	}
	feedback, err := s.load(ctx, companyID, feedbackID)
	if err != nil {
		return nil, err
	}
	responder := userID
	reply := &models.FeedbackReply{
		FeedbackID:    feedback.ID,
		ResponderKind: models.ResponderAdmin,
		ResponderID:   &responder,
		Content:       content,
		Status:        models.ReplyStatusSent,
	}
	if err := s.replyRepo.Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("store manual reply: %w", err)
	}
	metrics.ObserveReply(string(reply.Status))
	log.WithFields(log.Fields{"feedbackID": feedback.ID, "replyID": reply.ID, "userID": userID}).Info("manual reply added")
	return reply, nil
}

func (s *feedbackService) SendReply(ctx context.Context, companyID, replyID string) (*models.FeedbackReply, error) {
	reply, err := s.replyRepo.GetByID(ctx, replyID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrReplyNotFound
		}
		return nil, fmt.Errorf("load reply: %w", err)
	}
	// 校验回复属于当前公司
	if _, err := s.load(ctx, companyID, reply.FeedbackID); err != nil {
		if errors.Is(err, ErrFeedbackNotFound) {
			return nil, ErrReplyNotFound
		}
		return nil, err
	}
	updated, err := s.replyRepo.TransitionStatus(ctx, reply.ID, models.ReplyStatusPending, models.ReplyStatusSent)
	if err != nil {
		return nil, fmt.Errorf("mark reply sent: %w", err)
	}
	if !updated {
		return nil, ErrReplyNotPending
	}
	reply.Status = models.ReplyStatusSent
	return reply, nil
}

func (s *feedbackService) RegenerateReply(ctx context.Context, companyID, feedbackID string) error {
	feedback, err := s.load(ctx, companyID, feedbackID)
	if err != nil {
		return err
	}
	latest, err := s.replyRepo.LatestAIReply(ctx, feedback.ID)
	if err != nil {
		return fmt.Errorf("load latest reply: %w", err)
	}
	if latest != nil && latest.Status != models.ReplyStatusFailed {
		return ErrReplyExists
	}
	if err := s.enqueueGeneration(ctx, feedback.ID, ""); err != nil {
		return fmt.Errorf("enqueue reply generation: %w", err)
	}
	log.WithFields(log.Fields{"companyID": companyID, "feedbackID": feedback.ID}).Info("reply regeneration requested")
	return nil
}
