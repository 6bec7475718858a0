package repositories

import (
	"context"
	"errors"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// FeedbackReplyRepository 定义了反馈回复仓库的接口
type FeedbackReplyRepository interface {
	Create(ctx context.Context, reply *models.FeedbackReply) error
	GetByID(ctx context.Context, id string) (*models.FeedbackReply, error)
	// LatestAIReply 返回反馈最新的一条 AI 回复，没有时返回 (nil, nil)
	LatestAIReply(ctx context.Context, feedbackID string) (*models.FeedbackReply, error)
	// Overwrite 重写一条失败回复的内容和状态，用于重试时复用同一行。
	// 该行已不是 failed 时返回 ErrReplyChanged
	Overwrite(ctx context.Context, reply *models.FeedbackReply) error
	// TransitionStatus 仅当当前状态为 from 时才更新为 to，返回是否发生了更新
	TransitionStatus(ctx context.Context, id string, from, to models.ReplyStatus) (bool, error)
	ListForFeedback(ctx context.Context, feedbackID string) ([]models.FeedbackReply, error)
}

type gormFeedbackReplyRepository struct {
	db *gorm.DB
}

// NewGormFeedbackReplyRepository 创建一个新的 GORM 反馈回复仓库实例
func NewGormFeedbackReplyRepository(db *gorm.DB) FeedbackReplyRepository {
	return &gormFeedbackReplyRepository{db: db}
}

func (r *gormFeedbackReplyRepository) Create(ctx context.Context, reply *models.FeedbackReply) error {
	return r.db.WithContext(ctx).Create(reply).Error
}

func (r *gormFeedbackReplyRepository) GetByID(ctx context.Context, id string) (*models.FeedbackReply, error) {
	var reply models.FeedbackReply
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reply).Error; err != nil {
		return nil, err
	}
	return &reply, nil
}

func (r *gormFeedbackReplyRepository) LatestAIReply(ctx context.Context, feedbackID string) (*models.FeedbackReply, error) {
	var reply models.FeedbackReply
	err := r.db.WithContext(ctx).
		Where("feedback_id = ? AND responder_kind = ?", feedbackID, models.ResponderAI).
		Order("created_at DESC").
		First(&reply).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reply, nil
}

func (r *gormFeedbackReplyRepository) Overwrite(ctx context.Context, reply *models.FeedbackReply) error {
	result := r.db.WithContext(ctx).Model(&models.FeedbackReply{}).
		Where("id = ? AND status = ?", reply.ID, models.ReplyStatusFailed).
		Updates(map[string]interface{}{
			"content":           reply.Content,
			"status":            reply.Status,
			"provider":          reply.Provider,
			"provider_response": reply.ProviderResponse,
			"language":          reply.Language,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReplyChanged
	}
	return nil
}

func (r *gormFeedbackReplyRepository) TransitionStatus(ctx context.Context, id string, from, to models.ReplyStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, nil
	}
	result := r.db.WithContext(ctx).Model(&models.FeedbackReply{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormFeedbackReplyRepository) ListForFeedback(ctx context.Context, feedbackID string) ([]models.FeedbackReply, error) {
	var replies []models.FeedbackReply
	if err := r.db.WithContext(ctx).Where("feedback_id = ?", feedbackID).Order("created_at ASC").Find(&replies).Error; err != nil {
		return nil, err
	}
	return replies, nil
}
