package repositories

import (
	"context"
	"time"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// FeedbackRequestRepository 定义了反馈请求仓库的接口
type FeedbackRequestRepository interface {
	Create(ctx context.Context, request *models.FeedbackRequest) error
	GetByID(ctx context.Context, id string) (*models.FeedbackRequest, error)
	GetByToken(ctx context.Context, token string) (*models.FeedbackRequest, error)
	ListForCompany(ctx context.Context, companyID string, page, limit int) ([]models.FeedbackRequest, int64, error)
	// UpdateDelivery 记录发送结果
	UpdateDelivery(ctx context.Context, id string, status models.DeliveryStatus, providerMessageID *string, sentAt *time.Time) error
	MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error
	// FindDueForReminder 查找在 sentBefore 之前发出、尚未回复、尚未提醒且未过期的请求
	FindDueForReminder(ctx context.Context, sentBefore, now time.Time, limit int) ([]models.FeedbackRequest, error)
}

type gormFeedbackRequestRepository struct {
	db *gorm.DB
}

// NewGormFeedbackRequestRepository 创建一个新的 GORM 反馈请求仓库实例
func NewGormFeedbackRequestRepository(db *gorm.DB) FeedbackRequestRepository {
	return &gormFeedbackRequestRepository{db: db}
}

func (r *gormFeedbackRequestRepository) Create(ctx context.Context, request *models.FeedbackRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *gormFeedbackRequestRepository) GetByID(ctx context.Context, id string) (*models.FeedbackRequest, error) {
	var request models.FeedbackRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *gormFeedbackRequestRepository) GetByToken(ctx context.Context, token string) (*models.FeedbackRequest, error) {
	var request models.FeedbackRequest
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *gormFeedbackRequestRepository) ListForCompany(ctx context.Context, companyID string, page, limit int) ([]models.FeedbackRequest, int64, error) {
	var requests []models.FeedbackRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.FeedbackRequest{}).Where("company_id = ?", companyID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&requests).Error; err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *gormFeedbackRequestRepository) UpdateDelivery(ctx context.Context, id string, status models.DeliveryStatus, providerMessageID *string, sentAt *time.Time) error {
	updates := map[string]interface{}{
		"status":              status,
		"provider_message_id": providerMessageID,
		"sent_at":             sentAt,
	}
	return r.db.WithContext(ctx).Model(&models.FeedbackRequest{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormFeedbackRequestRepository) MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.FeedbackRequest{}).Where("id = ?", id).Updates(map[string]interface{}{
		"reminder_sent_at": sentAt,
		"reminder_count":   gorm.Expr("reminder_count + ?", 1),
	}).Error
}

func (r *gormFeedbackRequestRepository) FindDueForReminder(ctx context.Context, sentBefore, now time.Time, limit int) ([]models.FeedbackRequest, error) {
	var requests []models.FeedbackRequest
	err := r.db.WithContext(ctx).
		Where("channel = ? AND status = ?", models.ChannelEmail, models.DeliveryStatusSent).
		Where("responded_at IS NULL AND reminder_sent_at IS NULL").
		Where("sent_at IS NOT NULL AND sent_at <= ?", sentBefore).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("sent_at ASC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
