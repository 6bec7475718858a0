package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// ErrRequestAlreadyResponded 表示该反馈请求已经收到过回复
var ErrRequestAlreadyResponded = errors.New("feedback request already responded")

// FeedbackFilters 定义了后台反馈列表的筛选条件
type FeedbackFilters struct {
	Source     models.FeedbackSource
	MaxRating  *int
	Unresolved bool
	PinnedOnly bool
}

// FeedbackRepository 定义了反馈仓库的接口
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *models.Feedback) error
	// CreateSubmission 在一个事务中写入客户提交的反馈，并在请求上记录冗余文本和回复时间。
	// 请求已被回复时返回 ErrRequestAlreadyResponded。
	CreateSubmission(ctx context.Context, feedback *models.Feedback, respondedAt time.Time) error
	GetByID(ctx context.Context, id string) (*models.Feedback, error)
	GetByRequestID(ctx context.Context, requestID string) (*models.Feedback, error)
	GetForCompany(ctx context.Context, companyID, id string) (*models.Feedback, error)
	ListForCompany(ctx context.Context, companyID string, filters FeedbackFilters, page, limit int) ([]models.Feedback, int64, error)
	// ExistingExternalIDs 返回给定外部 ID 中已存在于本地的那部分
	ExistingExternalIDs(ctx context.Context, companyID string, source models.FeedbackSource, externalIDs []string) (map[string]bool, error)
	Resolve(ctx context.Context, id string, resolvedAt time.Time, note *string) error
	SetPinned(ctx context.Context, id string, pinned bool) error
	SetVisibility(ctx context.Context, id string, public bool) error
	// PublicSummary 只聚合 is_public = true 的反馈
	PublicSummary(ctx context.Context, companyID string) (*models.FeedbackSummary, error)
}

type gormFeedbackRepository struct {
	db *gorm.DB
}

// NewGormFeedbackRepository 创建一个新的 GORM 反馈仓库实例
func NewGormFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &gormFeedbackRepository{db: db}
}

func (r *gormFeedbackRepository) Create(ctx context.Context, feedback *models.Feedback) error {
	return r.db.WithContext(ctx).Create(feedback).Error
}

func (r *gormFeedbackRepository) CreateSubmission(ctx context.Context, feedback *models.Feedback, respondedAt time.Time) error {
	if feedback.FeedbackRequestID == nil {
		return errors.New("submission requires a feedback request")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 条件更新保证同一请求只能被回复一次
		result := tx.Model(&models.FeedbackRequest{}).
			Where("id = ? AND responded_at IS NULL", *feedback.FeedbackRequestID).
			Updates(map[string]interface{}{
				"feedback_text": feedback.Comment,
				"responded_at":  respondedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRequestAlreadyResponded
		}
		if err := tx.Create(feedback).Error; err != nil {
			if IsUniqueViolation(err) {
				return ErrRequestAlreadyResponded
			}
			return err
		}
		return nil
	})
}

func (r *gormFeedbackRepository) GetByID(ctx context.Context, id string) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&feedback).Error; err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (r *gormFeedbackRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := r.db.WithContext(ctx).Where("feedback_request_id = ?", requestID).First(&feedback).Error; err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (r *gormFeedbackRepository) GetForCompany(ctx context.Context, companyID, id string) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := r.db.WithContext(ctx).Where("id = ? AND company_id = ?", id, companyID).First(&feedback).Error; err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (r *gormFeedbackRepository) ListForCompany(ctx context.Context, companyID string, filters FeedbackFilters, page, limit int) ([]models.Feedback, int64, error) {
	var items []models.Feedback
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Feedback{}).Where("company_id = ?", companyID)
	if filters.Source != "" {
		query = query.Where("source = ?", filters.Source)
	}
	if filters.MaxRating != nil {
		query = query.Where("rating IS NOT NULL AND rating <= ?", *filters.MaxRating)
	}
	if filters.Unresolved {
		query = query.Where("resolved_at IS NULL")
	}
	if filters.PinnedOnly {
		query = query.Where("is_pinned = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	if err := query.Order("is_pinned DESC, created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *gormFeedbackRepository) ExistingExternalIDs(ctx context.Context, companyID string, source models.FeedbackSource, externalIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(externalIDs))
	if len(externalIDs) == 0 {
		return existing, nil
	}
	var found []string
	err := r.db.WithContext(ctx).Model(&models.Feedback{}).
		Where("company_id = ? AND source = ? AND external_id IN ?", companyID, source, externalIDs).
		Pluck("external_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

func (r *gormFeedbackRepository) Resolve(ctx context.Context, id string, resolvedAt time.Time, note *string) error {
	return r.db.WithContext(ctx).Model(&models.Feedback{}).Where("id = ?", id).Updates(map[string]interface{}{
		"resolved_at":     resolvedAt,
		"resolution_note": note,
	}).Error
}

func (r *gormFeedbackRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	return r.db.WithContext(ctx).Model(&models.Feedback{}).Where("id = ?", id).Update("is_pinned", pinned).Error
}

func (r *gormFeedbackRepository) SetVisibility(ctx context.Context, id string, public bool) error {
	return r.db.WithContext(ctx).Model(&models.Feedback{}).Where("id = ?", id).Update("is_public", public).Error
}

func (r *gormFeedbackRepository) PublicSummary(ctx context.Context, companyID string) (*models.FeedbackSummary, error) {
	summary := &models.FeedbackSummary{
		CompanyID:    companyID,
		Distribution: make(map[int]int),
	}

	public := r.db.WithContext(ctx).Model(&models.Feedback{}).Where("company_id = ? AND is_public = ?", companyID, true)
	if err := public.Session(&gorm.Session{}).Count(&summary.TotalCount).Error; err != nil {
		return nil, err
	}

	var buckets []struct {
		Rating int
		Count  int
	}
	err := public.Session(&gorm.Session{}).
		Select("rating, COUNT(*) AS count").
		Where("rating IS NOT NULL").
		Group("rating").
		Scan(&buckets).Error
	if err != nil {
		return nil, err
	}

	var sum int
	for _, b := range buckets {
		summary.Distribution[b.Rating] = b.Count
		summary.RatedCount += int64(b.Count)
		sum += b.Rating * b.Count
	}
	if summary.RatedCount > 0 {
		summary.AverageRating = float64(sum) / float64(summary.RatedCount)
	}

	if err := public.Session(&gorm.Session{}).Where("is_pinned = ?", true).Order("created_at DESC").Limit(10).Find(&summary.Pinned).Error; err != nil {
		return nil, err
	}
	return summary, nil
}
