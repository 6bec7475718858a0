package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/feedback_management/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReviewSyncCounts 是一次同步需要累加的计数
type ReviewSyncCounts struct {
	Fetched int
	Synced  int
	Skipped int
	Errors  int
}

// ReviewSyncRunRepository 定义了评价同步记录仓库的接口
type ReviewSyncRunRepository interface {
	Create(ctx context.Context, run *models.ReviewSyncRun) error
	GetByID(ctx context.Context, id string) (*models.ReviewSyncRun, error)
	// UpdateCountsAndStatus 原子地累加计数、设置状态，并把 errorDetails 追加到错误摘要
	UpdateCountsAndStatus(ctx context.Context, id string, counts ReviewSyncCounts,
		newStatus models.ReviewSyncStatus, errorDetails []models.ReviewSyncError, finishedAt *time.Time) error
	ListForCompany(ctx context.Context, companyID string, limit int) ([]models.ReviewSyncRun, error)
}

type gormReviewSyncRunRepository struct {
	db *gorm.DB
}

// NewGormReviewSyncRunRepository 创建一个新的 GORM 评价同步记录仓库实例
func NewGormReviewSyncRunRepository(db *gorm.DB) ReviewSyncRunRepository {
	return &gormReviewSyncRunRepository{db: db}
}

// Create 在数据库中创建一个新的同步记录
func (r *gormReviewSyncRunRepository) Create(ctx context.Context, run *models.ReviewSyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID 从数据库中按 ID 获取同步记录
func (r *gormReviewSyncRunRepository) GetByID(ctx context.Context, id string) (*models.ReviewSyncRun, error) {
	var run models.ReviewSyncRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err // 调用方应处理 gorm.ErrRecordNotFound
	}
	return &run, nil
}

func (r *gormReviewSyncRunRepository) UpdateCountsAndStatus(ctx context.Context, id string, counts ReviewSyncCounts,
	newStatus models.ReviewSyncStatus, errorDetails []models.ReviewSyncError, finishedAt *time.Time) error {

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run models.ReviewSyncRun
		if err := tx.Where("id = ?", id).First(&run).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"fetched_count": gorm.Expr("fetched_count + ?", counts.Fetched),
			"synced_count":  gorm.Expr("synced_count + ?", counts.Synced),
			"skipped_count": gorm.Expr("skipped_count + ?", counts.Skipped),
			"error_count":   gorm.Expr("error_count + ?", counts.Errors),
			"status":        newStatus,
			"updated_at":    time.Now(),
		}
		if finishedAt != nil {
			updates["finished_at"] = *finishedAt
		}

		if len(errorDetails) > 0 {
			var existing []models.ReviewSyncError
			if len(run.ErrorSummary) > 0 {
				if err := json.Unmarshal(run.ErrorSummary, &existing); err != nil {
					existing = nil // 旧数据损坏时直接覆盖
				}
			}
			merged, err := json.Marshal(append(existing, errorDetails...))
			if err != nil {
				return err
			}
			updates["error_summary"] = datatypes.JSON(merged)
		}

		return tx.Model(&models.ReviewSyncRun{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *gormReviewSyncRunRepository) ListForCompany(ctx context.Context, companyID string, limit int) ([]models.ReviewSyncRun, error) {
	var runs []models.ReviewSyncRun
	err := r.db.WithContext(ctx).Where("company_id = ?", companyID).Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
