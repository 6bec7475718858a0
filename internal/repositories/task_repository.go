package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// ErrTaskExists 表示该回复已经有对应的升级工单
var ErrTaskExists = errors.New("task already exists for reply")

// TaskRepository 定义了工单仓库的接口
type TaskRepository interface {
	// Create 创建工单；同一回复重复建单时返回 ErrTaskExists
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	// FindByReplyID 没有找到时返回 (nil, nil)
	FindByReplyID(ctx context.Context, replyID string) (*models.Task, error)
	// AssignIfUnassigned 只在工单尚无负责人时设置负责人
	AssignIfUnassigned(ctx context.Context, id string, userID int64) (bool, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, companyID, id string, status models.TaskStatus) error
	ListForCompany(ctx context.Context, companyID string, status models.TaskStatus, page, limit int) ([]models.Task, int64, error)
}

type gormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository 创建一个新的 GORM 工单仓库实例
func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrTaskExists
		}
		return err
	}
	return nil
}

func (r *gormTaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByReplyID(ctx context.Context, replyID string) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).Where("feedback_reply_id = ?", replyID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) AssignIfUnassigned(ctx context.Context, id string, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND assigned_to IS NULL", id).
		Update("assigned_to", userID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormTaskRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Update("notified_at", at).Error
}

func (r *gormTaskRepository) UpdateStatus(ctx context.Context, companyID, id string, status models.TaskStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND company_id = ?", id, companyID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormTaskRepository) ListForCompany(ctx context.Context, companyID string, status models.TaskStatus, page, limit int) ([]models.Task, int64, error) {
	var tasks []models.Task
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Task{}).Where("company_id = ?", companyID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	if err := query.Order("due_date ASC").Offset(offset).Limit(limit).Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}
