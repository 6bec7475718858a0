package repositories

import (
	"context"
	"errors"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// ErrUsernameExists 表示用户名已存在
var ErrUsernameExists = errors.New("username already exists")

// UserRepository 定义了用户数据仓库的接口
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// FindFirstByCompanyAndRole 查找公司内持有指定角色的第一个用户，没有时返回 (nil, nil)
	FindFirstByCompanyAndRole(ctx context.Context, companyID, role string) (*models.User, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建一个新的 GORM 用户仓库实例
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrUsernameExists
		}
		return err
	}
	return nil
}

func (r *gormUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) FindFirstByCompanyAndRole(ctx context.Context, companyID, role string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND role = ?", companyID, role).
		Order("id ASC").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
