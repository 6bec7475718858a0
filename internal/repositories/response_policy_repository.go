package repositories

import (
	"context"
	"errors"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// ResponsePolicyRepository 定义了回复策略仓库的接口
type ResponsePolicyRepository interface {
	// GetOrCreate 返回公司的策略，不存在时以默认值创建
	GetOrCreate(ctx context.Context, companyID string) (*models.ResponsePolicy, error)
	Update(ctx context.Context, policy *models.ResponsePolicy) error
}

type gormResponsePolicyRepository struct {
	db *gorm.DB
}

// NewGormResponsePolicyRepository 创建一个新的 GORM 回复策略仓库实例
func NewGormResponsePolicyRepository(db *gorm.DB) ResponsePolicyRepository {
	return &gormResponsePolicyRepository{db: db}
}

func (r *gormResponsePolicyRepository) GetOrCreate(ctx context.Context, companyID string) (*models.ResponsePolicy, error) {
	var policy models.ResponsePolicy
	err := r.db.WithContext(ctx).Where("company_id = ?", companyID).First(&policy).Error
	if err == nil {
		return &policy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := models.NewDefaultResponsePolicy(companyID)
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		// 并发创建时另一方已经插入，读回即可
		if IsUniqueViolation(err) {
			if err := r.db.WithContext(ctx).Where("company_id = ?", companyID).First(&policy).Error; err != nil {
				return nil, err
			}
			return &policy, nil
		}
		return nil, err
	}
	return created, nil
}

func (r *gormResponsePolicyRepository) Update(ctx context.Context, policy *models.ResponsePolicy) error {
	return r.db.WithContext(ctx).Save(policy).Error
}
