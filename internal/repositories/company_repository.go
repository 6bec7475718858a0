package repositories

import (
	"context"
	"errors"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// ErrCompanySlugExists 表示公司标识已存在
var ErrCompanySlugExists = errors.New("company slug already exists")

// CompanyRepository 定义了公司数据仓库的接口
type CompanyRepository interface {
	Create(ctx context.Context, company *models.Company) error
	GetByID(ctx context.Context, id string) (*models.Company, error)
	// FindWithGoogleConnection 返回已绑定 Google 商家资料的公司，用于定时同步
	FindWithGoogleConnection(ctx context.Context) ([]models.Company, error)
}

type gormCompanyRepository struct {
	db *gorm.DB
}

// NewGormCompanyRepository 创建一个新的 GORM 公司仓库实例
func NewGormCompanyRepository(db *gorm.DB) CompanyRepository {
	return &gormCompanyRepository{db: db}
}

func (r *gormCompanyRepository) Create(ctx context.Context, company *models.Company) error {
	if err := r.db.WithContext(ctx).Create(company).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrCompanySlugExists
		}
		return err
	}
	return nil
}

func (r *gormCompanyRepository) GetByID(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, err // 调用方应处理 gorm.ErrRecordNotFound
	}
	return &company, nil
}

func (r *gormCompanyRepository) FindWithGoogleConnection(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	err := r.db.WithContext(ctx).
		Where("google_account_id IS NOT NULL AND google_account_id <> ''").
		Where("google_location_id IS NOT NULL AND google_location_id <> ''").
		Where("google_refresh_token IS NOT NULL AND google_refresh_token <> ''").
		Order("created_at ASC").
		Find(&companies).Error
	if err != nil {
		return nil, err
	}
	return companies, nil
}
