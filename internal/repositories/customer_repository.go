package repositories

import (
	"context"

	"github.com/feedback_management/internal/models"
	"gorm.io/gorm"
)

// CustomerRepository 定义了客户数据仓库的接口
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	// GetForCompany 只返回属于指定公司的客户
	GetForCompany(ctx context.Context, companyID, customerID string) (*models.Customer, error)
}

type gormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository 创建一个新的 GORM 客户仓库实例
func NewGormCustomerRepository(db *gorm.DB) CustomerRepository {
	return &gormCustomerRepository{db: db}
}

func (r *gormCustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *gormCustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormCustomerRepository) GetForCompany(ctx context.Context, companyID, customerID string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", customerID, companyID).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
