package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer 对应于数据库中的 customers 表
type Customer struct {
	ID        string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	CompanyID string         `json:"companyId" gorm:"column:company_id;type:varchar(36);not null;index"`
	Name      string         `json:"name" gorm:"column:name;not null;size:255"`
	Email     *string        `json:"email,omitempty" gorm:"column:email;size:255"`
	Phone     *string        `json:"phone,omitempty" gorm:"column:phone;size:50"`
	CreatedAt time.Time      `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index" swaggertype:"string" format:"date-time"`
}

// TableName 指定 Customer 结构体对应的数据库表名
func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate GORM hook 为 Customer 生成 UUID
func (c *Customer) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// DisplayName returns the name used in greetings, falling back to a generic one.
func (c *Customer) DisplayName() string {
	if c == nil || c.Name == "" {
		return DefaultCustomerName
	}
	return c.Name
}

// DefaultCustomerName is used when the customer has no recorded name.
const DefaultCustomerName = "Valued customer"
