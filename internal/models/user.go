package models

import (
	"time"

	"gorm.io/gorm"
)

// 公司内用户角色
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleSupport = "support"
)

// User 对应于数据库中的 users 表。
// IsPlatformAdmin 取代了硬编码的管理员邮箱白名单。
type User struct {
	ID              int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	CompanyID       string         `json:"companyId" gorm:"column:company_id;type:varchar(36);not null;index:idx_users_company_role"`
	Username        string         `json:"username" gorm:"column:username;unique;not null;size:255"`
	Email           *string        `json:"email,omitempty" gorm:"column:email;size:255"`
	PasswordHash    string         `json:"-" gorm:"column:password_hash;not null;size:255"` // 密码哈希不通过JSON暴露
	Role            string         `json:"role" gorm:"column:role;not null;default:'support';size:50;index:idx_users_company_role"`
	IsPlatformAdmin bool           `json:"isPlatformAdmin" gorm:"column:is_platform_admin;not null"`
	CreatedAt       time.Time      `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt       time.Time      `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index" swaggertype:"string" format:"date-time"`
}

// TableName 指定 User 结构体对应的数据库表名
func (User) TableName() string {
	return "users"
}
