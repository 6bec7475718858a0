package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company 是租户锚点，拥有策略、请求、反馈和工单
type Company struct {
	ID                 string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name               string         `json:"name" gorm:"column:name;not null;size:255"`
	Slug               string         `json:"slug" gorm:"column:slug;uniqueIndex;not null;size:100"`
	ContactEmail       *string        `json:"contactEmail,omitempty" gorm:"column:contact_email;size:255"`
	GoogleAccountID    *string        `json:"googleAccountId,omitempty" gorm:"column:google_account_id;size:100"`
	GoogleLocationID   *string        `json:"googleLocationId,omitempty" gorm:"column:google_location_id;size:100"`
	GoogleRefreshToken *string        `json:"-" gorm:"column:google_refresh_token;type:text"`
	CreatedAt          time.Time      `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt          time.Time      `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
	DeletedAt          gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index" swaggertype:"string" format:"date-time"`
}

// TableName 指定 Company 结构体对应的数据库表名
func (Company) TableName() string {
	return "companies"
}

// BeforeCreate GORM hook 为 Company 生成 UUID
func (c *Company) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// HasGoogleConnection reports whether the company linked a Google Business Profile location.
func (c *Company) HasGoogleConnection() bool {
	return c.GoogleAccountID != nil && *c.GoogleAccountID != "" &&
		c.GoogleLocationID != nil && *c.GoogleLocationID != "" &&
		c.GoogleRefreshToken != nil && *c.GoogleRefreshToken != ""
}
