package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryChannel 定义了反馈请求的发送渠道
type DeliveryChannel string

// DeliveryStatus 定义了反馈请求的投递状态
type DeliveryStatus string

const (
	ChannelSMS   DeliveryChannel = "sms"
	ChannelEmail DeliveryChannel = "email"
	ChannelQR    DeliveryChannel = "qr"

	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusGenerated DeliveryStatus = "generated" // QR 渠道只生成链接
)

// IsValid reports whether the channel is one we can deliver over.
func (c DeliveryChannel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelQR:
		return true
	}
	return false
}

// FeedbackRequest 代表一次发给客户的反馈邀请
type FeedbackRequest struct {
	ID                string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	CompanyID         string          `json:"companyId" gorm:"column:company_id;type:varchar(36);not null;index"`
	CustomerID        string          `json:"customerId" gorm:"column:customer_id;type:varchar(36);not null;index"`
	Channel           DeliveryChannel `json:"channel" gorm:"column:channel;type:varchar(20);not null"`
	Status            DeliveryStatus  `json:"status" gorm:"column:status;type:varchar(20);not null;index"`
	ProviderMessageID *string         `json:"providerMessageId,omitempty" gorm:"column:provider_message_id;size:255"`
	Language          *string         `json:"language,omitempty" gorm:"column:language;size:16"`
	FeedbackText      *string         `json:"feedbackText,omitempty" gorm:"column:feedback_text;type:text"` // 冗余存储的客户反馈文本
	Token             string          `json:"-" gorm:"column:token;type:varchar(64);uniqueIndex;not null"`
	SentAt            *time.Time      `json:"sentAt,omitempty" gorm:"column:sent_at"`
	RespondedAt       *time.Time      `json:"respondedAt,omitempty" gorm:"column:responded_at"`
	ReminderSentAt    *time.Time      `json:"reminderSentAt,omitempty" gorm:"column:reminder_sent_at"`
	ReminderCount     int             `json:"reminderCount" gorm:"column:reminder_count;not null"`
	ExpiresAt         *time.Time      `json:"expiresAt,omitempty" gorm:"column:expires_at"`
	CreatedAt         time.Time       `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt         time.Time       `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName 指定 FeedbackRequest 结构体对应的数据库表名
func (FeedbackRequest) TableName() string {
	return "feedback_requests"
}

// BeforeCreate GORM hook 生成 UUID 和访问令牌
func (r *FeedbackRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Token == "" {
		r.Token = uuid.NewString()
	}
	return nil
}

// AwaitingResponse reports whether the customer can still answer the request at now.
func (r *FeedbackRequest) AwaitingResponse(now time.Time) bool {
	if r.RespondedAt != nil {
		return false
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return false
	}
	return true
}
