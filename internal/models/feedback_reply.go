package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResponderKind 定义了回复的作者类型
type ResponderKind string

// ReplyStatus 定义了回复的状态。
// pending -> escalated | sent，pending -> failed；不允许回退。
type ReplyStatus string

const (
	ResponderAI    ResponderKind = "ai"
	ResponderAdmin ResponderKind = "admin"

	ReplyStatusPending   ReplyStatus = "pending"
	ReplyStatusSent      ReplyStatus = "sent"
	ReplyStatusEscalated ReplyStatus = "escalated"
	ReplyStatusFailed    ReplyStatus = "failed"
)

// FailedReplyPlaceholder is stored as the content of a reply whose generation failed.
const FailedReplyPlaceholder = "Unable to generate a reply at this time."

// CanTransitionTo reports whether a reply in status s may move to next.
func (s ReplyStatus) CanTransitionTo(next ReplyStatus) bool {
	if s != ReplyStatusPending {
		return false
	}
	switch next {
	case ReplyStatusSent, ReplyStatusEscalated, ReplyStatusFailed:
		return true
	}
	return false
}

// FeedbackReply 是对一条反馈的回复（AI 生成或人工撰写）
type FeedbackReply struct {
	ID               string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	FeedbackID       string         `json:"feedbackId" gorm:"column:feedback_id;type:varchar(36);not null;index"`
	ResponderKind    ResponderKind  `json:"responderKind" gorm:"column:responder_kind;type:varchar(20);not null"`
	ResponderID      *int64         `json:"responderId,omitempty" gorm:"column:responder_id"` // AI 回复为空
	Content          string         `json:"content" gorm:"column:content;type:text;not null"`
	Status           ReplyStatus    `json:"status" gorm:"column:status;type:varchar(20);not null;index"`
	Provider         *string        `json:"provider,omitempty" gorm:"column:provider;size:100"`
	ProviderResponse datatypes.JSON `json:"providerResponse,omitempty" gorm:"column:provider_response"`
	Language         *string        `json:"language,omitempty" gorm:"column:language;size:16"`
	CreatedAt        time.Time      `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt        time.Time      `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName 指定 FeedbackReply 结构体对应的数据库表名
func (FeedbackReply) TableName() string {
	return "feedback_replies"
}

// BeforeCreate GORM hook 为 FeedbackReply 生成 UUID
func (r *FeedbackReply) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
