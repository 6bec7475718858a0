package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedbackSource 定义了反馈的来源
type FeedbackSource string

const (
	FeedbackSourceManual FeedbackSource = "manual"
	FeedbackSourceGoogle FeedbackSource = "google"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Feedback 是客户对一次反馈请求的回应，或从外部平台同步的评价
type Feedback struct {
	ID                string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	CompanyID         string         `json:"companyId" gorm:"column:company_id;type:varchar(36);not null;index;uniqueIndex:idx_feedback_company_external"`
	FeedbackRequestID *string        `json:"feedbackRequestId,omitempty" gorm:"column:feedback_request_id;type:varchar(36);uniqueIndex"` // 外部同步的评价没有请求
	Rating            *int           `json:"rating,omitempty" gorm:"column:rating;index"`                                                 // 1-5，可为空
	Comment           string         `json:"comment" gorm:"column:comment;type:text"`
	IsPublic          bool           `json:"isPublic" gorm:"column:is_public;not null;index"`
	IsPinned          bool           `json:"isPinned" gorm:"column:is_pinned;not null"`
	ResolvedAt        *time.Time     `json:"resolvedAt,omitempty" gorm:"column:resolved_at"`
	ResolutionNote    *string        `json:"resolutionNote,omitempty" gorm:"column:resolution_note;type:text"`
	Source            FeedbackSource `json:"source" gorm:"column:source;type:varchar(20);not null"`
	ExternalID        *string        `json:"externalId,omitempty" gorm:"column:external_id;size:255;uniqueIndex:idx_feedback_company_external"`
	ReviewerName      *string        `json:"reviewerName,omitempty" gorm:"column:reviewer_name;size:255"`
	ReviewedAt        *time.Time     `json:"reviewedAt,omitempty" gorm:"column:reviewed_at"`
	CreatedAt         time.Time      `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt         time.Time      `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName 指定 Feedback 结构体对应的数据库表名
func (Feedback) TableName() string {
	return "feedbacks"
}

// BeforeCreate GORM hook 为 Feedback 生成 UUID
func (f *Feedback) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// IsResolved reports whether an operator closed out the feedback.
func (f *Feedback) IsResolved() bool {
	return f.ResolvedAt != nil
}

// ValidRating reports whether r is an acceptable star rating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// FeedbackSummary 是对外公开的聚合结果，只统计公开反馈
type FeedbackSummary struct {
	CompanyID     string      `json:"companyId"`
	TotalCount    int64       `json:"totalCount"`
	RatedCount    int64       `json:"ratedCount"`
	AverageRating float64     `json:"averageRating"`
	Distribution  map[int]int `json:"distribution"`
	Pinned        []Feedback  `json:"pinned,omitempty"`
}
