package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskPriority 定义了工单的优先级
type TaskPriority string

// TaskStatus 定义了工单的状态
type TaskStatus string

const (
	TaskPriorityCritical TaskPriority = "critical"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityNormal   TaskPriority = "normal"
	TaskPriorityLow      TaskPriority = "low"

	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusResolved   TaskStatus = "resolved"
	TaskStatusClosed     TaskStatus = "closed"
)

// Task 是升级流程创建的内部工单。
// FeedbackReplyID 唯一，保证同一条回复重试升级时不会重复建单。
type Task struct {
	ID                string       `json:"id" gorm:"type:varchar(36);primaryKey"`
	CompanyID         string       `json:"companyId" gorm:"column:company_id;type:varchar(36);not null;index"`
	FeedbackRequestID *string      `json:"feedbackRequestId,omitempty" gorm:"column:feedback_request_id;type:varchar(36);index"`
	FeedbackReplyID   *string      `json:"feedbackReplyId,omitempty" gorm:"column:feedback_reply_id;type:varchar(36);uniqueIndex"`
	Title             string       `json:"title" gorm:"column:title;not null;size:255"`
	Description       string       `json:"description" gorm:"column:description;type:text"`
	Priority          TaskPriority `json:"priority" gorm:"column:priority;type:varchar(20);not null"`
	Status            TaskStatus   `json:"status" gorm:"column:status;type:varchar(20);not null;index"`
	DueDate           time.Time    `json:"dueDate" gorm:"column:due_date;not null"`
	AssignedTo        *int64       `json:"assignedTo,omitempty" gorm:"column:assigned_to;index"`
	NotifiedAt        *time.Time   `json:"notifiedAt,omitempty" gorm:"column:notified_at"`
	CreatedAt         time.Time    `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt         time.Time    `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName 指定 Task 结构体对应的数据库表名
func (Task) TableName() string {
	return "tasks"
}

// BeforeCreate GORM hook 为 Task 生成 UUID
func (t *Task) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
