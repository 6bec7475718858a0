package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobStatus 定义了队列任务的状态
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job 是异步队列中的一个工作单元。投递语义为至少一次。
type Job struct {
	ID          string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	Type        string         `json:"type" gorm:"column:type;size:50;not null;index"`
	Payload     datatypes.JSON `json:"payload" gorm:"column:payload"`
	Status      JobStatus      `json:"status" gorm:"column:status;type:varchar(20);not null;index:idx_jobs_status_available"`
	Attempts    int            `json:"attempts" gorm:"column:attempts;not null"`
	MaxAttempts int            `json:"maxAttempts" gorm:"column:max_attempts;not null"`
	AvailableAt time.Time      `json:"availableAt" gorm:"column:available_at;not null;index:idx_jobs_status_available"`
	LockedAt    *time.Time     `json:"lockedAt,omitempty" gorm:"column:locked_at"`
	LastError   *string        `json:"lastError,omitempty" gorm:"column:last_error;type:text"`
	DedupeKey   *string        `json:"dedupeKey,omitempty" gorm:"column:dedupe_key;size:255;uniqueIndex"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt   time.Time      `json:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName 指定 Job 结构体对应的数据库表名
func (Job) TableName() string {
	return "jobs"
}

// BeforeCreate GORM hook 为 Job 生成 UUID
func (j *Job) BeforeCreate(tx *gorm.DB) (err error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}
