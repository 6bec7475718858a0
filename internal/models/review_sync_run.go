package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReviewSyncStatus 定义了外部评价同步任务的状态类型
type ReviewSyncStatus string

const (
	SyncStatusPending             ReviewSyncStatus = "Pending"             // 任务已创建，等待处理
	SyncStatusInProgress          ReviewSyncStatus = "InProgress"          // 任务正在处理中
	SyncStatusCompleted           ReviewSyncStatus = "Completed"           // 任务成功完成
	SyncStatusCompletedWithErrors ReviewSyncStatus = "CompletedWithErrors" // 任务完成，但有部分评价写入失败
	SyncStatusFailed              ReviewSyncStatus = "Failed"              // 拉取评价本身失败
)

// ReviewSyncRun 记录一次 Google 评价同步的结果
type ReviewSyncRun struct {
	ID           string           `json:"id" gorm:"type:varchar(36);primaryKey"`
	CompanyID    string           `json:"companyId" gorm:"column:company_id;type:varchar(36);not null;index"`
	Provider     string           `json:"provider" gorm:"column:provider;size:50;not null"`
	Status       ReviewSyncStatus `json:"status" gorm:"type:varchar(50);not null;index"`
	FetchedCount int              `json:"fetchedCount" gorm:"not null"`
	SyncedCount  int              `json:"syncedCount" gorm:"not null"`
	SkippedCount int              `json:"skippedCount" gorm:"not null"`
	ErrorCount   int              `json:"errorCount" gorm:"not null"`
	ErrorSummary datatypes.JSON   `json:"errorSummary,omitempty" swaggertype:"array,object"` // []ReviewSyncError 的 JSON
	StartedAt    time.Time        `json:"startedAt" gorm:"not null"`
	FinishedAt   *time.Time       `json:"finishedAt,omitempty"`
	CreatedAt    time.Time        `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time        `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定 ReviewSyncRun 模型对应的数据库表名
func (ReviewSyncRun) TableName() string {
	return "review_sync_runs"
}

// BeforeCreate GORM hook 为 ReviewSyncRun 生成 UUID
func (run *ReviewSyncRun) BeforeCreate(tx *gorm.DB) (err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return nil
}

// ReviewSyncError 记录单条评价同步失败的详情
type ReviewSyncError struct {
	ExternalID string `json:"externalId,omitempty"`
	Reason     string `json:"reason"`
}
