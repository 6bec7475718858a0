package repositories

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrRecordNotFound 是仓库层对 gorm.ErrRecordNotFound 的别名，服务层用 errors.Is 判断
var ErrRecordNotFound = gorm.ErrRecordNotFound

// ErrReplyChanged 表示要重写的失败回复已被其他 worker 改写
var ErrReplyChanged = errors.New("reply is no longer in failed state")

// IsUniqueViolation 判断错误是否来自唯一约束冲突。
// SQLite 的错误信息包含 "UNIQUE constraint failed"，PostgreSQL 包含 "duplicate key"。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
