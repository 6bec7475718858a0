package db

import (
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/feedback_management/configs"
	"github.com/feedback_management/internal/models"
)

var gormDB *gorm.DB

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// InitDB 初始化全局 GORM 数据库连接并迁移表结构
func InitDB(cfg configs.DatabaseConfig) error {
	conn, err := Open(cfg.Driver, cfg.DSN, ParseLogLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	if err := Migrate(conn); err != nil {
		return err
	}
	gormDB = conn
	return nil
}

// Open 打开一个 GORM 连接。sqlite 的 DSN 是文件路径，postgres 的 DSN 是连接串。
func Open(driver, dsn string, level logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			// 确保数据库文件所在的目录存在
			dbDir := filepath.Dir(dsn)
			if _, err := os.Stat(dbDir); os.IsNotExist(err) {
				log.Infof("Database directory %s does not exist, creating it...", dbDir)
				if mkErr := os.MkdirAll(dbDir, 0755); mkErr != nil {
					return nil, fmt.Errorf("create database directory %s: %w", dbDir, mkErr)
				}
			}
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	// 配置 GORM 日志级别
	newLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // 慢 SQL 阈值
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true, // 忽略ErrRecordNotFound（记录未找到）错误
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB from GORM: %w", err)
	}

	// 设置数据库连接池参数
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.WithField("driver", driver).Info("Successfully connected to database using GORM")
	return conn, nil
}

// Migrate 自动迁移数据库表结构
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.Company{},
		&models.Customer{},
		&models.User{},
		&models.ResponsePolicy{},
		&models.FeedbackRequest{},
		&models.Feedback{},
		&models.FeedbackReply{},
		&models.Task{},
		&models.ReviewSyncRun{},
		&models.Job{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate database tables: %w", err)
	}
	log.Debug("Database tables migrated successfully.")
	return nil
}

// ParseLogLevel maps a config string to a gorm log level.
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// GetDB 返回 GORM 数据库实例
func GetDB() *gorm.DB {
	if gormDB == nil {
		log.Fatal("Database not initialized. Call InitDB first.")
	}
	return gormDB
}

// CloseDB 关闭 GORM 数据库连接 (通常在应用退出时调用)
func CloseDB() {
	if gormDB != nil {
		sqlDB, err := gormDB.DB()
		if err != nil {
			log.WithError(err).Error("Error getting underlying sql.DB for closing")
			return
		}
		if err := sqlDB.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
		log.Info("Database connection closed.")
	}
}
