package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/repositories"
)

// TaskService 定义了升级工单服务的接口
type TaskService interface {
	ListForCompany(ctx context.Context, companyID string, status models.TaskStatus, page, limit int) ([]models.Task, int64, error)
	UpdateStatus(ctx context.Context, companyID, taskID string, status models.TaskStatus) (*models.Task, error)
}

type taskService struct {
	repo repositories.TaskRepository
}

// NewTaskService 创建一个新的 TaskService 实例
func NewTaskService(repo repositories.TaskRepository) TaskService {
	return &taskService{repo: repo}
}

func (s *taskService) ListForCompany(ctx context.Context, companyID string, status models.TaskStatus, page, limit int) ([]models.Task, int64, error) {
	return s.repo.ListForCompany(ctx, companyID, status, page, limit)
}

func (s *taskService) UpdateStatus(ctx context.Context, companyID, taskID string, status models.TaskStatus) (*models.Task, error) {
	switch status {
	case models.TaskStatusOpen, models.TaskStatusInProgress, models.TaskStatusResolved, models.TaskStatusClosed:
	default:
		return nil, fmt.Errorf("unknown task status %q", status)
	}
	if err := s.repo.UpdateStatus(ctx, companyID, taskID, status); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("update task status: %w", err)
	}
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("reload task: %w", err)
	}
	return task, nil
}
