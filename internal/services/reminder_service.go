package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/metrics"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/pkg/email"
)

const (
	defaultReminderDelay = 48 * time.Hour
	reminderBatchSize    = 500
)

// ReminderService 定义了提醒邮件服务的接口
type ReminderService interface {
	// SendReminder 向仍未回复的请求发送一封提醒邮件
	SendReminder(ctx context.Context, requestID string) error
	// ScheduleDueReminders 为到期的请求入队 send_reminder 任务，返回新入队的数量
	ScheduleDueReminders(ctx context.Context, now time.Time) (int, error)
}

type reminderService struct {
	requestRepo  repositories.FeedbackRequestRepository
	companyRepo  repositories.CompanyRepository
	customerRepo repositories.CustomerRepository
	mailer       email.Mailer
	enqueuer     queue.Enqueuer
	delay        time.Duration
	frontendURL  string
	now          func() time.Time
}

// NewReminderService 创建一个新的 ReminderService 实例
func NewReminderService(
	requestRepo repositories.FeedbackRequestRepository,
	companyRepo repositories.CompanyRepository,
	customerRepo repositories.CustomerRepository,
	mailer email.Mailer,
	enqueuer queue.Enqueuer,
	delay time.Duration,
	frontendBaseURL string,
) ReminderService {
	if delay <= 0 {
		delay = defaultReminderDelay
	}
	return &reminderService{
		requestRepo:  requestRepo,
		companyRepo:  companyRepo,
		customerRepo: customerRepo,
		mailer:       mailer,
		enqueuer:     enqueuer,
		delay:        delay,
		frontendURL:  strings.TrimRight(frontendBaseURL, "/"),
		now:          time.Now,
	}
}

func (s *reminderService) SendReminder(ctx context.Context, requestID string) error {
	logger := log.WithField("requestID", requestID)

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return queue.Permanent(ErrRequestNotFound)
		}
		return fmt.Errorf("load feedback request %s: %w", requestID, err)
	}
	logger = logger.WithField("companyID", request.CompanyID)

	if !request.AwaitingResponse(s.now()) {
		logger.Info("request already answered or expired, reminder skipped")
		metrics.ObserveReminder("skipped")
		return queue.Permanent(ErrRequestAlreadyAnswered)
	}

	company, err := s.companyRepo.GetByID(ctx, request.CompanyID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return queue.Permanent(ErrCompanyNotFound)
		}
		return fmt.Errorf("load company: %w", err)
	}
	customer, err := s.customerRepo.GetByID(ctx, request.CustomerID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return queue.Permanent(ErrCustomerNotFound)
		}
		return fmt.Errorf("load customer: %w", err)
	}
	if customer.Email == nil || *customer.Email == "" {
		metrics.ObserveReminder("skipped")
		return queue.Permanent(ErrMissingContact)
	}

	data := email.ReminderEmail{
		CompanyName:  company.Name,
		CustomerName: customer.DisplayName(),
		Link:         feedbackLink(s.frontendURL, request.Token),
	}
	if _, err := s.mailer.SendReminderEmail(ctx, *customer.Email, data); err != nil {
		metrics.ObserveReminder(metrics.OutcomeError)
		logger.WithError(err).Error("failed to send reminder email")
		return fmt.Errorf("send reminder: %w", err)
	}
	if err := s.requestRepo.MarkReminderSent(ctx, request.ID, s.now()); err != nil {
		// 邮件已发出，记录失败不重试，避免重复提醒
		logger.WithError(err).Error("reminder sent but could not be recorded")
	}
	metrics.ObserveReminder(metrics.OutcomeSuccess)
	logger.Info("reminder sent")
	return nil
}

func (s *reminderService) ScheduleDueReminders(ctx context.Context, now time.Time) (int, error) {
	due, err := s.requestRepo.FindDueForReminder(ctx, now.Add(-s.delay), now, reminderBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find requests due for reminder: %w", err)
	}
	scheduled := 0
	for _, request := range due {
		job, err := queue.NewJob(queue.TypeSendReminder, queue.SendReminderPayload{RequestID: request.ID}, queue.ReminderDedupeKey(request.ID))
		if err != nil {
			return scheduled, err
		}
		if err := s.enqueuer.Enqueue(ctx, job); err != nil {
			if errors.Is(err, queue.ErrDuplicateJob) {
				continue
			}
			return scheduled, fmt.Errorf("enqueue reminder for request %s: %w", request.ID, err)
		}
		scheduled++
	}
	if scheduled > 0 {
		log.WithField("count", scheduled).Info("reminders scheduled")
	}
	return scheduled, nil
}

func feedbackLink(frontendURL, token string) string {
	return fmt.Sprintf("%s/feedback/%s", frontendURL, token)
}
