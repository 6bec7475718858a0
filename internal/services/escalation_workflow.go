package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/events"
	"github.com/feedback_management/internal/metrics"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/pkg/email"
)

// 升级结果，用于指标标签
const (
	escalationCreated    = "created"
	escalationReused     = "reused"
	escalationUnassigned = "unassigned"
	escalationError      = "error"
)

const defaultEscalationSLA = 4 * time.Hour

// EscalationWorkflow turns a negative-feedback reply into a critical task,
// assigns it to the policy's escalation role and notifies the assignee.
type EscalationWorkflow struct {
	feedbackRepo repositories.FeedbackRepository
	requestRepo  repositories.FeedbackRequestRepository
	customerRepo repositories.CustomerRepository
	policyRepo   repositories.ResponsePolicyRepository
	replyRepo    repositories.FeedbackReplyRepository
	taskRepo     repositories.TaskRepository
	userRepo     repositories.UserRepository
	mailer       email.Mailer
	publisher    events.Publisher
	sla          time.Duration
	frontendURL  string
	now          func() time.Time
}

// EscalationConfig carries the timing and link settings of the workflow.
type EscalationConfig struct {
	SLA             time.Duration
	FrontendBaseURL string
}

// NewEscalationWorkflow wires the workflow dependencies.
func NewEscalationWorkflow(
	feedbackRepo repositories.FeedbackRepository,
	requestRepo repositories.FeedbackRequestRepository,
	customerRepo repositories.CustomerRepository,
	policyRepo repositories.ResponsePolicyRepository,
	replyRepo repositories.FeedbackReplyRepository,
	taskRepo repositories.TaskRepository,
	userRepo repositories.UserRepository,
	mailer email.Mailer,
	publisher events.Publisher,
	cfg EscalationConfig,
) *EscalationWorkflow {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if cfg.SLA <= 0 {
		cfg.SLA = defaultEscalationSLA
	}
	return &EscalationWorkflow{
		feedbackRepo: feedbackRepo,
		requestRepo:  requestRepo,
		customerRepo: customerRepo,
		policyRepo:   policyRepo,
		replyRepo:    replyRepo,
		taskRepo:     taskRepo,
		userRepo:     userRepo,
		mailer:       mailer,
		publisher:    publisher,
		sla:          cfg.SLA,
		frontendURL:  strings.TrimRight(cfg.FrontendBaseURL, "/"),
		now:          time.Now,
	}
}

// Run escalates one reply. Running it again for the same reply reuses the
// existing task and only performs the steps that have not completed yet.
func (w *EscalationWorkflow) Run(ctx context.Context, requestID, replyID string) (*models.Task, error) {
	logger := log.WithFields(log.Fields{"requestID": requestID, "replyID": replyID})

	reply, err := w.replyRepo.GetByID(ctx, replyID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			metrics.ObserveEscalation(escalationError)
			return nil, queue.Permanent(ErrReplyNotFound)
		}
		return nil, fmt.Errorf("load reply %s: %w", replyID, err)
	}
	feedback, err := w.feedbackRepo.GetByID(ctx, reply.FeedbackID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			metrics.ObserveEscalation(escalationError)
			return nil, queue.Permanent(ErrFeedbackNotFound)
		}
		return nil, fmt.Errorf("load feedback %s: %w", reply.FeedbackID, err)
	}
	logger = logger.WithFields(log.Fields{"companyID": feedback.CompanyID, "feedbackID": feedback.ID})

	var request *models.FeedbackRequest
	if requestID == "" && feedback.FeedbackRequestID != nil {
		requestID = *feedback.FeedbackRequestID
	}
	if requestID != "" {
		request, err = w.requestRepo.GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, repositories.ErrRecordNotFound) {
				metrics.ObserveEscalation(escalationError)
				return nil, queue.Permanent(ErrRequestNotFound)
			}
			return nil, fmt.Errorf("load feedback request %s: %w", requestID, err)
		}
	}

	policy, err := w.policyRepo.GetOrCreate(ctx, feedback.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("load response policy: %w", err)
	}

	customerName := w.customerName(ctx, feedback, request)

	// 查找负责人失败不阻塞升级，工单保持未分配
	assignee, err := w.userRepo.FindFirstByCompanyAndRole(ctx, feedback.CompanyID, policy.EscalationRole())
	if err != nil {
		logger.WithError(err).Warn("failed to look up escalation assignee, leaving task unassigned")
		assignee = nil
	}

	task, outcome, err := w.findOrCreateTask(ctx, feedback, request, reply, customerName, assignee)
	if err != nil {
		metrics.ObserveEscalation(escalationError)
		return nil, err
	}
	logger = logger.WithField("taskID", task.ID)

	switch {
	case task.AssignedTo != nil && (assignee == nil || *task.AssignedTo != assignee.ID):
		// 复用的工单已有负责人，通知发给原负责人
		assignee, err = w.userRepo.GetByID(ctx, *task.AssignedTo)
		if err != nil {
			logger.WithError(err).Warn("failed to load task assignee")
			assignee = nil
		}
	case task.AssignedTo == nil && assignee != nil:
		if _, err := w.taskRepo.AssignIfUnassigned(ctx, task.ID, assignee.ID); err != nil {
			metrics.ObserveEscalation(escalationError)
			return task, &PartialFailureError{TaskID: task.ID, Stage: StageAssign, Err: err}
		}
		task.AssignedTo = &assignee.ID
	}
	if task.AssignedTo == nil {
		logger.WithField("role", policy.EscalationRole()).Warn("no user holds the escalation role, task left unassigned")
		outcome = escalationUnassigned
	}

	if assignee != nil && assignee.Email != nil && *assignee.Email != "" && task.NotifiedAt == nil {
		data := email.EscalationEmail{
			AssigneeName: assignee.Username,
			CustomerName: customerName,
			Rating:       feedback.Rating,
			FeedbackText: feedbackText(feedback, request),
			AIReply:      reply.Content,
			TaskID:       task.ID,
			TaskTitle:    task.Title,
			DueDate:      task.DueDate,
			TaskLink:     fmt.Sprintf("%s/tasks/%s", w.frontendURL, task.ID),
		}
		if _, err := w.mailer.SendEscalationEmail(ctx, *assignee.Email, data); err != nil {
			metrics.ObserveEscalation(escalationError)
			logger.WithError(err).Error("failed to notify escalation assignee")
			return task, &PartialFailureError{TaskID: task.ID, Stage: StageNotify, Err: err}
		}
		notifiedAt := w.now()
		if err := w.taskRepo.MarkNotified(ctx, task.ID, notifiedAt); err != nil {
			logger.WithError(err).Warn("failed to record notification time")
		} else {
			task.NotifiedAt = &notifiedAt
		}
	}

	marked, err := w.replyRepo.TransitionStatus(ctx, reply.ID, models.ReplyStatusPending, models.ReplyStatusEscalated)
	if err != nil {
		metrics.ObserveEscalation(escalationError)
		return task, &PartialFailureError{TaskID: task.ID, Stage: StageMark, Err: err}
	}
	if !marked {
		// 回复已被运营发送或已标记过，工单保留，不再发布升级事件
		metrics.ObserveEscalation(outcome)
		logger.WithField("outcome", outcome).Info("reply no longer pending, escalation task kept without marking the reply")
		return task, nil
	}

	metrics.ObserveEscalation(outcome)
	logger.WithField("outcome", outcome).Info("feedback escalated")
	events.PublishQuietly(ctx, w.publisher, events.New(events.TypeReplyEscalated, reply.ID, feedback.CompanyID, map[string]interface{}{
		"feedbackId": feedback.ID,
		"taskId":     task.ID,
		"assignedTo": task.AssignedTo,
	}))
	return task, nil
}

// findOrCreateTask 新建的工单在同一条 INSERT 中带上负责人
func (w *EscalationWorkflow) findOrCreateTask(ctx context.Context, feedback *models.Feedback, request *models.FeedbackRequest, reply *models.FeedbackReply, customerName string, assignee *models.User) (*models.Task, string, error) {
	existing, err := w.taskRepo.FindByReplyID(ctx, reply.ID)
	if err != nil {
		return nil, "", fmt.Errorf("look up task for reply %s: %w", reply.ID, err)
	}
	if existing != nil {
		return existing, escalationReused, nil
	}

	replyID := reply.ID
	task := &models.Task{
		CompanyID:       feedback.CompanyID,
		FeedbackReplyID: &replyID,
		Title:           fmt.Sprintf("Escalation: negative feedback from %s", customerName),
		Description:     escalationDescription(feedback, request, reply),
		Priority:        models.TaskPriorityCritical,
		Status:          models.TaskStatusOpen,
		DueDate:         reply.CreatedAt.Add(w.sla),
	}
	if request != nil {
		requestID := request.ID
		task.FeedbackRequestID = &requestID
	}
	if assignee != nil {
		assigneeID := assignee.ID
		task.AssignedTo = &assigneeID
	}
	if err := w.taskRepo.Create(ctx, task); err != nil {
		if errors.Is(err, repositories.ErrTaskExists) {
			// 并发的另一次执行先建了单
			existing, findErr := w.taskRepo.FindByReplyID(ctx, reply.ID)
			if findErr != nil || existing == nil {
				return nil, "", fmt.Errorf("reload concurrently created task: %w", err)
			}
			return existing, escalationReused, nil
		}
		return nil, "", fmt.Errorf("create escalation task: %w", err)
	}
	return task, escalationCreated, nil
}

func (w *EscalationWorkflow) customerName(ctx context.Context, feedback *models.Feedback, request *models.FeedbackRequest) string {
	if request != nil {
		if customer, err := w.customerRepo.GetByID(ctx, request.CustomerID); err == nil {
			return customer.DisplayName()
		}
	}
	if feedback.ReviewerName != nil && *feedback.ReviewerName != "" {
		return *feedback.ReviewerName
	}
	return models.DefaultCustomerName
}

func escalationDescription(feedback *models.Feedback, request *models.FeedbackRequest, reply *models.FeedbackReply) string {
	var b strings.Builder
	if feedback.Rating != nil {
		fmt.Fprintf(&b, "Rating: %d/5\n\n", *feedback.Rating)
	}
	text := strings.TrimSpace(feedback.Comment)
	if text == "" && request != nil && request.FeedbackText != nil {
		text = strings.TrimSpace(*request.FeedbackText)
	}
	if text == "" {
		text = "(no comment)"
	}
	b.WriteString("Customer feedback:\n")
	b.WriteString(text)
	b.WriteString("\n\nAI-generated reply:\n")
	b.WriteString(reply.Content)
	return b.String()
}
