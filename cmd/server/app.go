package main

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/feedback_management/configs"
	"github.com/feedback_management/internal/ai"
	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/events"
	"github.com/feedback_management/internal/metrics"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/db"
	"github.com/feedback_management/pkg/email"
	"github.com/feedback_management/pkg/google"
	"github.com/feedback_management/pkg/sms"
)

// app 持有一个进程内所有已装配的依赖
type app struct {
	cfg       configs.Configuration
	db        *gorm.DB
	redis     *redis.Client
	queue     queue.Queue
	publisher events.Publisher
	denylist  auth.Denylist

	users    repositories.UserRepository
	policies services.ResponsePolicyService
	requests services.FeedbackRequestService
	feedback services.FeedbackService
	tasks    services.TaskService
	reminder services.ReminderService
	reviews  services.ReviewSyncService
	jobs     *services.JobHandlers
}

func newApp(ctx context.Context) (*app, error) {
	cfg := configs.AppConfig

	if err := db.InitDB(cfg.Database); err != nil {
		return nil, errors.WithMessage(err, "initialize database")
	}
	conn := db.GetDB()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, errors.WithMessage(err, "register metrics")
	}

	a := &app{cfg: cfg, db: conn}

	switch cfg.Queue.Backend {
	case "redis":
		client, err := queue.NewRedisClient(ctx, cfg.Queue.RedisURL)
		if err != nil {
			return nil, errors.WithMessage(err, "connect to redis")
		}
		rq := queue.NewRedisQueue(client)
		rq.SetMaxAttempts(cfg.Queue.MaxAttempts)
		a.redis = client
		a.queue = rq
		a.denylist = auth.NewRedisDenylist(client)
	case "", "database":
		dq := queue.NewDatabaseQueue(conn)
		dq.SetMaxAttempts(cfg.Queue.MaxAttempts)
		a.queue = dq
		a.denylist = auth.NewMemoryDenylist()
	default:
		return nil, errors.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
	a.publisher = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	companyRepo := repositories.NewGormCompanyRepository(conn)
	customerRepo := repositories.NewGormCustomerRepository(conn)
	policyRepo := repositories.NewGormResponsePolicyRepository(conn)
	requestRepo := repositories.NewGormFeedbackRequestRepository(conn)
	feedbackRepo := repositories.NewGormFeedbackRepository(conn)
	replyRepo := repositories.NewGormFeedbackReplyRepository(conn)
	taskRepo := repositories.NewGormTaskRepository(conn)
	runRepo := repositories.NewGormReviewSyncRunRepository(conn)
	a.users = repositories.NewGormUserRepository(conn)

	if cfg.AI.APIKey == "" {
		log.Warn("OPENAI_API_KEY is not set, reply generation will fail until it is configured")
	}
	provider := ai.NewOpenAIProvider(cfg.AI.Endpoint, cfg.AI.Model, cfg.AI.APIKey, cfg.AI.Timeout)
	retry := ai.DefaultRetryPolicy()
	if cfg.AI.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.AI.MaxAttempts
	}
	if cfg.AI.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.AI.InitialBackoff
	}
	generator := ai.NewReplyGenerator(provider, ai.NewProviderLanguageDetector(provider, cfg.AI.DefaultLanguage), retry, cfg.AI.DefaultLanguage)

	mailer := email.NewSMTPMailer(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
	})
	smsClient := sms.NewGatewayClient(sms.Config{
		GatewayURL: cfg.SMS.GatewayURL,
		Token:      cfg.SMS.Token,
		Sender:     cfg.SMS.Sender,
		Timeout:    cfg.SMS.Timeout,
	})
	reviewsClient := google.NewClient(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		TokenURL:     cfg.Google.TokenURL,
		APIBaseURL:   cfg.Google.APIBaseURL,
		Timeout:      cfg.Workflow.ExternalTimeout,
	})

	a.policies = services.NewResponsePolicyService(policyRepo)
	a.requests = services.NewFeedbackRequestService(requestRepo, companyRepo, customerRepo, mailer, smsClient, services.RequestDeliveryConfig{
		FrontendBaseURL: cfg.FrontendBaseURL,
		Lifetime:        cfg.Workflow.RequestLifetime,
	})
	a.feedback = services.NewFeedbackService(feedbackRepo, requestRepo, replyRepo, a.queue, a.publisher)
	a.tasks = services.NewTaskService(taskRepo)
	a.reminder = services.NewReminderService(requestRepo, companyRepo, customerRepo, mailer, a.queue, cfg.Workflow.ReminderDelay, cfg.FrontendBaseURL)
	a.reviews = services.NewReviewSyncService(companyRepo, feedbackRepo, runRepo, reviewsClient, a.queue, a.publisher)
	a.jobs = &services.JobHandlers{
		Replies: services.NewReplyWorkflow(feedbackRepo, requestRepo, companyRepo, customerRepo, policyRepo, replyRepo, generator, a.queue, a.publisher),
		Escalations: services.NewEscalationWorkflow(feedbackRepo, requestRepo, customerRepo, policyRepo, replyRepo, taskRepo, a.users, mailer, a.publisher, services.EscalationConfig{
			SLA:             cfg.Workflow.EscalationSLA,
			FrontendBaseURL: cfg.FrontendBaseURL,
		}),
		Reminders:  a.reminder,
		ReviewSync: a.reviews,
	}
	return a, nil
}

// newWorker 创建并注册好全部任务处理函数的 worker
func (a *app) newWorker() *queue.Worker {
	w := queue.NewWorker(a.queue, a.cfg.Queue.Concurrency, a.cfg.Queue.PollInterval)
	a.jobs.Register(w)
	return w
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		log.WithError(err).Warn("closing event publisher")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("closing redis client")
		}
	}
	db.CloseDB()
}
