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
	"github.com/feedback_management/pkg/google"
)

// ReviewProviderGoogle 是评价同步记录中的来源名称
const ReviewProviderGoogle = "google"

// ReviewSyncService 定义了外部评价同步服务的接口
type ReviewSyncService interface {
	// Sync 拉取公司的 Google 评价并写入本地，按外部 ID 幂等
	Sync(ctx context.Context, companyID string) (*models.ReviewSyncRun, error)
	// EnqueueAll 为所有已绑定 Google 的公司入队同步任务
	EnqueueAll(ctx context.Context) (int, error)
	ListRuns(ctx context.Context, companyID string, limit int) ([]models.ReviewSyncRun, error)
}

type reviewSyncService struct {
	companyRepo  repositories.CompanyRepository
	feedbackRepo repositories.FeedbackRepository
	runRepo      repositories.ReviewSyncRunRepository
	client       google.ReviewsClient
	enqueuer     queue.Enqueuer
	publisher    events.Publisher
	now          func() time.Time
}

// NewReviewSyncService 创建一个新的 ReviewSyncService 实例
func NewReviewSyncService(
	companyRepo repositories.CompanyRepository,
	feedbackRepo repositories.FeedbackRepository,
	runRepo repositories.ReviewSyncRunRepository,
	client google.ReviewsClient,
	enqueuer queue.Enqueuer,
	publisher events.Publisher,
) ReviewSyncService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &reviewSyncService{
		companyRepo:  companyRepo,
		feedbackRepo: feedbackRepo,
		runRepo:      runRepo,
		client:       client,
		enqueuer:     enqueuer,
		publisher:    publisher,
		now:          time.Now,
	}
}

func (s *reviewSyncService) Sync(ctx context.Context, companyID string) (*models.ReviewSyncRun, error) {
	logger := log.WithFields(log.Fields{"companyID": companyID, "provider": ReviewProviderGoogle})

	company, err := s.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, queue.Permanent(ErrCompanyNotFound)
		}
		return nil, fmt.Errorf("load company: %w", err)
	}
	if !company.HasGoogleConnection() {
		return nil, queue.Permanent(ErrNoExternalAccount)
	}

	run := &models.ReviewSyncRun{
		CompanyID: company.ID,
		Provider:  ReviewProviderGoogle,
		Status:    models.SyncStatusInProgress,
		StartedAt: s.now(),
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create review sync run: %w", err)
	}
	logger = logger.WithField("runID", run.ID)

	reviews, err := s.client.ListReviews(ctx, google.Credentials{
		AccountID:    *company.GoogleAccountID,
		LocationID:   *company.GoogleLocationID,
		RefreshToken: *company.GoogleRefreshToken,
	})
	if err != nil {
		logger.WithError(err).Error("failed to fetch reviews")
		finished := s.now()
		details := []models.ReviewSyncError{{Reason: err.Error()}}
		if updErr := s.runRepo.UpdateCountsAndStatus(ctx, run.ID, repositories.ReviewSyncCounts{Errors: 1}, models.SyncStatusFailed, details, &finished); updErr != nil {
			logger.WithError(updErr).Error("failed to record failed sync run")
		}
		metrics.ObserveReviewSync(ReviewProviderGoogle, 0, 0, 1)
		return nil, fmt.Errorf("fetch google reviews: %w", err)
	}

	counts, failures, err := s.importReviews(ctx, company.ID, reviews)
	if err != nil {
		return nil, err
	}

	status := models.SyncStatusCompleted
	if counts.Errors > 0 {
		status = models.SyncStatusCompletedWithErrors
	}
	finished := s.now()
	if err := s.runRepo.UpdateCountsAndStatus(ctx, run.ID, counts, status, failures, &finished); err != nil {
		return nil, fmt.Errorf("update review sync run: %w", err)
	}
	metrics.ObserveReviewSync(ReviewProviderGoogle, counts.Synced, counts.Skipped, counts.Errors)

	logger.WithFields(log.Fields{
		"fetched": counts.Fetched,
		"synced":  counts.Synced,
		"skipped": counts.Skipped,
		"errors":  counts.Errors,
	}).Info("google reviews synced")
	events.PublishQuietly(ctx, s.publisher, events.New(events.TypeReviewsSynced, run.ID, company.ID, map[string]interface{}{
		"synced":  counts.Synced,
		"skipped": counts.Skipped,
		"errors":  counts.Errors,
	}))

	return s.runRepo.GetByID(ctx, run.ID)
}

// importReviews 写入新评价；已存在或同批次重复的外部 ID 计为跳过
func (s *reviewSyncService) importReviews(ctx context.Context, companyID string, reviews []google.Review) (repositories.ReviewSyncCounts, []models.ReviewSyncError, error) {
	counts := repositories.ReviewSyncCounts{Fetched: len(reviews)}
	var failures []models.ReviewSyncError

	ids := make([]string, 0, len(reviews))
	for _, review := range reviews {
		if review.ExternalID != "" {
			ids = append(ids, review.ExternalID)
		}
	}
	existing, err := s.feedbackRepo.ExistingExternalIDs(ctx, companyID, models.FeedbackSourceGoogle, ids)
	if err != nil {
		return counts, nil, fmt.Errorf("load existing review ids: %w", err)
	}

	seen := make(map[string]bool, len(reviews))
	for _, review := range reviews {
		if review.ExternalID == "" {
			counts.Errors++
			failures = append(failures, models.ReviewSyncError{Reason: "review without id"})
			continue
		}
		if existing[review.ExternalID] || seen[review.ExternalID] {
			counts.Skipped++
			continue
		}
		seen[review.ExternalID] = true

		if err := s.feedbackRepo.Create(ctx, reviewToFeedback(companyID, review)); err != nil {
			if repositories.IsUniqueViolation(err) {
				counts.Skipped++
				continue
			}
			log.WithError(err).WithField("externalID", review.ExternalID).Warn("failed to store review")
			counts.Errors++
			failures = append(failures, models.ReviewSyncError{ExternalID: review.ExternalID, Reason: err.Error()})
			continue
		}
		counts.Synced++
	}
	return counts, failures, nil
}

func reviewToFeedback(companyID string, review google.Review) *models.Feedback {
	externalID := review.ExternalID
	feedback := &models.Feedback{
		CompanyID:  companyID,
		Rating:     review.Rating,
		Comment:    strings.TrimSpace(review.Comment),
		IsPublic:   true,
		Source:     models.FeedbackSourceGoogle,
		ExternalID: &externalID,
	}
	if review.ReviewerName != "" {
		name := review.ReviewerName
		feedback.ReviewerName = &name
	}
	if !review.CreatedAt.IsZero() {
		reviewedAt := review.CreatedAt
		feedback.ReviewedAt = &reviewedAt
	}
	return feedback
}

func (s *reviewSyncService) EnqueueAll(ctx context.Context) (int, error) {
	companies, err := s.companyRepo.FindWithGoogleConnection(ctx)
	if err != nil {
		return 0, fmt.Errorf("list connected companies: %w", err)
	}
	enqueued := 0
	for _, company := range companies {
		job, err := queue.NewJob(queue.TypeSyncReviews, queue.SyncReviewsPayload{CompanyID: company.ID}, "")
		if err != nil {
			return enqueued, err
		}
		if err := s.enqueuer.Enqueue(ctx, job); err != nil {
			return enqueued, fmt.Errorf("enqueue review sync for company %s: %w", company.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}

func (s *reviewSyncService) ListRuns(ctx context.Context, companyID string, limit int) ([]models.ReviewSyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runRepo.ListForCompany(ctx, companyID, limit)
}
