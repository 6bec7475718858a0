package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/feedback_management/internal/ai"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/pkg/db/dbtest"
	"github.com/feedback_management/pkg/email"
	"github.com/feedback_management/pkg/google"
)

// fakeProvider 按顺序返回预设结果，并记录每次调用的 prompt
type fakeProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (p *fakeProvider) Name() string { return "fake:model" }

func (p *fakeProvider) Complete(_ context.Context, system, user string) (*ai.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	p.prompts = append(p.prompts, system+"\n"+user)
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	text := "Thank you for your feedback."
	if idx < len(p.replies) {
		text = p.replies[idx]
	} else if len(p.replies) > 0 {
		text = p.replies[len(p.replies)-1]
	}
	return &ai.Completion{Text: text, Raw: []byte(`{"id":"cmpl-1"}`)}, nil
}

func serverError() error {
	return &ai.ProviderError{Provider: "fake:model", StatusCode: http.StatusInternalServerError, Body: "upstream down", Err: errors.New("internal error")}
}

type sentMail struct {
	kind string
	to   string
	data interface{}
}

// captureMailer 记录所有邮件，failNext 大于 0 时让接下来的发送失败
type captureMailer struct {
	mu       sync.Mutex
	sent     []sentMail
	failNext int
}

func (m *captureMailer) record(kind, to string, data interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return "", errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, sentMail{kind: kind, to: to, data: data})
	return "<msg-" + kind + "@test>", nil
}

func (m *captureMailer) SendFeedbackRequestEmail(_ context.Context, to string, data email.FeedbackRequestEmail) (string, error) {
	return m.record("request", to, data)
}

func (m *captureMailer) SendReminderEmail(_ context.Context, to string, data email.ReminderEmail) (string, error) {
	return m.record("reminder", to, data)
}

func (m *captureMailer) SendEscalationEmail(_ context.Context, to string, data email.EscalationEmail) (string, error) {
	return m.record("escalation", to, data)
}

func (m *captureMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type fakeSMS struct {
	to   []string
	body []string
	err  error
}

func (s *fakeSMS) Send(_ context.Context, to, body string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.to = append(s.to, to)
	s.body = append(s.body, body)
	return "sms-1", nil
}

// memoryQueue 是带去重键语义的内存入队器
type memoryQueue struct {
	mu   sync.Mutex
	jobs []*models.Job
	keys map[string]bool
	err  error
}

func (q *memoryQueue) Enqueue(_ context.Context, job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.keys == nil {
		q.keys = make(map[string]bool)
	}
	if job.DedupeKey != nil {
		if q.keys[*job.DedupeKey] {
			return queue.ErrDuplicateJob
		}
		q.keys[*job.DedupeKey] = true
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memoryQueue) ofType(jobType string) []*models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.Job
	for _, j := range q.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

type fakeReviews struct {
	reviews []google.Review
	err     error
	calls   int
}

func (f *fakeReviews) ListReviews(context.Context, google.Credentials) ([]google.Review, error) {
	f.calls++
	return f.reviews, f.err
}

// fixture 把所有仓库和假依赖装配在一个内存数据库上
type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	provider *fakeProvider
	mailer   *captureMailer
	sms      *fakeSMS
	queue    *memoryQueue
	reviews  *fakeReviews

	companies repositories.CompanyRepository
	customers repositories.CustomerRepository
	users     repositories.UserRepository
	policies  repositories.ResponsePolicyRepository
	requests  repositories.FeedbackRequestRepository
	feedbacks repositories.FeedbackRepository
	replies   repositories.FeedbackReplyRepository
	tasks     repositories.TaskRepository
	runs      repositories.ReviewSyncRunRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	return &fixture{
		t:         t,
		ctx:       context.Background(),
		db:        conn,
		provider:  &fakeProvider{},
		mailer:    &captureMailer{},
		sms:       &fakeSMS{},
		queue:     &memoryQueue{},
		reviews:   &fakeReviews{},
		companies: repositories.NewGormCompanyRepository(conn),
		customers: repositories.NewGormCustomerRepository(conn),
		users:     repositories.NewGormUserRepository(conn),
		policies:  repositories.NewGormResponsePolicyRepository(conn),
		requests:  repositories.NewGormFeedbackRequestRepository(conn),
		feedbacks: repositories.NewGormFeedbackRepository(conn),
		replies:   repositories.NewGormFeedbackReplyRepository(conn),
		tasks:     repositories.NewGormTaskRepository(conn),
		runs:      repositories.NewGormReviewSyncRunRepository(conn),
	}
}

func (f *fixture) generator() *ai.ReplyGenerator {
	return ai.NewReplyGenerator(f.provider, nil, ai.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, Factor: 1}, "en")
}

func (f *fixture) replyWorkflow() *ReplyWorkflow {
	return NewReplyWorkflow(f.feedbacks, f.requests, f.companies, f.customers, f.policies, f.replies, f.generator(), f.queue, nil)
}

func (f *fixture) escalationWorkflow() *EscalationWorkflow {
	return NewEscalationWorkflow(f.feedbacks, f.requests, f.customers, f.policies, f.replies, f.tasks, f.users, f.mailer, nil,
		EscalationConfig{SLA: 4 * time.Hour, FrontendBaseURL: "https://app.example.com"})
}

func (f *fixture) feedbackService() FeedbackService {
	return NewFeedbackService(f.feedbacks, f.requests, f.replies, f.queue, nil)
}

func (f *fixture) company() *models.Company {
	f.t.Helper()
	c := &models.Company{Name: "Acme Coffee", Slug: "acme-" + uuid.NewString()[:8]}
	require.NoError(f.t, f.companies.Create(f.ctx, c))
	return c
}

func (f *fixture) customer(companyID string) *models.Customer {
	f.t.Helper()
	c := &models.Customer{CompanyID: companyID, Name: "Dana", Email: strPtr("dana@example.com"), Phone: strPtr("+14155550123")}
	require.NoError(f.t, f.customers.Create(f.ctx, c))
	return c
}

func (f *fixture) user(companyID, role string, mail *string) *models.User {
	f.t.Helper()
	u := &models.User{CompanyID: companyID, Username: role + "-" + uuid.NewString()[:8], Email: mail, PasswordHash: "x", Role: role}
	require.NoError(f.t, f.users.Create(f.ctx, u))
	return u
}

func (f *fixture) sentRequest(companyID, customerID string, sentAt time.Time) *models.FeedbackRequest {
	f.t.Helper()
	expires := sentAt.Add(30 * 24 * time.Hour)
	r := &models.FeedbackRequest{
		CompanyID:  companyID,
		CustomerID: customerID,
		Channel:    models.ChannelEmail,
		Status:     models.DeliveryStatusSent,
		SentAt:     &sentAt,
		ExpiresAt:  &expires,
	}
	require.NoError(f.t, f.requests.Create(f.ctx, r))
	return r
}

// submitted 建立一条已提交的反馈
func (f *fixture) submitted(request *models.FeedbackRequest, rating *int, comment string) *models.Feedback {
	f.t.Helper()
	fb := &models.Feedback{
		CompanyID:         request.CompanyID,
		FeedbackRequestID: &request.ID,
		Rating:            rating,
		Comment:           comment,
		IsPublic:          true,
		Source:            models.FeedbackSourceManual,
	}
	require.NoError(f.t, f.feedbacks.CreateSubmission(f.ctx, fb, time.Now()))
	return fb
}

func (f *fixture) countReplies(feedbackID string) int64 {
	var n int64
	require.NoError(f.t, f.db.Model(&models.FeedbackReply{}).Where("feedback_id = ?", feedbackID).Count(&n).Error)
	return n
}

func (f *fixture) countTasks() int64 {
	var n int64
	require.NoError(f.t, f.db.Model(&models.Task{}).Count(&n).Error)
	return n
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
