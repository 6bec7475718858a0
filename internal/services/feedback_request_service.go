package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/ai"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/pkg/email"
	"github.com/feedback_management/pkg/sms"
	"github.com/feedback_management/pkg/utils"
)

const defaultRequestLifetime = 30 * 24 * time.Hour

// SendRequestInput 定义了发送反馈请求的参数
type SendRequestInput struct {
	CompanyID  string                 `json:"-"`
	CustomerID string                 `json:"customerId" binding:"required"`
	Channel    models.DeliveryChannel `json:"channel" binding:"required,oneof=sms email qr"`
	Language   string                 `json:"language,omitempty" binding:"omitempty,max=16"`
}

// SendRequestResult 包含新建的请求和客户提交反馈的链接
type SendRequestResult struct {
	Request *models.FeedbackRequest `json:"request"`
	Link    string                  `json:"link"`
}

// PublicRequestView 是公开反馈页面看到的请求信息
type PublicRequestView struct {
	CompanyName  string `json:"companyName"`
	CustomerName string `json:"customerName"`
	Submitted    bool   `json:"submitted"`
	Expired      bool   `json:"expired"`
}

// FeedbackRequestService 定义了反馈请求服务的接口
type FeedbackRequestService interface {
	Send(ctx context.Context, input SendRequestInput) (*SendRequestResult, error)
	GetByToken(ctx context.Context, token string) (*PublicRequestView, error)
	ListForCompany(ctx context.Context, companyID string, page, limit int) ([]models.FeedbackRequest, int64, error)
}

// RequestDeliveryConfig 定义了请求链接和有效期
type RequestDeliveryConfig struct {
	FrontendBaseURL string
	Lifetime        time.Duration
}

type feedbackRequestService struct {
	requestRepo  repositories.FeedbackRequestRepository
	companyRepo  repositories.CompanyRepository
	customerRepo repositories.CustomerRepository
	mailer       email.Mailer
	smsSender    sms.Sender
	frontendURL  string
	lifetime     time.Duration
	now          func() time.Time
}

// NewFeedbackRequestService 创建一个新的 FeedbackRequestService 实例
func NewFeedbackRequestService(
	requestRepo repositories.FeedbackRequestRepository,
	companyRepo repositories.CompanyRepository,
	customerRepo repositories.CustomerRepository,
	mailer email.Mailer,
	smsSender sms.Sender,
	cfg RequestDeliveryConfig,
) FeedbackRequestService {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultRequestLifetime
	}
	return &feedbackRequestService{
		requestRepo:  requestRepo,
		companyRepo:  companyRepo,
		customerRepo: customerRepo,
		mailer:       mailer,
		smsSender:    smsSender,
		frontendURL:  strings.TrimRight(cfg.FrontendBaseURL, "/"),
		lifetime:     cfg.Lifetime,
		now:          time.Now,
	}
}

func (s *feedbackRequestService) Send(ctx context.Context, input SendRequestInput) (*SendRequestResult, error) {
	if !input.Channel.IsValid() {
		return nil, ErrInvalidChannel
	}
	company, err := s.companyRepo.GetByID(ctx, input.CompanyID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("load company: %w", err)
	}
	customer, err := s.customerRepo.GetForCompany(ctx, company.ID, input.CustomerID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	var contact string
	switch input.Channel {
	case models.ChannelEmail:
		if customer.Email == nil || *customer.Email == "" || !utils.ValidateEmailFormat(*customer.Email) {
			return nil, ErrMissingContact
		}
		contact = strings.TrimSpace(*customer.Email)
	case models.ChannelSMS:
		if customer.Phone == nil {
			return nil, ErrMissingContact
		}
		if err := utils.ValidatePhoneNumber(*customer.Phone); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingContact, err)
		}
		contact = utils.NormalizePhoneNumber(*customer.Phone)
	}

	expiresAt := s.now().Add(s.lifetime)
	request := &models.FeedbackRequest{
		CompanyID:  company.ID,
		CustomerID: customer.ID,
		Channel:    input.Channel,
		Status:     models.DeliveryStatusPending,
		ExpiresAt:  &expiresAt,
	}
	if lang := strings.TrimSpace(input.Language); lang != "" && !ai.WantsDetection(lang) {
		code, ok := ai.NormalizeLanguage(lang)
		if !ok {
			return nil, fmt.Errorf("%w: unknown language %q", ErrInvalidPolicy, lang)
		}
		request.Language = &code
	}
	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("create feedback request: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"companyID": company.ID,
		"requestID": request.ID,
		"channel":   request.Channel,
	})
	result := &SendRequestResult{Request: request, Link: feedbackLink(s.frontendURL, request.Token)}

	if input.Channel == models.ChannelQR {
		if err := s.recordDelivery(ctx, request, models.DeliveryStatusGenerated, nil); err != nil {
			return nil, err
		}
		logger.Info("feedback QR link generated")
		return result, nil
	}

	messageID, sendErr := s.dispatch(ctx, request.Channel, contact, company, customer, result.Link)
	if sendErr != nil {
		logger.WithError(sendErr).Error("failed to deliver feedback request")
		if err := s.recordDelivery(ctx, request, models.DeliveryStatusFailed, nil); err != nil {
			logger.WithError(err).Error("failed to record delivery failure")
		}
		return result, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}
	if err := s.recordDelivery(ctx, request, models.DeliveryStatusSent, &messageID); err != nil {
		return nil, err
	}
	logger.Info("feedback request sent")
	return result, nil
}

func (s *feedbackRequestService) dispatch(ctx context.Context, channel models.DeliveryChannel, contact string, company *models.Company, customer *models.Customer, link string) (string, error) {
	switch channel {
	case models.ChannelEmail:
		return s.mailer.SendFeedbackRequestEmail(ctx, contact, email.FeedbackRequestEmail{
			CompanyName:  company.Name,
			CustomerName: customer.DisplayName(),
			Link:         link,
		})
	case models.ChannelSMS:
		body := fmt.Sprintf("Hi %s, %s would love to hear about your experience: %s", customer.DisplayName(), company.Name, link)
		return s.smsSender.Send(ctx, contact, body)
	}
	return "", ErrInvalidChannel
}

func (s *feedbackRequestService) recordDelivery(ctx context.Context, request *models.FeedbackRequest, status models.DeliveryStatus, messageID *string) error {
	var sentAt *time.Time
	if status == models.DeliveryStatusSent || status == models.DeliveryStatusGenerated {
		now := s.now()
		sentAt = &now
	}
	if messageID != nil && *messageID == "" {
		messageID = nil
	}
	if err := s.requestRepo.UpdateDelivery(ctx, request.ID, status, messageID, sentAt); err != nil {
		return fmt.Errorf("record delivery status: %w", err)
	}
	request.Status = status
	request.ProviderMessageID = messageID
	request.SentAt = sentAt
	return nil
}

func (s *feedbackRequestService) GetByToken(ctx context.Context, token string) (*PublicRequestView, error) {
	request, err := s.requestRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load feedback request: %w", err)
	}
	view := &PublicRequestView{
		Submitted: request.RespondedAt != nil,
		Expired:   request.ExpiresAt != nil && s.now().After(*request.ExpiresAt),
	}
	if company, err := s.companyRepo.GetByID(ctx, request.CompanyID); err == nil {
		view.CompanyName = company.Name
	}
	customer, err := s.customerRepo.GetByID(ctx, request.CustomerID)
	if err != nil {
		customer = nil
	}
	view.CustomerName = customer.DisplayName()
	return view, nil
}

func (s *feedbackRequestService) ListForCompany(ctx context.Context, companyID string, page, limit int) ([]models.FeedbackRequest, int64, error) {
	return s.requestRepo.ListForCompany(ctx, companyID, page, limit)
}
