package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/pkg/email"
)

func (f *fixture) requestService() FeedbackRequestService {
	return NewFeedbackRequestService(f.requests, f.companies, f.customers, f.mailer, f.sms,
		RequestDeliveryConfig{FrontendBaseURL: "https://app.example.com", Lifetime: 7 * 24 * time.Hour})
}

func TestSendFeedbackRequestByEmail(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	customer := f.customer(company.ID)

	result, err := f.requestService().Send(f.ctx, SendRequestInput{CompanyID: company.ID, CustomerID: customer.ID, Channel: models.ChannelEmail, Language: "FR"})
	require.NoError(t, err)

	req := result.Request
	assert.Equal(t, models.DeliveryStatusSent, req.Status)
	require.NotNil(t, req.ProviderMessageID)
	assert.Equal(t, "<msg-request@test>", *req.ProviderMessageID)
	require.NotNil(t, req.Language)
	assert.Equal(t, "fr", *req.Language)
	require.NotNil(t, req.ExpiresAt)
	assert.Equal(t, "https://app.example.com/feedback/"+req.Token, result.Link)

	require.Len(t, f.mailer.sent, 1)
	data := f.mailer.sent[0].data.(email.FeedbackRequestEmail)
	assert.Equal(t, result.Link, data.Link)
	assert.Equal(t, "Acme Coffee", data.CompanyName)

	stored, err := f.requests.GetByID(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusSent, stored.Status)
	assert.NotNil(t, stored.SentAt)
}

func TestSendFeedbackRequestBySMSAndQR(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	customer := f.customer(company.ID)
	svc := f.requestService()

	result, err := svc.Send(f.ctx, SendRequestInput{CompanyID: company.ID, CustomerID: customer.ID, Channel: models.ChannelSMS})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusSent, result.Request.Status)
	require.Len(t, f.sms.to, 1)
	assert.Equal(t, "+14155550123", f.sms.to[0])
	assert.True(t, strings.Contains(f.sms.body[0], result.Link))

	qr, err := svc.Send(f.ctx, SendRequestInput{CompanyID: company.ID, CustomerID: customer.ID, Channel: models.ChannelQR})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusGenerated, qr.Request.Status)
	assert.Len(t, f.sms.to, 1)
	assert.Empty(t, f.mailer.sent)
}

func TestSendFeedbackRequestFailures(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	noContact := &models.Customer{CompanyID: company.ID, Name: "Eve"}
	require.NoError(t, f.customers.Create(f.ctx, noContact))
	svc := f.requestService()

	_, err := svc.Send(f.ctx, SendRequestInput{CompanyID: company.ID, CustomerID: noContact.ID, Channel: models.ChannelEmail})
	assert.ErrorIs(t, err, ErrMissingContact)

	_, err = svc.Send(f.ctx, SendRequestInput{CompanyID: company.ID, CustomerID: noContact.ID, Channel: "fax"})
	assert.ErrorIs(t, err, ErrInvalidChannel)

	other := f.company()
	_, err = svc.Send(f.ctx, SendRequestInput{CompanyID: other.ID, CustomerID: noContact.ID, Channel: models.ChannelQR})
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	customer := f.customer(company.ID)
	f.sms.err = errors.New("gateway down")
	result, err := svc.Send(f.ctx, SendRequestInput{CompanyID: company.ID, CustomerID: customer.ID, Channel: models.ChannelSMS})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	require.NotNil(t, result)
	assert.Equal(t, models.DeliveryStatusFailed, result.Request.Status)
}

func TestPublicRequestView(t *testing.T) {
	f := newFixture(t)
	company := f.company()
	request := f.sentRequest(company.ID, f.customer(company.ID).ID, time.Now())
	svc := f.requestService()

	view, err := svc.GetByToken(f.ctx, request.Token)
	require.NoError(t, err)
	assert.Equal(t, "Acme Coffee", view.CompanyName)
	assert.Equal(t, "Dana", view.CustomerName)
	assert.False(t, view.Submitted)
	assert.False(t, view.Expired)

	f.submitted(request, intPtr(5), "")
	view, err = svc.GetByToken(f.ctx, request.Token)
	require.NoError(t, err)
	assert.True(t, view.Submitted)

	_, err = svc.GetByToken(f.ctx, "unknown")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
