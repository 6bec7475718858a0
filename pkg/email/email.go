package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SMTPConfig holds the SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// Validate checks the fields needed to send anything.
func (c SMTPConfig) Validate() error {
	if c.Host == "" || c.Port == 0 || c.Sender == "" {
		return fmt.Errorf("SMTP host, port and sender email must be set")
	}
	return nil
}

// FeedbackRequestEmail is the data rendered into the initial invitation.
type FeedbackRequestEmail struct {
	CompanyName  string
	CustomerName string
	Link         string
}

// ReminderEmail is the data rendered into a reminder.
type ReminderEmail struct {
	CompanyName  string
	CustomerName string
	Link         string
}

// EscalationEmail is the data rendered into the notification sent to an assignee.
type EscalationEmail struct {
	AssigneeName string
	CustomerName string
	Rating       *int
	FeedbackText string
	AIReply      string
	TaskID       string
	TaskTitle    string
	DueDate      time.Time
	TaskLink     string
}

// Mailer sends the transactional e-mails used by the feedback workflows.
// Each call returns the Message-ID it generated.
type Mailer interface {
	SendFeedbackRequestEmail(ctx context.Context, to string, data FeedbackRequestEmail) (string, error)
	SendReminderEmail(ctx context.Context, to string, data ReminderEmail) (string, error)
	SendEscalationEmail(ctx context.Context, to string, data EscalationEmail) (string, error)
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers HTML e-mails through an SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
	send   sendFunc
}

// NewSMTPMailer creates a mailer for config.
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config, send: smtp.SendMail}
}

var (
	requestTemplate = template.Must(template.New("request").Parse(`
<html>
<body>
    <p>Hi {{.CustomerName}},</p>
    <p>Thank you for choosing {{.CompanyName}}. We would love to hear about your experience.</p>
    <p><a href="{{.Link}}">Share your feedback</a></p>
    <p>It only takes a minute.</p>
    <p><small>(This is an automated message, please do not reply.)</small></p>
</body>
</html>
`))

	reminderTemplate = template.Must(template.New("reminder").Parse(`
<html>
<body>
    <p>Hi {{.CustomerName}},</p>
    <p>A quick reminder: {{.CompanyName}} would still appreciate your feedback.</p>
    <p><a href="{{.Link}}">{{.Link}}</a></p>
    <p>Thank you!</p>
    <p><small>(This is an automated message, please do not reply.)</small></p>
</body>
</html>
`))

	escalationTemplate = template.Must(template.New("escalation").Parse(`
<html>
<body>
    <p>Hi {{.AssigneeName}},</p>
    <p>Negative feedback from <strong>{{.CustomerName}}</strong>{{if .Rating}} ({{.Rating}}/5){{end}} was escalated to you.</p>
    <p><strong>Feedback</strong></p>
    <blockquote>{{.FeedbackText}}</blockquote>
    <p><strong>Drafted reply</strong></p>
    <blockquote>{{.AIReply}}</blockquote>
    <p>Task: {{.TaskTitle}} (ID {{.TaskID}}), due {{.DueDate.Format "2006-01-02 15:04 MST"}}.</p>
    {{if .TaskLink}}<p><a href="{{.TaskLink}}">Open the task</a></p>{{end}}
</body>
</html>
`))
)

func (m *SMTPMailer) SendFeedbackRequestEmail(ctx context.Context, to string, data FeedbackRequestEmail) (string, error) {
	subject := fmt.Sprintf("How was your experience with %s?", data.CompanyName)
	return m.render(ctx, to, subject, requestTemplate, data)
}

func (m *SMTPMailer) SendReminderEmail(ctx context.Context, to string, data ReminderEmail) (string, error) {
	subject := fmt.Sprintf("Reminder: %s would love your feedback", data.CompanyName)
	return m.render(ctx, to, subject, reminderTemplate, data)
}

func (m *SMTPMailer) SendEscalationEmail(ctx context.Context, to string, data EscalationEmail) (string, error) {
	subject := fmt.Sprintf("[Escalation] Negative feedback from %s", data.CustomerName)
	return m.render(ctx, to, subject, escalationTemplate, data)
}

func (m *SMTPMailer) render(ctx context.Context, to, subject string, tmpl *template.Template, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}
	return m.Send(ctx, to, subject, body.String())
}

// Send delivers an HTML message and returns its Message-ID.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	if err := m.config.Validate(); err != nil {
		return "", fmt.Errorf("failed to load SMTP config: %w", err)
	}
	if to == "" {
		return "", fmt.Errorf("recipient address is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.config.Host)
	msg := buildMessage(m.config.Sender, to, subject, messageID, htmlBody)

	// 不需要认证的 SMTP 服务器不设置用户名
	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	if err := m.send(addr, auth, m.config.Sender, []string{to}, msg); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	log.WithFields(log.Fields{"to": to, "messageID": messageID}).Debug("email sent")
	return messageID, nil
}

// buildMessage constructs the e-mail with CRLF line endings and an HTML content type.
func buildMessage(from, to, subject, messageID, body string) []byte {
	return []byte(strings.Join([]string{
		"To: " + to,
		"From: " + from,
		"Subject: " + subject,
		"Message-ID: " + messageID,
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n"))
}
