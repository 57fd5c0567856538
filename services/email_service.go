package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/sourcemarket/sourcemarket-api/config"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/models"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// EmailMessage is a rendered email with HTML and plain-text bodies
type EmailMessage struct {
	Subject string
	HTML    string
	Text    string
}

// EmailResult reports a dispatched email
type EmailResult struct {
	Success   bool
	MessageID string
}

// EmailService delivers notification emails
type EmailService interface {
	SendEmail(ctx context.Context, to string, msg EmailMessage) (*EmailResult, error)
}

// SMTPEmailService sends through an SMTP relay
type SMTPEmailService struct {
	dialer *gomail.Dialer
	from   string
}

var emailServiceInstance EmailService

// InitEmailService picks the SMTP sender when SMTP is configured, otherwise
// emails are only logged
func InitEmailService(cfg *config.Config) EmailService {
	if cfg.SMTPEnabled() {
		emailServiceInstance = &SMTPEmailService{
			dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
			from:   cfg.SMTPFrom,
		}
	} else {
		logger.Warn("SMTP is not configured, notification emails will only be logged")
		emailServiceInstance = logEmailService{}
	}
	return emailServiceInstance
}

// GetEmailService returns the initialized email service
func GetEmailService() EmailService {
	return emailServiceInstance
}

// SetEmailService sets the email service instance (primarily for testing)
func SetEmailService(service EmailService) {
	emailServiceInstance = service
}

func (s *SMTPEmailService) SendEmail(ctx context.Context, to string, msg EmailMessage) (*EmailResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messageID := fmt.Sprintf("<%s@sourcemarket>", uuid.NewString())
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return &EmailResult{Success: true, MessageID: messageID}, nil
}

type logEmailService struct{}

func (logEmailService) SendEmail(ctx context.Context, to string, msg EmailMessage) (*EmailResult, error) {
	logger.Info("email not sent, SMTP disabled", "to", to, "subject", msg.Subject)
	return &EmailResult{Success: false}, nil
}

type newRequestEmailData struct {
	Request      *models.ServiceRequest
	Requirements models.Attributes
}

type replyEmailData struct {
	Request    *models.ServiceRequest
	SenderName string
	Body       string
}

func renderEmail(name, subject string, data any) (EmailMessage, error) {
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html", data); err != nil {
		return EmailMessage{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return EmailMessage{}, fmt.Errorf("render %s text: %w", name, err)
	}
	return EmailMessage{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

// NewServiceRequestEmail renders the admin notification for a new request
func NewServiceRequestEmail(request *models.ServiceRequest) (EmailMessage, error) {
	subject := fmt.Sprintf("New service request: %s", request.Title)
	return renderEmail("new_service_request", subject, newRequestEmailData{
		Request:      request,
		Requirements: request.Requirements.Data(),
	})
}

// MessageReplyEmail renders the email sent to a requester when an admin replies
func MessageReplyEmail(request *models.ServiceRequest, senderName, body string) (EmailMessage, error) {
	subject := fmt.Sprintf("Re: %s", request.Title)
	return renderEmail("message_reply", subject, replyEmailData{
		Request:    request,
		SenderName: senderName,
		Body:       body,
	})
}

const emailTimeout = 30 * time.Second

// mailer sends emails in the background. Failures are logged as partial
// failures and never reach the caller. Once closed it drops new emails.
type mailer struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func (m *mailer) dispatch(ctx context.Context, email EmailService, to string, msg EmailMessage, attrs ...any) {
	if email == nil {
		logger.Warn("no email service configured, dropping notification", append(attrs, "to", to, "partial_failure", true)...)
		return
	}

	// Add under the lock so close never observes a counter it is not waiting on
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		logger.Warn("shutting down, dropping notification", append(attrs, "to", to, "subject", msg.Subject, "partial_failure", true)...)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
		defer cancel()

		result, err := email.SendEmail(sendCtx, to, msg)
		if err != nil {
			logger.Warn("failed to send notification email",
				append(attrs, "to", to, "subject", msg.Subject, "partial_failure", true, "error", err)...)
			return
		}
		if result != nil && result.Success {
			logger.Info("notification email sent", append(attrs, "to", to, "message_id", result.MessageID)...)
		}
	}()
}

// wait blocks until every dispatched email has finished
func (m *mailer) wait() {
	m.wg.Wait()
}

// close stops accepting emails and waits for the ones in flight
func (m *mailer) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}
