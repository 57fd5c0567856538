package services

import (
	"context"
	"strings"
	"time"

	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/repository"
)

// MessageInput is a new message in a request's conversation
type MessageInput struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// MessageService keeps the conversation between admins and a requester
type MessageService struct {
	messages *repository.MessageRepository
	requests *repository.ServiceRequestRepository
	email    EmailService
	notifier *realtime.Notifier
	mail     *mailer
}

func NewMessageService(
	messages *repository.MessageRepository,
	requests *repository.ServiceRequestRepository,
	email EmailService,
	notifier *realtime.Notifier,
	mail *mailer,
) *MessageService {
	return &MessageService{messages: messages, requests: requests, email: email, notifier: notifier, mail: mail}
}

func (s *MessageService) loadRequest(ctx context.Context, requestID string) (*models.ServiceRequest, error) {
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, storeOrNotFound(err, "REQUEST_NOT_FOUND", "Service request not found", "Failed to load service request")
	}
	return request, nil
}

// ListMessages returns the conversation of a request, oldest first
func (s *MessageService) ListMessages(ctx context.Context, requestID string) ([]models.Message, error) {
	if _, err := s.loadRequest(ctx, requestID); err != nil {
		return nil, err
	}
	messages, err := s.messages.List(ctx, requestID)
	if err != nil {
		return nil, StoreError("Failed to load messages", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// PostMessage adds a message. An admin reply also stamps the request's last
// contact time and emails the requester.
func (s *MessageService) PostMessage(ctx context.Context, actor Actor, requestID string, input MessageInput) (*models.Message, error) {
	input.Body = strings.TrimSpace(input.Body)
	if err := validate.Struct(input); err != nil {
		return nil, ValidationError("VALIDATION_ERROR", "Message body is required", ValidationDetails(err))
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ServiceRequestID: request.ID,
		SenderName:       actor.Name,
		SenderEmail:      actor.Email,
		Body:             input.Body,
		IsAdminReply:     actor.Admin,
	}
	if actor.UserID != "" {
		message.SenderID = &actor.UserID
	}
	if message.SenderName == "" {
		message.SenderName = request.Name
	}
	if message.SenderEmail == "" {
		message.SenderEmail = request.Email
	}

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, StoreError("Failed to save message", err)
	}
	logger.Info("message posted", "request_id", request.ID, "message_id", message.ID, "admin_reply", message.IsAdminReply)

	if actor.Admin {
		s.recordContact(ctx, request)

		reply, err := MessageReplyEmail(request, message.SenderName, message.Body)
		if err != nil {
			logger.Warn("failed to render reply email", "request_id", request.ID, "partial_failure", true, "error", err)
		} else {
			s.mail.dispatch(ctx, s.email, request.Email, reply, "request_id", request.ID, "message_id", message.ID)
		}
	}
	return message, nil
}

// recordContact stamps last_contact_at. The message is already saved, so a
// failure here is only logged.
func (s *MessageService) recordContact(ctx context.Context, request *models.ServiceRequest) {
	now := time.Now()
	err := s.requests.Update(ctx, request.ID, map[string]any{
		"last_contact_at": now,
		"updated_at":      now,
	})
	if err != nil {
		logger.Warn("failed to record last contact", "request_id", request.ID, "partial_failure", true, "error", err)
		return
	}

	updated, err := s.requests.Get(ctx, request.ID)
	if err != nil {
		logger.Warn("failed to reload service request", "request_id", request.ID, "error", err)
		return
	}
	s.notifier.Updated(ctx, realtime.TableServiceRequests, *request, *updated)
}
