package services

import (
	"context"
	"fmt"
	"sync"
)

// SentEmail is one email captured by MockEmailService
type SentEmail struct {
	To      string
	Message EmailMessage
}

// MockEmailService records emails instead of sending them
type MockEmailService struct {
	sent []SentEmail
	fail error
	mu   sync.Mutex
}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{}
}

// SetAsMockForTesting sets this mock as the global email service
func (m *MockEmailService) SetAsMockForTesting() {
	SetEmailService(m)
}

// FailWith makes every send return err
func (m *MockEmailService) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *MockEmailService) SendEmail(ctx context.Context, to string, msg EmailMessage) (*EmailResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return nil, m.fail
	}
	m.sent = append(m.sent, SentEmail{To: to, Message: msg})
	return &EmailResult{Success: true, MessageID: fmt.Sprintf("mock-%d", len(m.sent))}, nil
}

// Sent returns the emails captured so far
func (m *MockEmailService) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}
