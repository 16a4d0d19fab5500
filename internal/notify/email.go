// Package notify wraps the hosted email and SMS providers behind small
// sender interfaces, with an append-only dedup guard in front of every
// outbound email.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"leadflow/internal/config"
)

// Email is one outbound transactional message.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers one email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, e Email) (providerMessageID string, err error)
}

// NewSender returns the Resend-backed sender when an API key is configured,
// otherwise the mock sender (missing keys degrade to no-op delivery, they
// never fail the caller's primary operation).
func NewSender(cfg *config.Config) Sender {
	if cfg.ResendAPIKey == "" {
		log.Printf("RESEND_API_KEY not set, using mock email sender")
		return &MockSender{}
	}
	return &ResendSender{
		apiKey: cfg.ResendAPIKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ResendSender posts to the Resend HTTP API.
type ResendSender struct {
	apiKey string
	client *http.Client

	// BaseURL overrides the API endpoint in tests.
	BaseURL string
}

func (s *ResendSender) Send(ctx context.Context, e Email) (string, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://api.resend.com"
	}

	body, err := json.Marshal(map[string]any{
		"from":    e.From,
		"to":      []string{e.To},
		"subject": e.Subject,
		"html":    e.HTML,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("resend send failed: status %d: %s", resp.StatusCode, raw)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &parsed)
	return parsed.ID, nil
}

// MockSender records messages instead of delivering them. Also used by tests
// to assert on email bodies.
type MockSender struct {
	mu   sync.Mutex
	Sent []Email
}

func (s *MockSender) Send(_ context.Context, e Email) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, e)
	log.Printf("mock email to %s: %s", e.To, e.Subject)
	return fmt.Sprintf("mock-%d", len(s.Sent)), nil
}

// Last returns the most recently sent email, if any.
func (s *MockSender) Last() (Email, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sent) == 0 {
		return Email{}, false
	}
	return s.Sent[len(s.Sent)-1], true
}

// SendWithRetry attempts delivery up to attempts times. backoff maps the
// 1-based attempt number to the sleep before the next try, so callers choose
// the schedule (exponential for confirmations, linear for reminders).
func SendWithRetry(ctx context.Context, s Sender, e Email, attempts int, backoff func(attempt int) time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		id, err := s.Send(ctx, e)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
	}
	return "", lastErr
}

// ExponentialBackoff returns 1s, 2s, 4s... for attempts 1, 2, 3...
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}

// LinearBackoff returns 1s, 2s, 3s... for attempts 1, 2, 3...
func LinearBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * time.Second
}
