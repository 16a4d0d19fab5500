package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"leadflow/internal/config"
)

// SMSSender delivers one text message to an E.164 number.
type SMSSender interface {
	SendSMS(ctx context.Context, toE164, body string) error
}

// NewSMSSender selects the backend from SMS_PROVIDER. Unknown values degrade
// to the mock sender with a log line rather than failing startup.
func NewSMSSender(cfg *config.Config) SMSSender {
	switch cfg.SMSProvider {
	case "twilio_sms":
		return &TwilioSender{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
	case "infobip":
		return &InfobipSender{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
	case "mock", "":
		return &MockSMSSender{}
	default:
		log.Printf("unknown SMS_PROVIDER %q, using mock", cfg.SMSProvider)
		return &MockSMSSender{}
	}
}

// MockSMSSender records messages instead of delivering them.
type MockSMSSender struct {
	mu   sync.Mutex
	Sent []string
}

func (s *MockSMSSender) SendSMS(_ context.Context, toE164, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, toE164+": "+body)
	log.Printf("mock sms to %s: %s", toE164, body)
	return nil
}

// TwilioSender posts to the Twilio Messages API with basic auth.
type TwilioSender struct {
	cfg    *config.Config
	client *http.Client

	// BaseURL overrides the API endpoint in tests.
	BaseURL string
}

func (s *TwilioSender) SendSMS(ctx context.Context, toE164, body string) error {
	base := s.BaseURL
	if base == "" {
		base = "https://api.twilio.com"
	}

	form := url.Values{}
	form.Set("To", toE164)
	form.Set("From", s.cfg.TwilioFromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, s.cfg.TwilioAccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.TwilioAccountSID, s.cfg.TwilioAuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("twilio send failed: status %d: %s", resp.StatusCode, raw)
	}
	return nil
}

// InfobipSender posts to the Infobip SMS API.
type InfobipSender struct {
	cfg    *config.Config
	client *http.Client
}

func (s *InfobipSender) SendSMS(ctx context.Context, toE164, body string) error {
	payload := fmt.Sprintf(`{"messages":[{"from":%q,"destinations":[{"to":%q}],"text":%q}]}`,
		s.cfg.InfobipFrom, toE164, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.InfobipBaseURL+"/sms/2/text/advanced", strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "App "+s.cfg.InfobipAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("infobip send failed: status %d: %s", resp.StatusCode, raw)
	}
	return nil
}
