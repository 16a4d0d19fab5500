package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// flakySender fails the first n sends, then succeeds.
type flakySender struct {
	failures int
	calls    int
}

func (s *flakySender) Send(_ context.Context, _ Email) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("transient provider error")
	}
	return "msg-1", nil
}

func noBackoff(int) time.Duration { return 0 }

func TestSendWithRetry_EventualSuccess(t *testing.T) {
	s := &flakySender{failures: 2}
	id, err := SendWithRetry(context.Background(), s, Email{To: "a@b.c"}, 3, noBackoff)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg-1" || s.calls != 3 {
		t.Fatalf("id = %q, calls = %d", id, s.calls)
	}
}

func TestSendWithRetry_ExhaustsAttempts(t *testing.T) {
	s := &flakySender{failures: 10}
	_, err := SendWithRetry(context.Background(), s, Email{To: "a@b.c"}, 3, noBackoff)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if s.calls != 3 {
		t.Fatalf("calls = %d, want 3", s.calls)
	}
}

func TestBackoffSchedules(t *testing.T) {
	expCases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second}
	for attempt, want := range expCases {
		if got := ExponentialBackoff(attempt); got != want {
			t.Fatalf("ExponentialBackoff(%d) = %s, want %s", attempt, got, want)
		}
	}
	linCases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 3 * time.Second}
	for attempt, want := range linCases {
		if got := LinearBackoff(attempt); got != want {
			t.Fatalf("LinearBackoff(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestResendSender_Send(t *testing.T) {
	var gotAuth string
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"id":"re_123"}`))
	}))
	defer srv.Close()

	s := &ResendSender{apiKey: "key", client: srv.Client(), BaseURL: srv.URL}
	id, err := s.Send(context.Background(), Email{
		From:    "bookings@leadflow.example",
		To:      "ana@example.com",
		Subject: "Your consultation is booked",
		HTML:    "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "re_123" {
		t.Fatalf("message id = %q", id)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("auth = %q", gotAuth)
	}
	to, ok := captured["to"].([]any)
	if !ok || len(to) != 1 || to[0] != "ana@example.com" {
		t.Fatalf("to = %v", captured["to"])
	}
}

func TestResendSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := &ResendSender{apiKey: "key", client: srv.Client(), BaseURL: srv.URL}
	if _, err := s.Send(context.Background(), Email{To: "a@b.c"}); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}
