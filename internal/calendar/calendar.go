// Package calendar creates calendar events for confirmed bookings. Sync is
// best-effort by contract: any failure is logged and surfaced as a status
// string, never as an error that could fail the booking.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"leadflow/internal/config"
	dbpkg "leadflow/internal/db"
)

const (
	StatusCreated = "created"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

type Client struct {
	cfg    *config.Config
	client *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

// CreateEvent posts the booking to the configured calendar endpoint and
// returns the meet URL, event id and a status. Missing configuration yields
// StatusSkipped; any error yields StatusFailed.
func (c *Client) CreateEvent(ctx context.Context, b *dbpkg.Booking) (meetURL, eventID, status string) {
	if c.cfg.CalendarWebhookURL == "" {
		return "", "", StatusSkipped
	}

	body, err := json.Marshal(map[string]any{
		"summary":     "Google Ads consultation: " + b.CustomerName,
		"start_utc":   b.SelectedStart.UTC().Format(time.RFC3339),
		"end_utc":     b.SelectedEnd.UTC().Format(time.RFC3339),
		"timezone":    b.BookingTimezone,
		"attendee":    b.CustomerEmail,
		"description": "Booked for " + b.LocalStartDisplay,
	})
	if err != nil {
		log.Printf("calendar payload error (booking=%d): %v", b.ID, err)
		return "", "", StatusFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CalendarWebhookURL, bytes.NewReader(body))
	if err != nil {
		return "", "", StatusFailed
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.CalendarAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.CalendarAuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("calendar create failed (booking=%d): %v", b.ID, err)
		return "", "", StatusFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("calendar create failed (booking=%d): status %d", b.ID, resp.StatusCode)
		return "", "", StatusFailed
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed struct {
		MeetURL string `json:"meet_url"`
		EventID string `json:"event_id"`
	}
	_ = json.Unmarshal(raw, &parsed)
	return parsed.MeetURL, parsed.EventID, StatusCreated
}
