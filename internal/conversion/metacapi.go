package conversion

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"leadflow/internal/config"
	dbpkg "leadflow/internal/db"
)

// metaEventNames maps internal event types to Meta's standard vocabulary.
var metaEventNames = map[string]string{
	dbpkg.EventLeadCreated:      "Lead",
	dbpkg.EventLeadQualified:    "Lead",
	dbpkg.EventBookingCreated:   "Schedule",
	dbpkg.EventBookingConfirmed: "CompleteRegistration",
	dbpkg.EventCallCompleted:    "Contact",
}

// MetaCAPIAdapter sends server events to the Meta Conversions API. The event
// id is the dedupe key, so Meta dedupes against any client-side pixel event
// carrying the same id.
type MetaCAPIAdapter struct {
	cfg    *config.Config
	client *http.Client

	// now is injectable for tests of the fbc timestamp format.
	now func() time.Time
}

func NewMetaCAPIAdapter(cfg *config.Config) *MetaCAPIAdapter {
	return &MetaCAPIAdapter{cfg: cfg, client: &http.Client{Timeout: adapterCallTimeout}, now: time.Now}
}

func (a *MetaCAPIAdapter) Provider() string { return dbpkg.ProviderMetaCAPI }

// FBCParam builds the fbc parameter from a click ID and the event time:
// "fb.1.<unix_ms>.<fbclid>". Empty fbclid yields an empty string.
func FBCParam(fbclid string, at time.Time) string {
	if fbclid == "" {
		return ""
	}
	return fmt.Sprintf("fb.1.%d.%s", at.UnixMilli(), fbclid)
}

func (a *MetaCAPIAdapter) Send(ctx context.Context, p Payload) Result {
	if a.cfg.MetaPixelID == "" || a.cfg.MetaCAPIAccessToken == "" {
		return Result{
			Retryable:    false,
			ErrorCode:    "config_missing",
			ErrorMessage: "meta capi credentials not configured",
		}
	}

	eventName, ok := metaEventNames[p.Event.EventType]
	if !ok {
		return Result{
			Retryable:    false,
			ErrorCode:    "unmapped_event_type",
			ErrorMessage: fmt.Sprintf("no meta event name for %q", p.Event.EventType),
		}
	}

	userData := map[string]any{}
	if h := HashUserIdentifier(p.Email); h != "" {
		userData["em"] = []string{h}
	}
	if h := HashUserIdentifier(p.Phone); h != "" {
		userData["ph"] = []string{h}
	}
	if p.Attribution != nil {
		if fbc := FBCParam(p.Attribution.FBCLID, a.now()); fbc != "" {
			userData["fbc"] = fbc
		}
	}

	event := map[string]any{
		"event_name":    eventName,
		"event_time":    a.now().Unix(),
		"event_id":      p.Event.DedupeKey,
		"action_source": "website",
		"user_data":     userData,
	}
	if p.Event.ConversionValue > 0 {
		event["custom_data"] = map[string]any{
			"value":    p.Event.ConversionValue,
			"currency": p.Event.Currency,
		}
	}

	body := map[string]any{"data": []map[string]any{event}}
	url := fmt.Sprintf("%s/%s/events?access_token=%s", a.cfg.MetaAPIBaseURL, a.cfg.MetaPixelID, a.cfg.MetaCAPIAccessToken)

	status, respBody, err := postJSON(ctx, a.client, url, nil, body)
	if err != nil {
		return Result{
			Retryable:    true,
			ErrorCode:    "transport_error",
			ErrorMessage: err.Error(),
		}
	}

	resp := parseResponse(respBody)
	if status >= 200 && status < 300 {
		return Result{Success: true, Response: resp}
	}

	return Result{
		Retryable:    retryableStatus(status),
		ErrorCode:    fmt.Sprintf("http_%d", status),
		ErrorMessage: fmt.Sprintf("meta capi send failed with status %d", status),
		Response:     resp,
	}
}
