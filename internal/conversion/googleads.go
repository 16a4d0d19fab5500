package conversion

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"leadflow/internal/config"
	dbpkg "leadflow/internal/db"
)

// GoogleAdsAdapter uploads offline click conversions. It requires a Google
// click ID (gclid, gbraid or wbraid) — without one the platform API cannot
// accept the conversion, so that case is a terminal failure.
type GoogleAdsAdapter struct {
	cfg    *config.Config
	client *http.Client
}

func NewGoogleAdsAdapter(cfg *config.Config) *GoogleAdsAdapter {
	return &GoogleAdsAdapter{cfg: cfg, client: &http.Client{Timeout: adapterCallTimeout}}
}

func (a *GoogleAdsAdapter) Provider() string { return dbpkg.ProviderGoogleAds }

func (a *GoogleAdsAdapter) Send(ctx context.Context, p Payload) Result {
	if a.cfg.GoogleAdsCustomerID == "" || a.cfg.GoogleAdsDeveloperToken == "" || a.cfg.GoogleAdsAccessToken == "" {
		return Result{
			Retryable:    false,
			ErrorCode:    "config_missing",
			ErrorMessage: "google ads credentials not configured",
		}
	}

	if p.Attribution == nil || (p.Attribution.GCLID == "" && p.Attribution.GBRAID == "" && p.Attribution.WBRAID == "") {
		return Result{
			Retryable:    false,
			ErrorCode:    "missing_click_id",
			ErrorMessage: "no gclid/gbraid/wbraid available for this event",
		}
	}

	conv := map[string]any{
		"conversionAction":   a.cfg.GoogleAdsConversionAction,
		"conversionDateTime": time.Now().UTC().Format("2006-01-02 15:04:05+00:00"),
		// The dedupe key doubles as the platform-side dedup token.
		"orderId": p.Event.DedupeKey,
	}
	switch {
	case p.Attribution.GCLID != "":
		conv["gclid"] = p.Attribution.GCLID
	case p.Attribution.GBRAID != "":
		conv["gbraid"] = p.Attribution.GBRAID
	default:
		conv["wbraid"] = p.Attribution.WBRAID
	}
	if p.Event.ConversionValue > 0 {
		conv["conversionValue"] = p.Event.ConversionValue
		conv["currencyCode"] = p.Event.Currency
	}

	// Hashed identifiers for enhanced conversions matching.
	var identifiers []map[string]any
	if h := HashUserIdentifier(p.Email); h != "" {
		identifiers = append(identifiers, map[string]any{"hashedEmail": h})
	}
	if h := HashUserIdentifier(p.Phone); h != "" {
		identifiers = append(identifiers, map[string]any{"hashedPhoneNumber": h})
	}
	if len(identifiers) > 0 {
		conv["userIdentifiers"] = identifiers
	}

	body := map[string]any{
		"conversions":    []map[string]any{conv},
		"partialFailure": true,
	}

	url := fmt.Sprintf("%s/customers/%s:uploadClickConversions", a.cfg.GoogleAdsAPIBaseURL, a.cfg.GoogleAdsCustomerID)
	headers := map[string]string{
		"Authorization":   "Bearer " + a.cfg.GoogleAdsAccessToken,
		"developer-token": a.cfg.GoogleAdsDeveloperToken,
	}

	status, respBody, err := postJSON(ctx, a.client, url, headers, body)
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
		ErrorMessage: fmt.Sprintf("google ads upload failed with status %d", status),
		Response:     resp,
	}
}
