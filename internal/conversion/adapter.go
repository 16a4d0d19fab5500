package conversion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	dbpkg "leadflow/internal/db"
)

// Payload is the enriched input handed to an adapter: the claimed event plus
// the most recent attribution for its entity and the lead's contact fields.
type Payload struct {
	Event       dbpkg.ConversionEvent
	Attribution *dbpkg.AttributionEvent
	Email       string
	Phone       string
}

// Result is the adapter verdict. Retryable distinguishes transient provider
// failures (5xx, timeout, rate limit) from terminal ones (missing click ID,
// bad auth); the worker only schedules a retry for the former.
type Result struct {
	Success      bool
	Retryable    bool
	ErrorCode    string
	ErrorMessage string
	Response     map[string]any
}

// Adapter sends one conversion event to an ad platform.
type Adapter interface {
	Provider() string
	Send(ctx context.Context, p Payload) Result
}

// Registry maps provider names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *Registry) Get(provider string) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

// HashUserIdentifier lowercases, trims and SHA-256 hashes an identifier the
// way both platforms expect for matching (email, E.164 phone).
func HashUserIdentifier(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

const (
	adapterAttempts    = 2
	adapterCallTimeout = 15 * time.Second
)

// postJSON sends body to url with the given headers, retrying once with
// exponential backoff on transport errors and retryable statuses. Each
// attempt gets its own timeout.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (status int, respBody []byte, err error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	for attempt := 1; attempt <= adapterAttempts; attempt++ {
		status, respBody, err = postJSONOnce(ctx, client, url, headers, raw)
		if err == nil && !retryableStatus(status) {
			return status, respBody, nil
		}
		if attempt < adapterAttempts {
			select {
			case <-ctx.Done():
				return status, respBody, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return status, respBody, err
}

func postJSONOnce(ctx context.Context, client *http.Client, url string, headers map[string]string, raw []byte) (int, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, adapterCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, body, nil
}

// retryableStatus classifies provider HTTP statuses: server errors and rate
// limits are transient, everything else is terminal for the attempt.
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func parseResponse(body []byte) map[string]any {
	out := map[string]any{}
	if len(body) == 0 {
		return out
	}
	if err := json.Unmarshal(body, &out); err != nil {
		out["raw"] = string(body)
	}
	return out
}

// InternalAdapter records internal events (reminder_sent, call_completed for
// reporting) without an outbound call. Always succeeds.
type InternalAdapter struct{}

func (InternalAdapter) Provider() string { return dbpkg.ProviderInternal }

func (InternalAdapter) Send(_ context.Context, _ Payload) Result {
	return Result{Success: true, Response: map[string]any{"recorded": true}}
}
