package conversion

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"leadflow/internal/attribution"
	dbpkg "leadflow/internal/db"
)

const (
	// BatchSize bounds how many rows one run fetches.
	BatchSize = 10

	// RunBudget bounds the wall clock of one run, leaving margin under a
	// 60s scheduler execution cap. Remaining events wait for the next run.
	RunBudget = 55 * time.Second
)

var dispatchTotal *prometheus.CounterVec

// InitMetrics registers the pipeline's Prometheus collectors. Call once at
// startup.
func InitMetrics() {
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "conversion_dispatch_total",
			Help:      "Conversion dispatch attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	prometheus.MustRegister(dispatchTotal)
}

func countDispatch(provider, outcome string) {
	if dispatchTotal != nil {
		dispatchTotal.WithLabelValues(provider, outcome).Inc()
	}
}

// RunStats summarizes one worker run; returned to the scheduler endpoint.
type RunStats struct {
	Fetched int `json:"fetched"`
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RunOnce executes one worker pass: fetch due events, claim each with a
// status-gated conditional update, enrich, dispatch to the provider adapter
// and record the outcome. Provider errors are isolated per event — one
// failure never aborts the batch. An optional provider filter restricts the
// pass (used by the google-ads-sync endpoint).
func RunOnce(ctx context.Context, db *gorm.DB, reg *Registry, providers ...string) (RunStats, error) {
	var stats RunStats
	start := time.Now()

	events, err := dbpkg.DueConversionEvents(db, start, BatchSize, providers...)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(events)

	for i := range events {
		if time.Since(start) > RunBudget {
			// Out of budget; the rest waits for the next scheduled run.
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}

		ev := &events[i]
		claimed, err := dbpkg.ClaimConversionEvent(db, ev, time.Now())
		if err != nil {
			log.Printf("conversion claim error (id=%d): %v", ev.ID, err)
			continue
		}
		if !claimed {
			stats.Skipped++
			continue
		}
		stats.Claimed++

		res := dispatch(ctx, db, reg, ev)
		if res.Success {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}

	return stats, nil
}

// dispatch enriches the claimed event, calls the adapter and persists the
// verdict, scheduling a bounded exponential retry for transient failures.
func dispatch(ctx context.Context, db *gorm.DB, reg *Registry, ev *dbpkg.ConversionEvent) Result {
	adapter, ok := reg.Get(ev.Provider)
	if !ok {
		res := Result{ErrorCode: "unknown_provider", ErrorMessage: "no adapter registered for " + ev.Provider}
		recordFailure(db, ev, res)
		return res
	}

	payload := Payload{Event: *ev}

	attr, err := attribution.Latest(db, ev.LeadID, ev.BookingID)
	if err != nil {
		log.Printf("conversion enrichment error (id=%d): %v", ev.ID, err)
	}
	payload.Attribution = attr

	if email, phone, err := contactForEvent(db, ev); err != nil {
		log.Printf("conversion contact lookup error (id=%d): %v", ev.ID, err)
	} else {
		payload.Email = email
		payload.Phone = phone
	}

	res := adapter.Send(ctx, payload)
	if res.Success {
		recordSuccess(db, ev, res)
		countDispatch(ev.Provider, "sent")
	} else {
		recordFailure(db, ev, res)
		countDispatch(ev.Provider, "failed")
	}
	return res
}

// contactForEvent resolves the lead's email and phone, following the booking
// linkage when the event has no direct lead id.
func contactForEvent(db *gorm.DB, ev *dbpkg.ConversionEvent) (email, phone string, err error) {
	leadID := ev.LeadID
	if leadID == nil && ev.BookingID != nil {
		var booking dbpkg.Booking
		if err := db.First(&booking, *ev.BookingID).Error; err != nil {
			return "", "", err
		}
		leadID = &booking.LeadID
	}
	if leadID == nil {
		return "", "", nil
	}

	var l dbpkg.Lead
	if err := db.First(&l, *leadID).Error; err != nil {
		return "", "", err
	}
	return l.Email, l.PhoneE164, nil
}

func recordSuccess(db *gorm.DB, ev *dbpkg.ConversionEvent, res Result) {
	now := time.Now()
	updates := map[string]any{
		"status":            dbpkg.ConversionStatusSent,
		"sent_at":           now,
		"provider_response": toJSONMap(res.Response),
		"error_code":        "",
		"error_message":     "",
		"retry_after":       nil,
	}
	if err := db.Model(&dbpkg.ConversionEvent{}).Where("id = ?", ev.ID).Updates(updates).Error; err != nil {
		log.Printf("conversion success record error (id=%d): %v", ev.ID, err)
	}
}

// recordFailure marks the event failed. Transient failures with attempts left
// get retry_after = now + 2^attempts minutes (2, 4 min); terminal failures
// and exhausted rows get no retry_after and stay failed permanently.
func recordFailure(db *gorm.DB, ev *dbpkg.ConversionEvent, res Result) {
	updates := map[string]any{
		"status":            dbpkg.ConversionStatusFailed,
		"error_code":        res.ErrorCode,
		"error_message":     res.ErrorMessage,
		"provider_response": toJSONMap(res.Response),
		"retry_after":       nil,
	}
	if res.Retryable && ev.Attempts < dbpkg.MaxConversionAttempts {
		retryAt := time.Now().Add(backoffDelay(ev.Attempts))
		updates["retry_after"] = retryAt
	}
	if err := db.Model(&dbpkg.ConversionEvent{}).Where("id = ?", ev.ID).Updates(updates).Error; err != nil {
		log.Printf("conversion failure record error (id=%d): %v", ev.ID, err)
	}
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(m)
}

// backoffDelay returns 2^attempt minutes (attempt is 1-based post-claim).
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<attempt) * time.Minute
}

// StartWorker launches an in-process polling loop for deployments that do
// not use an external scheduler. Mirrors the scheduled endpoint behavior.
func StartWorker(db *gorm.DB, reg *Registry, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			stats, err := RunOnce(context.Background(), db, reg)
			if err != nil {
				log.Printf("conversion worker error: %v", err)
				continue
			}
			if stats.Claimed > 0 {
				log.Printf("conversion worker: claimed=%d sent=%d failed=%d", stats.Claimed, stats.Sent, stats.Failed)
			}
		}
	}()
}
