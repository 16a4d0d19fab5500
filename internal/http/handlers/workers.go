package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"leadflow/internal/booking"
	"leadflow/internal/config"
	"leadflow/internal/conversion"
	dbpkg "leadflow/internal/db"
	"leadflow/internal/notify"
)

// RunConversions executes one conversion worker pass. Invoked by the
// external scheduler; auth is the shared-secret middleware.
func RunConversions(db *gorm.DB, reg *conversion.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stats, err := conversion.RunOnce(ctx, db, reg)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "worker run failed")
			return
		}
		jsonResponse(ctx, map[string]any{
			"ok":      true,
			"fetched": stats.Fetched,
			"claimed": stats.Claimed,
			"sent":    stats.Sent,
			"failed":  stats.Failed,
			"skipped": stats.Skipped,
		})
	}
}

// RunGoogleAdsSync re-drives google_ads rows only, e.g. after a credential
// fix. Same claim loop as the general worker, provider-filtered.
func RunGoogleAdsSync(db *gorm.DB, reg *conversion.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stats, err := conversion.RunOnce(ctx, db, reg, dbpkg.ProviderGoogleAds)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "worker run failed")
			return
		}
		jsonResponse(ctx, map[string]any{
			"ok":      true,
			"fetched": stats.Fetched,
			"claimed": stats.Claimed,
			"sent":    stats.Sent,
			"failed":  stats.Failed,
		})
	}
}

// RunReminders executes one reminder worker pass.
func RunReminders(db *gorm.DB, cfg *config.Config, sender notify.Sender) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stats, err := booking.RunRemindersOnce(ctx, db, cfg, sender)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "worker run failed")
			return
		}
		jsonResponse(ctx, map[string]any{
			"ok":        true,
			"fetched":   stats.Fetched,
			"claimed":   stats.Claimed,
			"sent":      stats.Sent,
			"completed": stats.Completed,
			"failed":    stats.Failed,
		})
	}
}
