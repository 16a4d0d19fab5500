package handlers

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "leadflow/internal/db"
)

// ConversionStats serves the hourly rollup buckets filled by the aggregation
// worker. Range is controlled by a days query parameter (default 1).
func ConversionStats(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		days := 1
		if d := string(ctx.QueryArgs().Peek("days")); d != "" {
			if n, err := strconv.Atoi(d); err == nil && n > 0 {
				days = n
			}
		}
		provider := string(ctx.QueryArgs().Peek("provider"))
		cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

		q := db.Model(&dbpkg.ConversionBucket{}).Where("bucket_start >= ?", cutoff)
		if provider != "" {
			q = q.Where("provider = ?", provider)
		}

		var buckets []dbpkg.ConversionBucket
		if err := q.Order("bucket_start").Find(&buckets).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query conversion stats")
			return
		}

		series := make([]map[string]any, 0, len(buckets))
		for _, b := range buckets {
			// BucketStart is stored as UTC; re-stamp so clients get the
			// correct instant regardless of driver timezone handling.
			utc := time.Date(b.BucketStart.Year(), b.BucketStart.Month(), b.BucketStart.Day(),
				b.BucketStart.Hour(), b.BucketStart.Minute(), b.BucketStart.Second(), 0, time.UTC)
			series = append(series, map[string]any{
				"bucket":     utc.Format("2006-01-02T15:04:05") + "Z",
				"provider":   b.Provider,
				"event_type": b.EventType,
				"sent":       b.SentCount,
				"failed":     b.FailedCount,
				"pending":    b.PendingCount,
			})
		}
		jsonResponse(ctx, map[string]any{"ok": true, "series": series})
	}
}
