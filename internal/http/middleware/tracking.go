package middleware

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"leadflow/internal/attribution"
)

// Tracking records attribution for marketing-page requests that carry a
// session id and at least one UTM parameter or click ID. The save runs on a
// background goroutine after the response; tracking never adds latency or
// failure modes to the page itself.
func Tracking(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			next(ctx)

			path := string(ctx.Path())
			if len(path) >= 4 && path[:4] == "/api" {
				return
			}
			sessionID := string(ctx.QueryArgs().Peek("session_id"))
			if sessionID == "" {
				return
			}

			ev := attribution.FromRequestCtx(ctx, sessionID)
			if ev.UTMSource == "" && !attribution.HasClickID(&ev) {
				return
			}
			attribution.SaveAsync(db, ev)
		}
	}
}
