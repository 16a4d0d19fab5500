package handlers

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"leadflow/internal/attribution"
)

// Track records an attribution event for the caller's session. The marketing
// site calls this on landing so click IDs survive even when the visitor never
// submits the form in the same request.
func Track(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sessionID := string(ctx.QueryArgs().Peek("session_id"))
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		ev := attribution.FromRequestCtx(ctx, sessionID)
		attribution.SaveAsync(db, ev)

		jsonResponse(ctx, map[string]any{"ok": true, "session_id": sessionID})
	}
}
