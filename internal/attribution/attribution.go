// Package attribution captures the marketing context (UTM parameters, ad
// platform click IDs, referrer) of inbound requests and persists it as an
// append-only audit log keyed by session.
package attribution

import (
	"crypto/sha256"
	"encoding/hex"
	"log"

	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "leadflow/internal/db"
)

// HashIdentifier returns the hex SHA-256 of v. Used for privacy-safe storage
// of IP addresses and user agents; raw values are never persisted.
func HashIdentifier(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// FromRequestCtx extracts an attribution event from the request. It never
// fails: every field except LandingPath and SessionID is optional.
func FromRequestCtx(ctx *fasthttp.RequestCtx, sessionID string) dbpkg.AttributionEvent {
	args := ctx.QueryArgs()

	raw := datatypes.JSONMap{}
	args.VisitAll(func(k, v []byte) {
		raw[string(k)] = string(v)
	})

	landing := string(ctx.Path())
	if p := string(args.Peek("landing_path")); p != "" {
		landing = p
	}

	return dbpkg.AttributionEvent{
		SessionID: sessionID,
		RequestID: string(ctx.Request.Header.Peek("X-Request-Id")),

		UTMSource:   string(args.Peek("utm_source")),
		UTMMedium:   string(args.Peek("utm_medium")),
		UTMCampaign: string(args.Peek("utm_campaign")),
		UTMContent:  string(args.Peek("utm_content")),
		UTMTerm:     string(args.Peek("utm_term")),

		GCLID:  string(args.Peek("gclid")),
		GBRAID: string(args.Peek("gbraid")),
		WBRAID: string(args.Peek("wbraid")),
		FBCLID: string(args.Peek("fbclid")),

		Referrer:    string(ctx.Request.Header.Peek("Referer")),
		LandingPath: landing,

		IPHash:        HashIdentifier(ctx.RemoteIP().String()),
		UserAgentHash: HashIdentifier(string(ctx.Request.Header.UserAgent())),

		RawParams: raw,
	}
}

// HasClickID reports whether the event carries any ad platform click ID.
func HasClickID(ev *dbpkg.AttributionEvent) bool {
	return ev.GCLID != "" || ev.GBRAID != "" || ev.WBRAID != "" || ev.FBCLID != ""
}

// Save persists the event. Callers treat attribution as fire-and-forget:
// they log the returned error but never fail the parent request on it.
func Save(db *gorm.DB, ev *dbpkg.AttributionEvent) error {
	return db.Create(ev).Error
}

// SaveAsync persists the event on a background goroutine, logging failures.
// Attribution loss is tolerated; losing the primary operation is not.
func SaveAsync(db *gorm.DB, ev dbpkg.AttributionEvent) {
	go func() {
		if err := Save(db, &ev); err != nil {
			log.Printf("attribution save failed (session=%s): %v", ev.SessionID, err)
		}
	}()
}

// Latest returns the most recent attribution event linked to the given lead
// or booking, preferring explicit linkage and falling back to nothing.
func Latest(db *gorm.DB, leadID, bookingID *uint) (*dbpkg.AttributionEvent, error) {
	q := db.Model(&dbpkg.AttributionEvent{})
	switch {
	case bookingID != nil:
		q = q.Where("booking_id = ? OR lead_id = ?", *bookingID, leadIDOrZero(leadID))
	case leadID != nil:
		q = q.Where("lead_id = ?", *leadID)
	default:
		return nil, nil
	}

	var ev dbpkg.AttributionEvent
	if err := q.Order("created_at DESC").First(&ev).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func leadIDOrZero(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
