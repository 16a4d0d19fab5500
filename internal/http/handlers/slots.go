package handlers

import (
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"leadflow/internal/booking"
	"leadflow/internal/config"
)

// Slots computes the currently bookable windows. Re-run on every request:
// the generator is stateless and never cached, correctness under races
// belongs to the booking creator.
func Slots(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		loc, err := time.LoadLocation(cfg.BookingTimezone)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "invalid business timezone")
			return
		}

		now := time.Now().UTC()
		confirmed, err := booking.ConfirmedBookings(db, now)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load bookings")
			return
		}

		slots := booking.GenerateSlots(now, booking.SlotConfig{
			Location:  loc,
			OpenHour:  cfg.BusinessOpenHour,
			CloseHour: cfg.BusinessCloseHour,
			MinLead:   time.Duration(cfg.MinLeadTimeMinutes) * time.Minute,
		}, booking.IntervalsFromBookings(confirmed))

		out := make([]map[string]any, 0, len(slots))
		for _, s := range slots {
			out = append(out, map[string]any{
				"start":     s.Start.Format(time.RFC3339),
				"end":       s.End.Format(time.RFC3339),
				"label":     s.Label,
				"localTime": s.LocalTime,
			})
		}

		jsonResponse(ctx, map[string]any{
			"ok":       true,
			"timezone": cfg.BookingTimezone,
			"slots":    out,
		})
	}
}
