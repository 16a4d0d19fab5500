package handlers

import (
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"leadflow/internal/booking"
	"leadflow/internal/config"
	dbpkg "leadflow/internal/db"
)

type bookingRequest struct {
	LeadID          string `json:"lead_id"`
	BookingStartUTC string `json:"booking_start_utc"`
	BookingEndUTC   string `json:"booking_end_utc"`
	BookingTimezone string `json:"booking_timezone"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// CreateBooking books a slot for a lead. 400 on missing fields or a past
// start, 403 when phone verification is enforced and absent, 409 when the
// slot was taken, 200 with the booking id and calendar status otherwise.
func CreateBooking(db *gorm.DB, cfg *config.Config, creator *booking.Creator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req bookingRequest
		if !parseBody(ctx, &req) {
			return
		}

		if req.LeadID == "" || req.BookingStartUTC == "" || req.BookingEndUTC == "" || req.BookingTimezone == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "lead_id, booking_start_utc, booking_end_utc and booking_timezone are required")
			return
		}

		start, err := time.Parse(time.RFC3339, req.BookingStartUTC)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "booking_start_utc must be RFC 3339")
			return
		}
		end, err := time.Parse(time.RFC3339, req.BookingEndUTC)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "booking_end_utc must be RFC 3339")
			return
		}
		if !end.After(start) {
			errResponse(ctx, fasthttp.StatusBadRequest, "booking_end_utc must be after booking_start_utc")
			return
		}
		if start.Before(time.Now()) {
			errResponse(ctx, fasthttp.StatusBadRequest, "booking start is in the past")
			return
		}

		var l dbpkg.Lead
		if err := db.Where("public_id = ?", req.LeadID).First(&l).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errResponse(ctx, fasthttp.StatusBadRequest, "unknown lead_id")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		if cfg.EnforcePhoneVerification && l.PhoneVerifiedAt == nil {
			errResponse(ctx, fasthttp.StatusForbidden, "phone verification required")
			return
		}

		res, err := creator.Create(ctx, booking.CreateInput{
			LeadID:         l.ID,
			StartUTC:       start,
			EndUTC:         end,
			Timezone:       req.BookingTimezone,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			if errors.Is(err, booking.ErrSlotConflict) {
				countBooking("conflict")
				errResponse(ctx, fasthttp.StatusConflict, "slot no longer available")
				return
			}
			countBooking("error")
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create booking")
			return
		}
		countBooking("created")

		meetURL := ""
		if res.Booking.MeetURL != nil {
			meetURL = *res.Booking.MeetURL
		}
		jsonResponse(ctx, map[string]any{
			"ok":              true,
			"booking_id":      res.Booking.ID,
			"meet_url":        meetURL,
			"calendar_status": res.CalendarStatus,
			"local_start":     res.Booking.LocalStartDisplay,
		})
	}
}
