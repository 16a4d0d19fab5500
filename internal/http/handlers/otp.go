package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"leadflow/internal/attribution"
	"leadflow/internal/notify"
	"leadflow/internal/otp"
)

type otpRequest struct {
	PhoneE164 string `json:"phone_e164"`
	Code      string `json:"code,omitempty"`
}

// SendOTP delivers a verification code over SMS, rate-limited per IP and per
// phone hash.
func SendOTP(db *gorm.DB, sms notify.SMSSender, ipLimiter, phoneLimiter *otp.RateLimiter) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req otpRequest
		if !parseBody(ctx, &req) {
			return
		}
		if !e164Re.MatchString(req.PhoneE164) {
			errResponse(ctx, fasthttp.StatusBadRequest, "phone must be E.164 format")
			return
		}

		if !ipLimiter.Allow(ctx.RemoteIP().String()) {
			errResponse(ctx, fasthttp.StatusTooManyRequests, "too many requests")
			return
		}
		if !phoneLimiter.Allow(attribution.HashIdentifier(req.PhoneE164)) {
			errResponse(ctx, fasthttp.StatusTooManyRequests, "too many requests for this phone")
			return
		}

		if err := otp.Send(ctx, db, sms, req.PhoneE164); err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to send code")
			return
		}
		jsonResponse(ctx, map[string]any{"ok": true})
	}
}

// VerifyOTP checks a code and marks the matching lead's phone verified.
func VerifyOTP(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req otpRequest
		if !parseBody(ctx, &req) {
			return
		}
		if !e164Re.MatchString(req.PhoneE164) || req.Code == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "phone_e164 and code are required")
			return
		}

		err := otp.Verify(db, req.PhoneE164, req.Code)
		switch {
		case err == nil:
			jsonResponse(ctx, map[string]any{"ok": true, "verified": true})
		case errors.Is(err, otp.ErrCodeExpired), errors.Is(err, otp.ErrCodeMismatch):
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
		case errors.Is(err, otp.ErrTooManyTries):
			errResponse(ctx, fasthttp.StatusTooManyRequests, err.Error())
		default:
			errResponse(ctx, fasthttp.StatusInternalServerError, "verification failed")
		}
	}
}
