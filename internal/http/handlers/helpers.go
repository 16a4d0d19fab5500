package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

var (
	leadsTotal    *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
)

// InitPrometheusMetrics registers the request-level collectors. Call once at
// startup.
func InitPrometheusMetrics() {
	leadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "leads_total",
			Help:      "Submitted leads by grade.",
		},
		[]string{"grade"},
	)
	bookingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		},
		[]string{"outcome"},
	)
	prometheus.MustRegister(leadsTotal, bookingsTotal)
}

func countLead(grade string) {
	if leadsTotal != nil {
		leadsTotal.WithLabelValues(grade).Inc()
	}
}

func countBooking(outcome string) {
	if bookingsTotal != nil {
		bookingsTotal.WithLabelValues(outcome).Inc()
	}
}

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data map[string]any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
	ctx.SetBody(body)
}

// parseBody unmarshals the JSON request body into dst, sending 400 on failure.
func parseBody(ctx *fasthttp.RequestCtx, dst any) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
