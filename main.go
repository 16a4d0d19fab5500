package main

import (
	"log"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"leadflow/internal/booking"
	"leadflow/internal/calendar"
	"leadflow/internal/config"
	"leadflow/internal/conversion"
	"leadflow/internal/db"
	"leadflow/internal/http/handlers"
	appmw "leadflow/internal/http/middleware"
	"leadflow/internal/notify"
	"leadflow/internal/otp"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	handlers.InitPrometheusMetrics()
	conversion.InitMetrics()

	emailSender := notify.NewSender(cfg)
	smsSender := notify.NewSMSSender(cfg)
	calClient := calendar.NewClient(cfg)

	registry := conversion.NewRegistry(
		conversion.NewGoogleAdsAdapter(cfg),
		conversion.NewMetaCAPIAdapter(cfg),
		conversion.InternalAdapter{},
	)

	creator := &booking.Creator{
		DB:       sqlDB,
		Cfg:      cfg,
		Email:    emailSender,
		Calendar: calClient,
	}

	db.StartRetentionWorker(sqlDB)
	db.StartAggregationWorker(sqlDB)
	if cfg.WorkerPollEnabled {
		conversion.StartWorker(sqlDB, registry, time.Minute)
		booking.StartReminderWorker(sqlDB, cfg, emailSender, time.Minute)
	}

	// OTP abuse limits: 5 sends per IP and 3 per phone within 15 minutes.
	ipLimiter := otp.NewRateLimiter(5, 15*time.Minute)
	phoneLimiter := otp.NewRateLimiter(3, 15*time.Minute)

	r := router.New()

	// Global middleware chain: request logger, then attribution tracking, then router.
	handler := handlers.RequestLogger(appmw.Tracking(sqlDB)(r.Handler))

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/api/leads", handlers.CreateLead(sqlDB, cfg))
	r.GET("/api/slots", handlers.Slots(sqlDB, cfg))
	r.POST("/api/bookings", handlers.CreateBooking(sqlDB, cfg, creator))
	r.POST("/api/track", handlers.Track(sqlDB))

	r.POST("/api/otp/send", handlers.SendOTP(sqlDB, smsSender, ipLimiter, phoneLimiter))
	r.POST("/api/otp/verify", handlers.VerifyOTP(sqlDB))

	cronAuth := appmw.SharedSecret(cfg.CronSecret)
	r.GET("/api/workers/conversions", cronAuth(handlers.RunConversions(sqlDB, registry)))
	r.POST("/api/workers/google-ads-sync", cronAuth(handlers.RunGoogleAdsSync(sqlDB, registry)))
	r.GET("/api/workers/reminders", cronAuth(handlers.RunReminders(sqlDB, cfg, emailSender)))

	adminAuth := appmw.SharedSecret(cfg.AdminSecret)
	r.GET("/api/stats/conversions", adminAuth(handlers.ConversionStats(sqlDB)))
	r.GET("/metrics", adminAuth(handlers.PrometheusMetrics()))

	log.Printf("leadflow listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
