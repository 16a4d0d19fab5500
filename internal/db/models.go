package db

import (
	"time"

	"gorm.io/datatypes"
)

// Lead is one submitted consultation request from the marketing site.
type Lead struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// PublicID is the externally visible identifier returned to clients.
	PublicID string `gorm:"uniqueIndex;size:64;not null"`

	Name      string `gorm:"size:128;not null"`
	Email     string `gorm:"size:255;not null;index"`
	PhoneE164 string `gorm:"size:32;not null;index"`
	Company   string `gorm:"size:128"`
	Website   string `gorm:"size:255"`

	// Form answers that feed the scoring rules.
	MonthlyBudgetUSD int    `gorm:"not null;default:0"`
	RunningAds       bool   `gorm:"default:false"`
	Timeline         string `gorm:"size:32"` // asap, this_month, exploring

	Score              int    `gorm:"not null;default:0"`
	Grade              string `gorm:"size:2;not null;default:D"`
	RecommendedPackage string `gorm:"size:32"`

	// RetrievalToken lets the booking page fetch this lead without auth.
	RetrievalToken string `gorm:"uniqueIndex;size:64;not null"`

	PhoneVerifiedAt *time.Time
}

// AttributionEvent is an append-only record of the marketing context of one
// inbound request. Written once, never mutated; the conversion worker reads
// the most recent row per entity to enrich outbound uploads.
type AttributionEvent struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	SessionID string `gorm:"size:64;not null;index"`
	RequestID string `gorm:"size:64"`

	UTMSource   string `gorm:"size:128"`
	UTMMedium   string `gorm:"size:128"`
	UTMCampaign string `gorm:"size:128"`
	UTMContent  string `gorm:"size:128"`
	UTMTerm     string `gorm:"size:128"`

	GCLID  string `gorm:"size:255;index"`
	GBRAID string `gorm:"size:255"`
	WBRAID string `gorm:"size:255"`
	FBCLID string `gorm:"size:255;index"`

	Referrer    string `gorm:"size:512"`
	LandingPath string `gorm:"size:512;not null"`

	// One-way SHA-256 digests; raw IP and user agent are never stored.
	IPHash        string `gorm:"size:64"`
	UserAgentHash string `gorm:"size:64"`

	// Linkage filled in when the session later produces a lead or booking.
	LeadID    *uint `gorm:"index"`
	BookingID *uint `gorm:"index"`

	// RawParams keeps the full query string for audit.
	RawParams datatypes.JSONMap `gorm:"type:json"`
}

// Conversion event status lifecycle: pending -> processing -> sent | failed.
// A failed row with retry_after set is re-eligible until attempts run out.
const (
	ConversionStatusPending    = "pending"
	ConversionStatusProcessing = "processing"
	ConversionStatusSent       = "sent"
	ConversionStatusFailed     = "failed"
)

const (
	ProviderGoogleAds = "google_ads"
	ProviderMetaCAPI  = "meta_capi"
	ProviderInternal  = "internal"
)

const (
	EventLeadCreated      = "lead_created"
	EventLeadQualified    = "lead_qualified"
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventReminderSent     = "reminder_sent"
	EventCallCompleted    = "call_completed"
)

// ConversionEvent is one unit of work to notify an ad platform of a business
// event. The dedupe key unique index is the idempotency guarantee: at most
// one row per (entity, event_type, provider), races resolved by treating a
// unique violation on insert as a dedupe skip.
type ConversionEvent struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	EventType string `gorm:"size:32;not null;index"`
	Provider  string `gorm:"size:32;not null;index"`

	// At least one of LeadID/BookingID is set.
	LeadID    *uint `gorm:"index"`
	BookingID *uint `gorm:"index"`

	DedupeKey string `gorm:"uniqueIndex;size:64;not null"`

	Status   string `gorm:"size:16;not null;default:pending;index"`
	Attempts int    `gorm:"not null;default:0"`

	ConversionValue float64 `gorm:"default:0"`
	Currency        string  `gorm:"size:8"`

	RetryAfter    *time.Time `gorm:"index"`
	LastAttemptAt *time.Time
	SentAt        *time.Time

	ErrorCode    string `gorm:"size:64"`
	ErrorMessage string `gorm:"size:1024"`

	// ProviderResponse keeps the raw API response for audit/debugging.
	ProviderResponse datatypes.JSONMap `gorm:"type:json"`
}

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// Booking is one confirmed 15-minute consultation. SelectedStart/SelectedEnd
// in UTC are the only source of truth for time; LocalStartDisplay is computed
// once at creation from UTC + BookingTimezone and is what every downstream
// consumer (emails, thank-you page) shows.
type Booking struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	LeadID uint `gorm:"not null;index"`

	// Unique index on SelectedStart is the race backstop: on the fixed slot
	// grid any two overlapping bookings share a start instant.
	SelectedStart time.Time `gorm:"uniqueIndex;not null"`
	SelectedEnd   time.Time `gorm:"not null"`

	BookingTimezone   string `gorm:"size:64;not null"`
	LocalStartDisplay string `gorm:"size:128;not null"`

	Status string `gorm:"size:16;not null;default:confirmed;index"`

	CustomerName  string `gorm:"size:128;not null"`
	CustomerEmail string `gorm:"size:255;not null"`

	// Calendar sync is best-effort; both fields stay nil when it is skipped
	// or fails.
	MeetURL         *string `gorm:"size:512"`
	CalendarEventID *string `gorm:"size:255"`

	// ReminderSentAt doubles as the reminder idempotency marker.
	ReminderSentAt *time.Time

	// IdempotencyKey is the optional client-supplied dedup token.
	IdempotencyKey *string `gorm:"uniqueIndex;size:128"`
}

const (
	ReminderStatusPending    = "pending"
	ReminderStatusProcessing = "processing"
	ReminderStatusCompleted  = "completed"
	ReminderStatusFailed     = "failed"
)

// ReminderJob schedules the reminder email for a booking, claimed atomically
// by one worker invocation via a status-gated conditional update.
type ReminderJob struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	BookingID    uint      `gorm:"not null;index"`
	ScheduledFor time.Time `gorm:"not null;index"`

	Status        string `gorm:"size:16;not null;default:pending;index"`
	Attempts      int    `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	ErrorMessage  string `gorm:"size:1024"`
}

// EmailSend is an append-only dedup guard consulted before any outbound send.
type EmailSend struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	IdempotencyKey    string `gorm:"uniqueIndex;size:128;not null"`
	EmailType         string `gorm:"size:32;not null;index"` // confirmation, reminder
	Recipient         string `gorm:"size:255;not null"`
	BookingID         *uint  `gorm:"index"`
	ProviderMessageID string `gorm:"size:255"`
}

// OTPCode stores one phone verification code, bcrypt-hashed at rest.
// Expired rows are purged by the retention worker.
type OTPCode struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	PhoneHash  string    `gorm:"size:64;not null;index"`
	CodeHash   string    `gorm:"size:255;not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	Attempts   int       `gorm:"not null;default:0"`
	ConsumedAt *time.Time
}

// ConversionBucket stores pre-aggregated hourly conversion outcomes per
// (provider, event_type) for the stats endpoint. Filled by the aggregation
// worker.
type ConversionBucket struct {
	ID uint `gorm:"primaryKey"`

	Provider    string    `gorm:"uniqueIndex:idx_conversion_bucket_unique,priority:1;not null"`
	EventType   string    `gorm:"uniqueIndex:idx_conversion_bucket_unique,priority:2;not null"`
	BucketStart time.Time `gorm:"uniqueIndex:idx_conversion_bucket_unique,priority:3;not null"` // start of the hour (UTC)

	SentCount    int64 `gorm:"not null"`
	FailedCount  int64 `gorm:"not null"`
	PendingCount int64 `gorm:"not null"`
}
