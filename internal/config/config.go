package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime configuration for the service. Values are sourced
// from environment variables (a .env file is loaded by main before this runs).
// See .env.example.
type Config struct {
	DatabaseURL string `envconfig:"APP_DATABASE_URL" required:"true"`
	ListenAddr  string `envconfig:"APP_LISTEN_ADDR" default:":8080"`

	// CronSecret authenticates the external scheduler that invokes the
	// worker endpoints. AdminSecret gates the stats/metrics surfaces.
	CronSecret  string `envconfig:"CRON_SECRET"`
	AdminSecret string `envconfig:"ADMIN_SECRET"`

	// BookingTimezone is the fixed IANA business timezone all slots and
	// display strings are computed in.
	BookingTimezone    string `envconfig:"BOOKING_TIMEZONE" default:"Asia/Dubai"`
	BusinessOpenHour   int    `envconfig:"BUSINESS_OPEN_HOUR" default:"10"`
	BusinessCloseHour  int    `envconfig:"BUSINESS_CLOSE_HOUR" default:"18"`
	MinLeadTimeMinutes int    `envconfig:"MIN_LEAD_TIME_MINUTES" default:"120"`

	EnforcePhoneVerification bool `envconfig:"ENFORCE_PHONE_VERIFICATION" default:"false"`

	// WorkerPollEnabled starts in-process ticker workers in addition to the
	// externally invoked worker endpoints. Off by default so serverless-style
	// deployments can rely purely on the scheduler.
	WorkerPollEnabled bool `envconfig:"WORKER_POLL_ENABLED" default:"false"`

	// SMSProvider selects the outbound SMS backend: mock, twilio_sms or
	// infobip. Unknown values fall back to mock.
	SMSProvider      string `envconfig:"SMS_PROVIDER" default:"mock"`
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `envconfig:"TWILIO_FROM_NUMBER"`
	InfobipBaseURL   string `envconfig:"INFOBIP_BASE_URL"`
	InfobipAPIKey    string `envconfig:"INFOBIP_API_KEY"`
	InfobipFrom      string `envconfig:"INFOBIP_FROM"`

	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	EmailFrom    string `envconfig:"EMAIL_FROM" default:"bookings@leadflow.example"`

	// Google Ads offline conversion upload. Empty credentials disable the
	// adapter (events for that provider fail terminally with a config error).
	GoogleAdsCustomerID       string `envconfig:"GOOGLE_ADS_CUSTOMER_ID"`
	GoogleAdsDeveloperToken   string `envconfig:"GOOGLE_ADS_DEVELOPER_TOKEN"`
	GoogleAdsAccessToken      string `envconfig:"GOOGLE_ADS_ACCESS_TOKEN"`
	GoogleAdsConversionAction string `envconfig:"GOOGLE_ADS_CONVERSION_ACTION"`
	GoogleAdsAPIBaseURL       string `envconfig:"GOOGLE_ADS_API_BASE_URL" default:"https://googleads.googleapis.com/v17"`

	MetaPixelID         string `envconfig:"META_PIXEL_ID"`
	MetaCAPIAccessToken string `envconfig:"META_CAPI_ACCESS_TOKEN"`
	MetaAPIBaseURL      string `envconfig:"META_API_BASE_URL" default:"https://graph.facebook.com/v21.0"`

	// CalendarWebhookURL, when set, receives booking payloads and returns a
	// meet URL + event id. Empty means calendar sync is skipped.
	CalendarWebhookURL string `envconfig:"CALENDAR_WEBHOOK_URL"`
	CalendarAuthToken  string `envconfig:"CALENDAR_AUTH_TOKEN"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
