package booking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"leadflow/internal/calendar"
	"leadflow/internal/config"
	dbpkg "leadflow/internal/db"
	"leadflow/internal/db/dbtest"
	"leadflow/internal/notify"
)

func testCreator(t *testing.T) (*gorm.DB, *Creator, *notify.MockSender) {
	t.Helper()
	db := dbtest.Open(t)
	cfg := &config.Config{
		EmailFrom:       "bookings@leadflow.example",
		BookingTimezone: "Asia/Dubai",
	}
	mock := &notify.MockSender{}
	c := &Creator{
		DB:       db,
		Cfg:      cfg,
		Email:    mock,
		Calendar: calendar.NewClient(cfg),
	}
	return db, c, mock
}

func testLead(t *testing.T, db *gorm.DB) *dbpkg.Lead {
	t.Helper()
	l := &dbpkg.Lead{
		PublicID:       "pub-" + time.Now().Format("150405.000000000"),
		RetrievalToken: "tok-" + time.Now().Format("150405.000000000"),
		Name:           "Ana Costa",
		Email:          "ana@example.com",
		PhoneE164:      "+971501234567",
	}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return l
}

func TestCreate_StoresDisplayStringOnce(t *testing.T) {
	db, c, mock := testCreator(t)
	l := testLead(t, db)

	start := time.Date(2025, 12, 23, 9, 0, 0, 0, time.UTC)
	res, err := c.Create(context.Background(), CreateInput{
		LeadID:   l.ID,
		StartUTC: start,
		EndUTC:   start.Add(15 * time.Minute),
		Timezone: "Asia/Dubai",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b := res.Booking

	if b.LocalStartDisplay != "Tuesday, December 23, 2025 at 1:00 PM" {
		t.Fatalf("display = %q", b.LocalStartDisplay)
	}
	loc, _ := time.LoadLocation(b.BookingTimezone)
	if recomputed := FormatLocalDisplay(b.SelectedStart, loc); recomputed != b.LocalStartDisplay {
		t.Fatalf("stored display %q disagrees with recomputation %q", b.LocalStartDisplay, recomputed)
	}
	if res.CalendarStatus != calendar.StatusSkipped {
		t.Fatalf("calendar status = %q, want skipped without a webhook", res.CalendarStatus)
	}

	// The confirmation email shows the stored string verbatim.
	email, ok := mock.Last()
	if !ok {
		t.Fatal("no confirmation email sent")
	}
	if email.To != "ana@example.com" {
		t.Fatalf("email recipient = %q", email.To)
	}
	if !strings.Contains(email.HTML, b.LocalStartDisplay) {
		t.Fatalf("confirmation body missing display string: %q", email.HTML)
	}

	// A reminder job is scheduled one hour before the start.
	var job dbpkg.ReminderJob
	if err := db.Where("booking_id = ?", b.ID).First(&job).Error; err != nil {
		t.Fatalf("reminder job lookup: %v", err)
	}
	if !job.ScheduledFor.Equal(start.Add(-time.Hour)) {
		t.Fatalf("reminder scheduled for %s, want start-1h", job.ScheduledFor)
	}
}

func TestCreate_OverlapIsConflict(t *testing.T) {
	db, c, _ := testCreator(t)
	l := testLead(t, db)
	ctx := context.Background()

	start := time.Date(2025, 12, 23, 9, 0, 0, 0, time.UTC)
	if _, err := c.Create(ctx, CreateInput{
		LeadID: l.ID, StartUTC: start, EndUTC: start.Add(15 * time.Minute), Timezone: "Asia/Dubai",
	}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// A different start inside the existing window must be rejected by the
	// write-time overlap re-check.
	_, err := c.Create(ctx, CreateInput{
		LeadID:   l.ID,
		StartUTC: start.Add(5 * time.Minute),
		EndUTC:   start.Add(20 * time.Minute),
		Timezone: "Asia/Dubai",
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}

	var count int64
	if err := db.Model(&dbpkg.Booking{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("booking count = %d, want 1", count)
	}
}

func TestCreate_DuplicateStartHitsUniqueBackstop(t *testing.T) {
	db, c, _ := testCreator(t)
	l := testLead(t, db)
	start := time.Date(2025, 12, 23, 9, 0, 0, 0, time.UTC)

	// A cancelled booking is invisible to the overlap re-check but still owns
	// the start instant; the unique index resolves the race.
	existing := dbpkg.Booking{
		LeadID:            l.ID,
		SelectedStart:     start,
		SelectedEnd:       start.Add(15 * time.Minute),
		BookingTimezone:   "Asia/Dubai",
		LocalStartDisplay: "x",
		Status:            dbpkg.BookingStatusCancelled,
		CustomerName:      l.Name,
		CustomerEmail:     l.Email,
	}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatal(err)
	}

	_, err := c.Create(context.Background(), CreateInput{
		LeadID: l.ID, StartUTC: start, EndUTC: start.Add(15 * time.Minute), Timezone: "Asia/Dubai",
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
}

func TestCreate_IdempotencyKeyReturnsExisting(t *testing.T) {
	db, c, mock := testCreator(t)
	l := testLead(t, db)
	ctx := context.Background()
	start := time.Date(2025, 12, 23, 9, 0, 0, 0, time.UTC)

	in := CreateInput{
		LeadID:         l.ID,
		StartUTC:       start,
		EndUTC:         start.Add(15 * time.Minute),
		Timezone:       "Asia/Dubai",
		IdempotencyKey: "client-key-1",
	}
	first, err := c.Create(ctx, in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	second, err := c.Create(ctx, in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !second.Idempotent {
		t.Fatal("replay not flagged idempotent")
	}
	if second.Booking.ID != first.Booking.ID {
		t.Fatalf("replay returned booking %d, want %d", second.Booking.ID, first.Booking.ID)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("replay sent %d emails, want 1", len(mock.Sent))
	}

	var count int64
	if err := db.Model(&dbpkg.Booking{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("booking count = %d, want 1", count)
	}
}

func TestCreate_LinksAttributionAndEnqueuesConversion(t *testing.T) {
	db, c, _ := testCreator(t)
	l := testLead(t, db)

	attr := dbpkg.AttributionEvent{
		SessionID:   "sess-1",
		LandingPath: "/",
		GCLID:       "gclid-1",
		LeadID:      &l.ID,
	}
	if err := db.Create(&attr).Error; err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 12, 23, 9, 0, 0, 0, time.UTC)
	res, err := c.Create(context.Background(), CreateInput{
		LeadID: l.ID, StartUTC: start, EndUTC: start.Add(15 * time.Minute), Timezone: "Asia/Dubai",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var linked dbpkg.AttributionEvent
	if err := db.First(&linked, attr.ID).Error; err != nil {
		t.Fatal(err)
	}
	if linked.BookingID == nil || *linked.BookingID != res.Booking.ID {
		t.Fatalf("attribution booking link = %v", linked.BookingID)
	}

	var ev dbpkg.ConversionEvent
	err = db.Where("event_type = ? AND provider = ?", dbpkg.EventBookingCreated, dbpkg.ProviderGoogleAds).First(&ev).Error
	if err != nil {
		t.Fatalf("conversion event lookup: %v", err)
	}
	if ev.BookingID == nil || *ev.BookingID != res.Booking.ID {
		t.Fatalf("conversion booking id = %v", ev.BookingID)
	}
}
