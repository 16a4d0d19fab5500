package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"leadflow/internal/attribution"
	"leadflow/internal/calendar"
	"leadflow/internal/config"
	"leadflow/internal/conversion"
	dbpkg "leadflow/internal/db"
	"leadflow/internal/notify"
)

// ErrSlotConflict maps to the 409 "slot no longer available" response: the
// slot was taken between slot generation and this write.
var ErrSlotConflict = errors.New("slot no longer available")

// ErrPastSlot rejects bookings whose start is already inside the lead time.
var ErrPastSlot = errors.New("booking start is in the past or too soon")

// Creator persists bookings and runs their downstream side effects.
type Creator struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Email    notify.Sender
	Calendar *calendar.Client
}

// CreateInput is the validated request to book a slot. Times are UTC; the
// timezone is client-supplied but trusted because it matches the fixed
// business timezone used by the slot generator.
type CreateInput struct {
	LeadID         uint
	StartUTC       time.Time
	EndUTC         time.Time
	Timezone       string
	IdempotencyKey string
}

// CreateResult is returned to the handler.
type CreateResult struct {
	Booking        *dbpkg.Booking
	CalendarStatus string
	Idempotent     bool
}

// Create books a slot. Availability is re-validated at write time against
// current confirmed bookings; the unique constraint on selected_start is the
// backstop for races the re-check cannot see, and a unique violation is
// mapped to ErrSlotConflict. The local display string is computed here, once,
// and stored — downstream consumers display the stored string, never a live
// recomputation.
func (c *Creator) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if in.IdempotencyKey != "" {
		var existing dbpkg.Booking
		err := c.DB.Where("idempotency_key = ?", in.IdempotencyKey).First(&existing).Error
		if err == nil {
			return CreateResult{Booking: &existing, CalendarStatus: calendar.StatusSkipped, Idempotent: true}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return CreateResult{}, err
		}
	}

	loc, err := time.LoadLocation(in.Timezone)
	if err != nil {
		return CreateResult{}, fmt.Errorf("invalid timezone %q: %w", in.Timezone, err)
	}

	var l dbpkg.Lead
	if err := c.DB.First(&l, in.LeadID).Error; err != nil {
		return CreateResult{}, fmt.Errorf("lead lookup: %w", err)
	}

	// Defense against slot-generator staleness: re-run the overlap query
	// against confirmed bookings at write time.
	var conflicts int64
	err = c.DB.Model(&dbpkg.Booking{}).
		Where("status = ?", dbpkg.BookingStatusConfirmed).
		Where("selected_start < ? AND selected_end > ?", in.EndUTC, in.StartUTC).
		Count(&conflicts).Error
	if err != nil {
		return CreateResult{}, err
	}
	if conflicts > 0 {
		return CreateResult{}, ErrSlotConflict
	}

	b := dbpkg.Booking{
		LeadID:            in.LeadID,
		SelectedStart:     in.StartUTC.UTC(),
		SelectedEnd:       in.EndUTC.UTC(),
		BookingTimezone:   in.Timezone,
		LocalStartDisplay: FormatLocalDisplay(in.StartUTC, loc),
		Status:            dbpkg.BookingStatusConfirmed,
		CustomerName:      l.Name,
		CustomerEmail:     l.Email,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		b.IdempotencyKey = &key
	}

	if err := c.DB.Create(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Race lost: either the start instant or the idempotency key
			// already exists. Re-check the idempotency key before declaring
			// a slot conflict.
			if in.IdempotencyKey != "" {
				var existing dbpkg.Booking
				if lookupErr := c.DB.Where("idempotency_key = ?", in.IdempotencyKey).First(&existing).Error; lookupErr == nil {
					return CreateResult{Booking: &existing, CalendarStatus: calendar.StatusSkipped, Idempotent: true}, nil
				}
			}
			return CreateResult{}, ErrSlotConflict
		}
		return CreateResult{}, err
	}

	calStatus := c.syncCalendar(ctx, &b)
	c.sendConfirmation(ctx, &b)
	c.scheduleReminder(&b)
	c.captureConversions(&b, &l)

	return CreateResult{Booking: &b, CalendarStatus: calStatus}, nil
}

// syncCalendar is best-effort: failures surface only in the calendar_status
// field, never as booking errors.
func (c *Creator) syncCalendar(ctx context.Context, b *dbpkg.Booking) string {
	meetURL, eventID, status := c.Calendar.CreateEvent(ctx, b)
	if status != calendar.StatusCreated {
		return status
	}

	updates := map[string]any{}
	if meetURL != "" {
		b.MeetURL = &meetURL
		updates["meet_url"] = meetURL
	}
	if eventID != "" {
		b.CalendarEventID = &eventID
		updates["calendar_event_id"] = eventID
	}
	if len(updates) > 0 {
		if err := c.DB.Model(&dbpkg.Booking{}).Where("id = ?", b.ID).Updates(updates).Error; err != nil {
			log.Printf("booking calendar field update failed (booking=%d): %v", b.ID, err)
		}
	}
	return status
}

// sendConfirmation always runs, independent of the calendar outcome, gated
// by the EmailSend dedupe guard. The body shows the stored display string.
func (c *Creator) sendConfirmation(ctx context.Context, b *dbpkg.Booking) {
	key := fmt.Sprintf("confirmation-booking-%d", b.ID)
	e := notify.Email{
		From:    c.Cfg.EmailFrom,
		To:      b.CustomerEmail,
		Subject: "Your consultation is booked",
		HTML:    ConfirmationEmailHTML(b),
	}
	if _, err := notify.SendOnce(ctx, c.DB, c.Email, key, "confirmation", &b.ID, e, 2, notify.ExponentialBackoff); err != nil {
		log.Printf("confirmation email failed (booking=%d): %v", b.ID, err)
	}
}

func (c *Creator) scheduleReminder(b *dbpkg.Booking) {
	job := dbpkg.ReminderJob{
		BookingID:    b.ID,
		ScheduledFor: b.SelectedStart.Add(-1 * time.Hour),
		Status:       dbpkg.ReminderStatusPending,
	}
	if err := c.DB.Create(&job).Error; err != nil {
		log.Printf("reminder job create failed (booking=%d): %v", b.ID, err)
	}
}

// captureConversions links the latest attribution to this booking and
// enqueues click-ID-gated conversion events. Conversion tracking is a
// nice-to-have side effect; errors are logged only.
func (c *Creator) captureConversions(b *dbpkg.Booking, l *dbpkg.Lead) {
	attr, err := attribution.Latest(c.DB, &b.LeadID, nil)
	if err != nil {
		log.Printf("booking attribution lookup failed (booking=%d): %v", b.ID, err)
		return
	}
	if attr == nil {
		return
	}

	if err := c.DB.Model(&dbpkg.AttributionEvent{}).Where("id = ?", attr.ID).Update("booking_id", b.ID).Error; err != nil {
		log.Printf("booking attribution link failed (booking=%d): %v", b.ID, err)
	}

	if err := conversion.EnqueueForAttribution(c.DB, attr, dbpkg.EventBookingCreated, &b.LeadID, &b.ID, 0, ""); err != nil {
		log.Printf("booking conversion enqueue failed (booking=%d): %v", b.ID, err)
	}
}

// ConfirmationEmailHTML renders the confirmation body around the stored
// local display string.
func ConfirmationEmailHTML(b *dbpkg.Booking) string {
	meet := ""
	if b.MeetURL != nil && *b.MeetURL != "" {
		meet = fmt.Sprintf(`<p>Join link: <a href="%s">%s</a></p>`, *b.MeetURL, *b.MeetURL)
	}
	return fmt.Sprintf(
		`<p>Hi %s,</p><p>Your Google Ads consultation is confirmed for <strong>%s</strong> (%s).</p>%s<p>We look forward to speaking with you.</p>`,
		b.CustomerName, b.LocalStartDisplay, b.BookingTimezone, meet,
	)
}

// ConfirmedBookings returns the confirmed rows whose windows end after from,
// for slot-conflict checks.
func ConfirmedBookings(db *gorm.DB, from time.Time) ([]dbpkg.Booking, error) {
	var rows []dbpkg.Booking
	err := db.Where("status = ? AND selected_end > ?", dbpkg.BookingStatusConfirmed, from).
		Order("selected_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
