package booking

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	dbpkg "leadflow/internal/db"
)

func confirmedBooking(t *testing.T, db *gorm.DB, leadID uint, start time.Time) *dbpkg.Booking {
	t.Helper()
	loc, _ := time.LoadLocation("Asia/Dubai")
	b := &dbpkg.Booking{
		LeadID:            leadID,
		SelectedStart:     start,
		SelectedEnd:       start.Add(15 * time.Minute),
		BookingTimezone:   "Asia/Dubai",
		LocalStartDisplay: FormatLocalDisplay(start, loc),
		Status:            dbpkg.BookingStatusConfirmed,
		CustomerName:      "Ana Costa",
		CustomerEmail:     "ana@example.com",
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func TestRunRemindersOnce_SendsAndMarks(t *testing.T) {
	db, c, mock := testCreator(t)
	l := testLead(t, db)
	b := confirmedBooking(t, db, l.ID, time.Now().Add(30*time.Minute))

	job := dbpkg.ReminderJob{BookingID: b.ID, ScheduledFor: time.Now(), Status: dbpkg.ReminderStatusPending}
	if err := db.Create(&job).Error; err != nil {
		t.Fatal(err)
	}

	stats, err := RunRemindersOnce(context.Background(), db, c.Cfg, mock)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Claimed != 1 || stats.Sent != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	email, ok := mock.Last()
	if !ok {
		t.Fatal("no reminder sent")
	}
	if !strings.Contains(email.HTML, b.LocalStartDisplay) {
		t.Fatalf("reminder body missing stored display string: %q", email.HTML)
	}

	var after dbpkg.Booking
	if err := db.First(&after, b.ID).Error; err != nil {
		t.Fatal(err)
	}
	if after.ReminderSentAt == nil {
		t.Fatal("reminder marker not set")
	}

	var done dbpkg.ReminderJob
	if err := db.First(&done, job.ID).Error; err != nil {
		t.Fatal(err)
	}
	if done.Status != dbpkg.ReminderStatusCompleted {
		t.Fatalf("job status = %q", done.Status)
	}

	// The internal reminder_sent event is recorded for reporting.
	var count int64
	err = db.Model(&dbpkg.ConversionEvent{}).
		Where("event_type = ? AND provider = ?", dbpkg.EventReminderSent, dbpkg.ProviderInternal).
		Count(&count).Error
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("reminder_sent events = %d, want 1", count)
	}
}

func TestRunRemindersOnce_DuplicateJobIsNoOp(t *testing.T) {
	db, c, mock := testCreator(t)
	l := testLead(t, db)
	b := confirmedBooking(t, db, l.ID, time.Now().Add(30*time.Minute))

	// Two jobs for the same booking, e.g. after a partial failure re-enqueue.
	for i := 0; i < 2; i++ {
		job := dbpkg.ReminderJob{BookingID: b.ID, ScheduledFor: time.Now(), Status: dbpkg.ReminderStatusPending}
		if err := db.Create(&job).Error; err != nil {
			t.Fatal(err)
		}
	}

	stats, err := RunRemindersOnce(context.Background(), db, c.Cfg, mock)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Claimed != 2 || stats.Sent != 1 || stats.Completed != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("sent %d reminders, want exactly 1", len(mock.Sent))
	}
}

func TestRunRemindersOnce_RerunAfterCompletionIsIdle(t *testing.T) {
	db, c, mock := testCreator(t)
	l := testLead(t, db)
	b := confirmedBooking(t, db, l.ID, time.Now().Add(30*time.Minute))

	job := dbpkg.ReminderJob{BookingID: b.ID, ScheduledFor: time.Now(), Status: dbpkg.ReminderStatusPending}
	if err := db.Create(&job).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := RunRemindersOnce(context.Background(), db, c.Cfg, mock); err != nil {
		t.Fatal(err)
	}
	stats, err := RunRemindersOnce(context.Background(), db, c.Cfg, mock)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Fetched != 0 || len(mock.Sent) != 1 {
		t.Fatalf("rerun stats = %+v, sent = %d", stats, len(mock.Sent))
	}
}

func TestRunRemindersOnce_MissingBookingFailsJob(t *testing.T) {
	db, c, mock := testCreator(t)

	job := dbpkg.ReminderJob{BookingID: 9999, ScheduledFor: time.Now(), Status: dbpkg.ReminderStatusPending}
	if err := db.Create(&job).Error; err != nil {
		t.Fatal(err)
	}

	stats, err := RunRemindersOnce(context.Background(), db, c.Cfg, mock)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Claimed != 1 || stats.Failed != 1 || stats.Sent != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	var after dbpkg.ReminderJob
	if err := db.First(&after, job.ID).Error; err != nil {
		t.Fatal(err)
	}
	if after.Status != dbpkg.ReminderStatusFailed {
		t.Fatalf("job status = %q, want failed", after.Status)
	}
	if len(mock.Sent) != 0 {
		t.Fatalf("sent %d emails for a missing booking", len(mock.Sent))
	}
}
