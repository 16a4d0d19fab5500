package db_test

import (
	"testing"
	"time"

	"gorm.io/gorm"

	dbpkg "leadflow/internal/db"
	"leadflow/internal/db/dbtest"
)

func pendingEvent(t *testing.T, db *gorm.DB, provider string) *dbpkg.ConversionEvent {
	t.Helper()
	ev := &dbpkg.ConversionEvent{
		EventType: dbpkg.EventLeadCreated,
		Provider:  provider,
		DedupeKey: "key-" + provider + "-" + time.Now().Format("150405.000000000"),
		Status:    dbpkg.ConversionStatusPending,
	}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func TestClaimConversionEvent_OnlyOnce(t *testing.T) {
	db := dbtest.Open(t)
	ev := pendingEvent(t, db, dbpkg.ProviderGoogleAds)
	stale := *ev

	now := time.Now()
	claimed, err := dbpkg.ClaimConversionEvent(db, ev, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim rejected")
	}
	if ev.Status != dbpkg.ConversionStatusProcessing || ev.Attempts != 1 {
		t.Fatalf("claimed event status=%q attempts=%d", ev.Status, ev.Attempts)
	}

	// A second worker holding the stale pending snapshot must lose.
	claimed, err = dbpkg.ClaimConversionEvent(db, &stale, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("stale snapshot claimed an already-processing row")
	}
}

func TestDueConversionEvents_Eligibility(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	mk := func(key, status string, attempts int, retryAfter *time.Time) {
		t.Helper()
		ev := dbpkg.ConversionEvent{
			EventType:  dbpkg.EventLeadCreated,
			Provider:   dbpkg.ProviderGoogleAds,
			DedupeKey:  key,
			Status:     status,
			Attempts:   attempts,
			RetryAfter: retryAfter,
		}
		if err := db.Create(&ev).Error; err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}

	mk("pending", dbpkg.ConversionStatusPending, 0, nil)
	mk("failed-due", dbpkg.ConversionStatusFailed, 1, &past)
	mk("failed-later", dbpkg.ConversionStatusFailed, 1, &future)
	mk("failed-terminal", dbpkg.ConversionStatusFailed, 1, nil)
	mk("failed-exhausted", dbpkg.ConversionStatusFailed, dbpkg.MaxConversionAttempts, &past)
	mk("sent", dbpkg.ConversionStatusSent, 1, nil)
	mk("processing", dbpkg.ConversionStatusProcessing, 1, nil)

	events, err := dbpkg.DueConversionEvents(db, now, 50)
	if err != nil {
		t.Fatalf("due: %v", err)
	}

	got := map[string]bool{}
	for _, ev := range events {
		got[ev.DedupeKey] = true
	}
	want := map[string]bool{"pending": true, "failed-due": true}
	if len(got) != len(want) {
		t.Fatalf("due keys = %v, want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("missing due event %q (got %v)", k, got)
		}
	}
}

func TestDueConversionEvents_ProviderFilter(t *testing.T) {
	db := dbtest.Open(t)
	pendingEvent(t, db, dbpkg.ProviderGoogleAds)
	pendingEvent(t, db, dbpkg.ProviderMetaCAPI)

	events, err := dbpkg.DueConversionEvents(db, time.Now(), 50, dbpkg.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(events) != 1 || events[0].Provider != dbpkg.ProviderGoogleAds {
		t.Fatalf("filtered events = %+v", events)
	}
}

func TestDueReminderJobs_LookaheadWindow(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Now()

	mk := func(bookingID uint, at time.Time, status string, attempts int) {
		t.Helper()
		job := dbpkg.ReminderJob{BookingID: bookingID, ScheduledFor: at, Status: status, Attempts: attempts}
		if err := db.Create(&job).Error; err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	mk(1, now.Add(-time.Minute), dbpkg.ReminderStatusPending, 0)   // overdue
	mk(2, now.Add(3*time.Minute), dbpkg.ReminderStatusPending, 0)  // inside window
	mk(3, now.Add(30*time.Minute), dbpkg.ReminderStatusPending, 0) // outside window
	mk(4, now.Add(-time.Minute), dbpkg.ReminderStatusCompleted, 1)
	mk(5, now.Add(-time.Minute), dbpkg.ReminderStatusPending, dbpkg.MaxReminderAttempts)

	jobs, err := dbpkg.DueReminderJobs(db, now, 5*time.Minute, 50)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].BookingID != 1 || jobs[1].BookingID != 2 {
		t.Fatalf("job order = %d, %d", jobs[0].BookingID, jobs[1].BookingID)
	}
}

func TestClaimReminderJob_OnlyOnce(t *testing.T) {
	db := dbtest.Open(t)
	job := &dbpkg.ReminderJob{BookingID: 1, ScheduledFor: time.Now(), Status: dbpkg.ReminderStatusPending}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	stale := *job

	claimed, err := dbpkg.ClaimReminderJob(db, job, time.Now())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed || job.Attempts != 1 {
		t.Fatalf("claimed=%v attempts=%d", claimed, job.Attempts)
	}

	claimed, err = dbpkg.ClaimReminderJob(db, &stale, time.Now())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("stale snapshot claimed an already-processing job")
	}
}
