package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"leadflow/internal/config"
	"leadflow/internal/conversion"
	dbpkg "leadflow/internal/db"
	"leadflow/internal/notify"
)

const (
	// ReminderLookahead picks up jobs due within the next window so the
	// reminder lands slightly early rather than late.
	ReminderLookahead = 5 * time.Minute

	reminderBatchSize = 20
)

// ReminderStats summarizes one reminder worker run.
type ReminderStats struct {
	Fetched   int `json:"fetched"`
	Claimed   int `json:"claimed"`
	Sent      int `json:"sent"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunRemindersOnce executes one reminder worker pass: claim due jobs with the
// conditional-update pattern, short-circuit to completed when the reminder
// was already sent (booking marker or EmailSend row), otherwise send with a
// 3-attempt linear retry and record both idempotency markers.
func RunRemindersOnce(ctx context.Context, db *gorm.DB, cfg *config.Config, sender notify.Sender) (ReminderStats, error) {
	var stats ReminderStats
	now := time.Now()

	jobs, err := dbpkg.DueReminderJobs(db, now, ReminderLookahead, reminderBatchSize)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(jobs)

	for i := range jobs {
		job := &jobs[i]

		claimed, err := dbpkg.ClaimReminderJob(db, job, time.Now())
		if err != nil {
			log.Printf("reminder claim error (job=%d): %v", job.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		stats.Claimed++

		sent, err := processReminder(ctx, db, cfg, sender, job)
		switch {
		case err == nil && sent:
			stats.Sent++
			stats.Completed++
		case err == nil:
			stats.Completed++
		default:
			stats.Failed++
		}
	}

	return stats, nil
}

// processReminder handles one claimed job. Returns sent=true when an email
// actually went out (false on an idempotent short circuit).
func processReminder(ctx context.Context, db *gorm.DB, cfg *config.Config, sender notify.Sender, job *dbpkg.ReminderJob) (bool, error) {
	var b dbpkg.Booking
	if err := db.First(&b, job.BookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Booking gone; nothing to remind about.
			markJob(db, job, dbpkg.ReminderStatusFailed, "booking not found")
			return false, errors.New("booking not found")
		}
		revertOrFail(db, job, err.Error())
		return false, err
	}

	key := fmt.Sprintf("reminder-booking-%d", b.ID)

	// Idempotency: either marker means the reminder already went out.
	if b.ReminderSentAt != nil {
		markJob(db, job, dbpkg.ReminderStatusCompleted, "")
		return false, nil
	}
	if dup, err := notify.AlreadySent(db, key); err == nil && dup {
		markJob(db, job, dbpkg.ReminderStatusCompleted, "")
		return false, nil
	}

	e := notify.Email{
		From:    cfg.EmailFrom,
		To:      b.CustomerEmail,
		Subject: "Reminder: your consultation starts soon",
		HTML:    ReminderEmailHTML(&b),
	}
	sent, err := notify.SendOnce(ctx, db, sender, key, "reminder", &b.ID, e, 3, notify.LinearBackoff)
	if err != nil {
		revertOrFail(db, job, err.Error())
		return false, err
	}

	now := time.Now()
	if err := db.Model(&dbpkg.Booking{}).Where("id = ?", b.ID).Update("reminder_sent_at", now).Error; err != nil {
		log.Printf("reminder marker update failed (booking=%d): %v", b.ID, err)
	}
	markJob(db, job, dbpkg.ReminderStatusCompleted, "")

	// Record the internal reminder_sent event for reporting.
	if _, err := conversion.Enqueue(db, conversion.EnqueueInput{
		EventType: dbpkg.EventReminderSent,
		Provider:  dbpkg.ProviderInternal,
		BookingID: &b.ID,
	}); err != nil {
		log.Printf("reminder conversion enqueue failed (booking=%d): %v", b.ID, err)
	}

	return sent, nil
}

func markJob(db *gorm.DB, job *dbpkg.ReminderJob, status, errMsg string) {
	updates := map[string]any{"status": status, "error_message": errMsg}
	if err := db.Model(&dbpkg.ReminderJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		log.Printf("reminder job update failed (job=%d): %v", job.ID, err)
	}
	job.Status = status
}

// revertOrFail returns a failed job to pending for re-pickup, or marks it
// permanently failed when attempts are exhausted.
func revertOrFail(db *gorm.DB, job *dbpkg.ReminderJob, errMsg string) {
	status := dbpkg.ReminderStatusPending
	if job.Attempts >= dbpkg.MaxReminderAttempts {
		status = dbpkg.ReminderStatusFailed
	}
	markJob(db, job, status, errMsg)
}

// ReminderEmailHTML renders the reminder body around the stored local
// display string.
func ReminderEmailHTML(b *dbpkg.Booking) string {
	meet := ""
	if b.MeetURL != nil && *b.MeetURL != "" {
		meet = fmt.Sprintf(`<p>Join link: <a href="%s">%s</a></p>`, *b.MeetURL, *b.MeetURL)
	}
	return fmt.Sprintf(
		`<p>Hi %s,</p><p>This is a reminder that your Google Ads consultation starts at <strong>%s</strong> (%s).</p>%s`,
		b.CustomerName, b.LocalStartDisplay, b.BookingTimezone, meet,
	)
}

// StartReminderWorker launches an in-process polling loop for deployments
// without an external scheduler.
func StartReminderWorker(db *gorm.DB, cfg *config.Config, sender notify.Sender, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			stats, err := RunRemindersOnce(context.Background(), db, cfg, sender)
			if err != nil {
				log.Printf("reminder worker error: %v", err)
				continue
			}
			if stats.Claimed > 0 {
				log.Printf("reminder worker: claimed=%d sent=%d failed=%d", stats.Claimed, stats.Sent, stats.Failed)
			}
		}
	}()
}
