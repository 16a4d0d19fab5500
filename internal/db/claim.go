package db

import (
	"time"

	"gorm.io/gorm"
)

// MaxConversionAttempts bounds retries for conversion events; a row that has
// consumed all attempts stays failed permanently.
const MaxConversionAttempts = 3

// MaxReminderAttempts bounds retries for reminder jobs.
const MaxReminderAttempts = 3

// DueConversionEvents returns up to limit events eligible for processing:
// pending rows plus failed rows whose retry_after has passed, oldest first.
func DueConversionEvents(db *gorm.DB, now time.Time, limit int, providers ...string) ([]ConversionEvent, error) {
	q := db.Model(&ConversionEvent{}).
		Where("attempts < ?", MaxConversionAttempts).
		Where("(status = ? OR (status = ? AND retry_after IS NOT NULL AND retry_after < ?))",
			ConversionStatusPending, ConversionStatusFailed, now)
	if len(providers) > 0 {
		q = q.Where("provider IN ?", providers)
	}

	var events []ConversionEvent
	if err := q.Order("created_at ASC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ClaimConversionEvent attempts the atomic claim for one event. The update is
// gated on the status the row had when fetched; zero rows affected means
// another worker got there first.
func ClaimConversionEvent(db *gorm.DB, ev *ConversionEvent, now time.Time) (bool, error) {
	res := db.Model(&ConversionEvent{}).
		Where("id = ? AND status = ?", ev.ID, ev.Status).
		Updates(map[string]any{
			"status":          ConversionStatusProcessing,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	ev.Status = ConversionStatusProcessing
	ev.Attempts++
	ev.LastAttemptAt = &now
	return true, nil
}

// DueReminderJobs returns pending jobs scheduled within the lookahead window,
// oldest schedule first.
func DueReminderJobs(db *gorm.DB, now time.Time, lookahead time.Duration, limit int) ([]ReminderJob, error) {
	var jobs []ReminderJob
	err := db.Model(&ReminderJob{}).
		Where("status = ? AND scheduled_for <= ?", ReminderStatusPending, now.Add(lookahead)).
		Where("attempts < ?", MaxReminderAttempts).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimReminderJob attempts the atomic claim for one reminder job, same
// conditional-update pattern as ClaimConversionEvent.
func ClaimReminderJob(db *gorm.DB, job *ReminderJob, now time.Time) (bool, error) {
	res := db.Model(&ReminderJob{}).
		Where("id = ? AND status = ?", job.ID, ReminderStatusPending).
		Updates(map[string]any{
			"status":          ReminderStatusProcessing,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	job.Status = ReminderStatusProcessing
	job.Attempts++
	job.LastAttemptAt = &now
	return true, nil
}
