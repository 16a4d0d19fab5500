package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runAggregationOnce aggregates conversion events created in the given hour
// (bucketStart to bucketStart+1h) into ConversionBucket rows. Call with
// bucketStart = time in UTC truncated to hour.
func runAggregationOnce(db *gorm.DB, bucketStart time.Time) error {
	bucketEnd := bucketStart.Add(time.Hour)

	var events []ConversionEvent
	if err := db.Where("created_at >= ? AND created_at < ?", bucketStart, bucketEnd).
		Select("provider", "event_type", "status").
		Find(&events).Error; err != nil {
		return err
	}

	type key struct {
		Provider  string
		EventType string
	}
	type counts struct {
		sent    int64
		failed  int64
		pending int64
	}
	groups := make(map[key]*counts)
	for _, e := range events {
		k := key{Provider: e.Provider, EventType: e.EventType}
		c := groups[k]
		if c == nil {
			c = &counts{}
			groups[k] = c
		}
		switch e.Status {
		case ConversionStatusSent:
			c.sent++
		case ConversionStatusFailed:
			c.failed++
		default:
			c.pending++
		}
	}

	for k, c := range groups {
		row := ConversionBucket{
			Provider:     k.Provider,
			EventType:    k.EventType,
			BucketStart:  bucketStart,
			SentCount:    c.sent,
			FailedCount:  c.failed,
			PendingCount: c.pending,
		}
		var existing ConversionBucket
		err := db.Where("provider = ? AND event_type = ? AND bucket_start = ?", k.Provider, k.EventType, bucketStart).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			err = db.Create(&row).Error
		} else if err == nil {
			err = db.Model(&existing).Updates(map[string]interface{}{
				"sent_count":    row.SentCount,
				"failed_count":  row.FailedCount,
				"pending_count": row.PendingCount,
			}).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartAggregationWorker runs aggregation for the previous full hour at startup,
// then every hour. Buckets are in UTC.
func StartAggregationWorker(db *gorm.DB) {
	go func() {
		// Run for the last 24 completed hours at startup.
		now := time.Now().UTC()
		for i := 1; i <= 24; i++ {
			bucketStart := now.Truncate(time.Hour).Add(-time.Duration(i) * time.Hour)
			if err := runAggregationOnce(db, bucketStart); err != nil {
				log.Printf("aggregation error (startup) for %s: %v", bucketStart.Format(time.RFC3339), err)
			}
		}

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for t := range ticker.C {
			bucketStart := t.UTC().Truncate(time.Hour).Add(-time.Hour)
			if err := runAggregationOnce(db, bucketStart); err != nil {
				log.Printf("aggregation error for %s: %v", bucketStart.Format(time.RFC3339), err)
			}
		}
	}()
}
