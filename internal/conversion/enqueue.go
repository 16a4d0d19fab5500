// Package conversion implements the ad-platform notification pipeline:
// idempotent enqueue of conversion events, the polling worker that claims and
// dispatches them, and the per-provider adapters.
package conversion

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"

	dbpkg "leadflow/internal/db"
)

// LeadEntityID and BookingEntityID build the entity half of the dedupe key.
func LeadEntityID(id uint) string    { return fmt.Sprintf("lead:%d", id) }
func BookingEntityID(id uint) string { return fmt.Sprintf("booking:%d", id) }

// DedupeKey returns the deterministic hex SHA-256 of
// "entityId-eventType-provider". The unique index on this value is what makes
// enqueue idempotent.
func DedupeKey(entityID, eventType, provider string) string {
	sum := sha256.Sum256([]byte(entityID + "-" + eventType + "-" + provider))
	return hex.EncodeToString(sum[:])
}

// EnqueueInput describes one conversion event to record. At least one of
// LeadID/BookingID must be set.
type EnqueueInput struct {
	EventType string
	Provider  string
	LeadID    *uint
	BookingID *uint
	Value     float64
	Currency  string
}

// Enqueue inserts a pending conversion event unless one already exists for
// the same (entity, event type, provider). Returns dedupeSkipped=true when an
// existing row was found, including when a concurrent enqueue wins the insert
// race — a unique violation is treated identically to the found case.
func Enqueue(db *gorm.DB, in EnqueueInput) (dedupeSkipped bool, err error) {
	if in.LeadID == nil && in.BookingID == nil {
		return false, errors.New("conversion enqueue requires a lead or booking id")
	}

	entity := ""
	if in.BookingID != nil {
		entity = BookingEntityID(*in.BookingID)
	} else {
		entity = LeadEntityID(*in.LeadID)
	}
	key := DedupeKey(entity, in.EventType, in.Provider)

	var count int64
	if err := db.Model(&dbpkg.ConversionEvent{}).Where("dedupe_key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	row := dbpkg.ConversionEvent{
		EventType:       in.EventType,
		Provider:        in.Provider,
		LeadID:          in.LeadID,
		BookingID:       in.BookingID,
		DedupeKey:       key,
		Status:          dbpkg.ConversionStatusPending,
		ConversionValue: in.Value,
		Currency:        in.Currency,
	}
	if err := db.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against a concurrent enqueue; the row exists.
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// EnqueueForAttribution enqueues click-ID-gated conversion events for an
// entity: google_ads when a Google click ID is present, meta_capi when an
// fbclid is present. No click IDs means no rows. Errors are returned for
// logging; callers never fail the parent request on them.
func EnqueueForAttribution(db *gorm.DB, attr *dbpkg.AttributionEvent, eventType string, leadID, bookingID *uint, value float64, currency string) error {
	if attr == nil {
		return nil
	}

	if attr.GCLID != "" || attr.GBRAID != "" || attr.WBRAID != "" {
		if _, err := Enqueue(db, EnqueueInput{
			EventType: eventType,
			Provider:  dbpkg.ProviderGoogleAds,
			LeadID:    leadID,
			BookingID: bookingID,
			Value:     value,
			Currency:  currency,
		}); err != nil {
			return err
		}
	}

	if attr.FBCLID != "" {
		if _, err := Enqueue(db, EnqueueInput{
			EventType: eventType,
			Provider:  dbpkg.ProviderMetaCAPI,
			LeadID:    leadID,
			BookingID: bookingID,
			Value:     value,
			Currency:  currency,
		}); err != nil {
			return err
		}
	}

	return nil
}
