package notify

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	dbpkg "leadflow/internal/db"
)

// AlreadySent reports whether an EmailSend row exists for the key.
func AlreadySent(db *gorm.DB, idempotencyKey string) (bool, error) {
	var count int64
	if err := db.Model(&dbpkg.EmailSend{}).Where("idempotency_key = ?", idempotencyKey).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SendOnce delivers an email at most once per idempotency key: it checks the
// EmailSend guard, sends with the given retry schedule, and records the send.
// A duplicate-key insert after delivery means a concurrent sender won; that is
// treated as success. Returns sent=false when the guard suppressed the send.
func SendOnce(ctx context.Context, db *gorm.DB, s Sender, idempotencyKey, emailType string, bookingID *uint, e Email, attempts int, backoff func(int) time.Duration) (sent bool, err error) {
	dup, err := AlreadySent(db, idempotencyKey)
	if err != nil {
		return false, err
	}
	if dup {
		return false, nil
	}

	msgID, err := SendWithRetry(ctx, s, e, attempts, backoff)
	if err != nil {
		return false, err
	}

	row := dbpkg.EmailSend{
		IdempotencyKey:    idempotencyKey,
		EmailType:         emailType,
		Recipient:         e.To,
		BookingID:         bookingID,
		ProviderMessageID: msgID,
	}
	if err := db.Create(&row).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return true, err
	}
	return true, nil
}
