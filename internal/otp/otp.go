// Package otp implements the phone verification flow: short-lived 6-digit
// codes, bcrypt-hashed at rest, with best-effort in-process rate limiting.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"leadflow/internal/attribution"
	dbpkg "leadflow/internal/db"
	"leadflow/internal/notify"
)

const (
	CodeTTL           = 5 * time.Minute
	MaxVerifyAttempts = 5
)

var (
	ErrCodeExpired  = errors.New("code expired or not found")
	ErrCodeMismatch = errors.New("code does not match")
	ErrTooManyTries = errors.New("too many verification attempts")
)

// GenerateCode returns a random 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Send creates a code for the phone, stores its bcrypt hash and delivers it
// over SMS. Any previous unconsumed codes for the phone are superseded.
func Send(ctx context.Context, db *gorm.DB, sms notify.SMSSender, phoneE164 string) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	phoneHash := attribution.HashIdentifier(phoneE164)

	// Supersede older codes so only the latest one verifies.
	if err := db.Where("phone_hash = ? AND consumed_at IS NULL", phoneHash).Delete(&dbpkg.OTPCode{}).Error; err != nil {
		return err
	}

	row := dbpkg.OTPCode{
		PhoneHash: phoneHash,
		CodeHash:  string(hash),
		ExpiresAt: time.Now().Add(CodeTTL),
	}
	if err := db.Create(&row).Error; err != nil {
		return err
	}

	return sms.SendSMS(ctx, phoneE164, "Your verification code is "+code)
}

// Verify checks the code for the phone, consuming it on success and marking
// the lead (matched by phone) as verified.
func Verify(db *gorm.DB, phoneE164, code string) error {
	phoneHash := attribution.HashIdentifier(phoneE164)

	var row dbpkg.OTPCode
	err := db.Where("phone_hash = ? AND consumed_at IS NULL AND expires_at > ?", phoneHash, time.Now()).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeExpired
		}
		return err
	}

	if row.Attempts >= MaxVerifyAttempts {
		return ErrTooManyTries
	}

	if err := db.Model(&dbpkg.OTPCode{}).Where("id = ?", row.ID).Update("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(row.CodeHash), []byte(code)) != nil {
		return ErrCodeMismatch
	}

	now := time.Now()
	if err := db.Model(&dbpkg.OTPCode{}).Where("id = ?", row.ID).Update("consumed_at", now).Error; err != nil {
		return err
	}

	return db.Model(&dbpkg.Lead{}).
		Where("phone_e164 = ? AND phone_verified_at IS NULL", phoneE164).
		Update("phone_verified_at", now).Error
}

// IsVerified reports whether the lead's phone has been verified.
func IsVerified(db *gorm.DB, leadID uint) (bool, error) {
	var l dbpkg.Lead
	if err := db.First(&l, leadID).Error; err != nil {
		return false, err
	}
	return l.PhoneVerifiedAt != nil, nil
}
