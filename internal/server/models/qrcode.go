// Package models defines server-side data models persisted in the database.
package models

import "time"

// QRCode is one login credential record. The raw token it stands for is
// never stored: TokenHash is the lookup key and TokenCipher/TokenIV keep an
// encrypted copy only so the owner can be shown the same QR code again.
//
// A record is ACTIVE while IsActive is true and RevokedAt is nil. Once
// RevokedAt is set the record is terminal.
type QRCode struct {
	ID          string
	OwnerID     string
	TokenHash   string
	TokenCipher string
	TokenIV     string
	IsActive    bool
	CreatedAt   time.Time
	RevokedAt   *time.Time

	LastUsedAt        *time.Time
	LastUsedIP        *string
	LastUsedUserAgent *string
}

// Active reports whether the record may still be verified.
func (q *QRCode) Active() bool {
	return q.IsActive && q.RevokedAt == nil
}

// VerifiedQRCode is an active record joined to the owner it belongs to, as
// returned by a token lookup.
type VerifiedQRCode struct {
	Code  QRCode
	Owner User
}
