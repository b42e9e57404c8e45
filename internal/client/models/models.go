// Package models holds the client-side view of QR login server responses.
package models

import "time"

// Session is the result of a successful QR login.
type Session struct {
	AccessToken string
	UserID      string
	Role        string
	Redirect    string
}

// IssuedCode is a freshly issued QR login code. Token is shown once and
// should be printed or rendered as a QR image right away.
type IssuedCode struct {
	Token    string
	RecordID string
	LoginURL string
}

// ActiveCode is the caller's current QR login code.
type ActiveCode struct {
	RecordID   string
	Token      string
	LoginURL   string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
