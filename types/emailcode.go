package types

import "time"

// EmailVerificationCode is the stored state of a one-time signup code,
// keyed by email. A new request for the same email overwrites the row.
type EmailVerificationCode struct {
	Email      string    `json:"email" db:"email"`
	CodeHash   string    `json:"-" db:"code_hash"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	LastSentAt time.Time `json:"last_sent_at" db:"last_sent_at"`
	Attempts   int       `json:"attempts" db:"attempts"`
	Verified   bool      `json:"verified" db:"verified"`
}
