package types

import "time"

// Statuses a user may declare at signup. Profile updates are validated
// against the same set.
const (
	StatusUnemployed   = "unemployed"
	StatusSecondarySch = "secondary_school"
	StatusUniversity   = "university"
	StatusStudyAbroad  = "study_abroad"
	StatusHomemaker    = "homemaker"
	StatusEmployed     = "employed"
	StatusMilitary     = "military"
	StatusOther        = "other"
)

// AllowedStatuses enumerates every accepted status value.
var AllowedStatuses = []string{
	StatusUnemployed,
	StatusSecondarySch,
	StatusUniversity,
	StatusStudyAbroad,
	StatusHomemaker,
	StatusEmployed,
	StatusMilitary,
	StatusOther,
}

// IsValidStatus reports whether v is one of the allowed status values.
func IsValidStatus(v string) bool {
	for _, s := range AllowedStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// User represents an account in the system.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Nickname is the unique login name chosen by the user.
	Nickname string `json:"nickname" db:"nickname"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	Age    int    `json:"age" db:"age"`
	Gender string `json:"gender" db:"gender"`

	// Status is one of AllowedStatuses.
	Status string `json:"status" db:"status"`

	Address string `json:"address" db:"address"`
	Phone   string `json:"phone" db:"phone"`

	Point int `json:"point" db:"point"`
	Level int `json:"level" db:"level"`

	// LimitedAccess is derived at signup: true exactly when no phone
	// number was supplied.
	LimitedAccess bool `json:"limited_access" db:"limited_access"`

	// EmailVerified gates login. Accounts may exist unverified but
	// cannot operate.
	EmailVerified   bool       `json:"email_verified" db:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty" db:"email_verified_at"`

	// EmailNotifyEnabled records the user's consent to notification mail.
	EmailNotifyEnabled bool `json:"email_notify_enabled" db:"email_notify_enabled"`

	// TokenVersion is embedded in session tokens; bumping it invalidates
	// every outstanding session.
	TokenVersion int `json:"-" db:"token_version"`

	PasswordUpdatedAt      *time.Time `json:"-" db:"password_updated_at"`
	LastVerificationSentAt *time.Time `json:"-" db:"last_verification_sent_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
