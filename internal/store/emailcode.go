package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mindvoyage/apiserver/types"
)

// EmailCodeRepository persists one verification-code row per email address.
type EmailCodeRepository struct {
	db *sql.DB
}

func NewEmailCodeRepository(db *sql.DB) *EmailCodeRepository {
	return &EmailCodeRepository{db: db}
}

// Upsert stores a freshly issued code, superseding any previous one and
// resetting the attempt counter and verified flag.
func (r *EmailCodeRepository) Upsert(ctx context.Context, email, codeHash string, expiresAt, sentAt time.Time) error {
	const query = `
		INSERT INTO email_verification_codes (email, code_hash, expires_at, last_sent_at, attempts, verified)
		VALUES (lower($1), $2, $3, $4, 0, FALSE)
		ON CONFLICT (email) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			last_sent_at = EXCLUDED.last_sent_at,
			attempts = 0,
			verified = FALSE`
	_, err := r.db.ExecContext(ctx, query, email, codeHash, expiresAt.UTC(), sentAt.UTC())
	return err
}

func (r *EmailCodeRepository) Get(ctx context.Context, email string) (types.EmailVerificationCode, error) {
	const query = `
		SELECT email, code_hash, expires_at, last_sent_at, attempts, verified
		FROM email_verification_codes
		WHERE email = lower($1)`
	var code types.EmailVerificationCode
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&code.Email,
		&code.CodeHash,
		&code.ExpiresAt,
		&code.LastSentAt,
		&code.Attempts,
		&code.Verified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.EmailVerificationCode{}, ErrNotFound
		}
		return types.EmailVerificationCode{}, err
	}
	return code, nil
}

// IncrementAttempts bumps the failed-attempt counter atomically and returns
// the new value.
func (r *EmailCodeRepository) IncrementAttempts(ctx context.Context, email string) (int, error) {
	const query = `
		UPDATE email_verification_codes
		SET attempts = attempts + 1
		WHERE email = lower($1)
		RETURNING attempts`
	var attempts int
	err := r.db.QueryRowContext(ctx, query, email).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// MarkVerified flags the code as consumed and clears the attempt counter.
func (r *EmailCodeRepository) MarkVerified(ctx context.Context, email string) error {
	const query = `
		UPDATE email_verification_codes
		SET verified = TRUE, attempts = 0
		WHERE email = lower($1)`
	result, err := r.db.ExecContext(ctx, query, email)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
