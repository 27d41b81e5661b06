package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mindvoyage/apiserver/types"
)

const userColumns = `
	id, nickname, email, password_hash, age, gender, status, address, phone,
	point, level, limited_access, email_verified, email_verified_at,
	email_notify_enabled, token_version, password_updated_at,
	last_verification_sent_at, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByNickname(ctx context.Context, nickname string) (types.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE nickname = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, nickname))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// NicknameTaken reports whether another account already uses the nickname.
// Pass excludeID = 0 when checking for a brand new account.
func (r *UserRepository) NicknameTaken(ctx context.Context, nickname string, excludeID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE nickname = $1 AND id <> $2)`
	var taken bool
	if err := r.db.QueryRowContext(ctx, query, nickname, excludeID).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// EmailTaken reports whether another account already uses the email.
func (r *UserRepository) EmailTaken(ctx context.Context, email string, excludeID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`
	var taken bool
	if err := r.db.QueryRowContext(ctx, query, email, excludeID).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// Create inserts the user. Unique-index violations on nickname or email
// surface as ErrConflict; the index is the authoritative uniqueness guard,
// the service-level pre-checks only produce friendlier messages.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (
			nickname, email, password_hash, age, gender, status, address, phone,
			point, level, limited_access, email_verified, email_verified_at,
			email_notify_enabled, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Nickname,
		user.Email,
		user.PasswordHash,
		user.Age,
		user.Gender,
		user.Status,
		user.Address,
		user.Phone,
		user.Point,
		user.Level,
		user.LimitedAccess,
		user.EmailVerified,
		user.EmailVerifiedAt,
		user.EmailNotifyEnabled,
		user.TokenVersion,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		return types.User{}, asStoreError(err)
	}
	return user, nil
}

// ProfilePatch carries the whitelisted partial-update fields. Nil pointers
// leave the column untouched.
type ProfilePatch struct {
	Nickname           *string
	Status             *string
	Email              *string
	Address            *string
	Phone              *string
	EmailNotifyEnabled *bool
}

// Empty reports whether the patch updates nothing.
func (p ProfilePatch) Empty() bool {
	return p.Nickname == nil && p.Status == nil && p.Email == nil &&
		p.Address == nil && p.Phone == nil && p.EmailNotifyEnabled == nil
}

// UpdateProfile applies the patch and returns the updated row.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int, patch ProfilePatch) (types.User, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Nickname != nil {
		add("nickname", *patch.Nickname)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Address != nil {
		add("address", *patch.Address)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.EmailNotifyEnabled != nil {
		add("email_notify_enabled", *patch.EmailNotifyEnabled)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING`+userColumns,
		strings.Join(sets, ", "), len(args),
	)
	user, err := r.scanOne(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return types.User{}, asStoreError(err)
	}
	return user, nil
}

// UpdatePassword stores a new hash, stamps password_updated_at and bumps
// token_version so outstanding session tokens stop validating.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	now := time.Now().UTC()
	const query = `
		UPDATE users
		SET password_hash = $1,
			password_updated_at = $2,
			token_version = token_version + 1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, hash, now, id)
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

// MarkEmailVerified flips the account to verified. It reports whether this
// call performed the unverified-to-verified transition, so one-time side
// effects run exactly once.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id int, at time.Time) (bool, error) {
	const query = `
		UPDATE users
		SET email_verified = TRUE,
			email_verified_at = $1,
			updated_at = $1
		WHERE id = $2 AND email_verified = FALSE`
	result, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TouchVerificationSentAt records when the last verification mail went out,
// backing the resend cooldown.
func (r *UserRepository) TouchVerificationSentAt(ctx context.Context, id int, at time.Time) error {
	const query = `UPDATE users SET last_verification_sent_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	return err
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Nickname,
		&user.Email,
		&user.PasswordHash,
		&user.Age,
		&user.Gender,
		&user.Status,
		&user.Address,
		&user.Phone,
		&user.Point,
		&user.Level,
		&user.LimitedAccess,
		&user.EmailVerified,
		&user.EmailVerifiedAt,
		&user.EmailNotifyEnabled,
		&user.TokenVersion,
		&user.PasswordUpdatedAt,
		&user.LastVerificationSentAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
