package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mindvoyage/apiserver/types"
)

// LetterRepository covers the letter operations the core needs: the welcome
// letter side effect and the monthly report queries.
type LetterRepository struct {
	db *sql.DB
}

func NewLetterRepository(db *sql.DB) *LetterRepository {
	return &LetterRepository{db: db}
}

func (r *LetterRepository) Create(ctx context.Context, letter types.Letter) (types.Letter, error) {
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO letters (from_id, to_id, title, emotion, content, status, saved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		letter.FromID,
		letter.ToID,
		letter.Title,
		letter.Emotion,
		letter.Content,
		letter.Status,
		letter.Saved,
		letter.CreatedAt,
	).Scan(&letter.ID)
	if err != nil {
		return types.Letter{}, err
	}
	return letter, nil
}

func (r *LetterRepository) GetByID(ctx context.Context, id int) (types.Letter, error) {
	const query = `
		SELECT id, from_id, to_id, title, emotion, content, status, saved, created_at
		FROM letters
		WHERE id = $1`
	var letter types.Letter
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&letter.ID,
		&letter.FromID,
		&letter.ToID,
		&letter.Title,
		&letter.Emotion,
		&letter.Content,
		&letter.Status,
		&letter.Saved,
		&letter.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Letter{}, ErrNotFound
		}
		return types.Letter{}, err
	}
	return letter, nil
}

// MarkReplied flips a letter to the replied status.
func (r *LetterRepository) MarkReplied(ctx context.Context, id int) error {
	const query = `UPDATE letters SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, types.LetterStatusReplied, id)
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

// CreateComment stores a reply to a letter.
func (r *LetterRepository) CreateComment(ctx context.Context, letterID, fromID int, content string) error {
	const query = `
		INSERT INTO comments (letter_id, from_id, content, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, letterID, fromID, content, time.Now().UTC())
	return err
}

// ListByAuthorBetween returns letters written by the user in [from, to).
func (r *LetterRepository) ListByAuthorBetween(ctx context.Context, authorID int, from, to time.Time) ([]types.Letter, error) {
	const query = `
		SELECT id, from_id, to_id, title, emotion, content, status, saved, created_at
		FROM letters
		WHERE from_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, authorID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []types.Letter
	for rows.Next() {
		var letter types.Letter
		if err := rows.Scan(
			&letter.ID,
			&letter.FromID,
			&letter.ToID,
			&letter.Title,
			&letter.Emotion,
			&letter.Content,
			&letter.Status,
			&letter.Saved,
			&letter.CreatedAt,
		); err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}

// CountByAuthorBetween counts letters written by the user in [from, to).
func (r *LetterRepository) CountByAuthorBetween(ctx context.Context, authorID int, from, to time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM letters
		WHERE from_id = $1 AND created_at >= $2 AND created_at < $3`
	var count int
	if err := r.db.QueryRowContext(ctx, query, authorID, from.UTC(), to.UTC()).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountRepliedBetween counts the user's letters that received a reply in
// [from, to).
func (r *LetterRepository) CountRepliedBetween(ctx context.Context, authorID int, from, to time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM letters
		WHERE from_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4`
	var count int
	err := r.db.QueryRowContext(ctx, query, authorID, types.LetterStatusReplied, from.UTC(), to.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountRepliesByAuthorBetween counts replies the user wrote in [from, to).
func (r *LetterRepository) CountRepliesByAuthorBetween(ctx context.Context, authorID int, from, to time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM comments
		WHERE from_id = $1 AND created_at >= $2 AND created_at < $3`
	var count int
	if err := r.db.QueryRowContext(ctx, query, authorID, from.UTC(), to.UTC()).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MonthlyStats aggregates the user's letter volume per calendar month,
// oldest first.
func (r *LetterRepository) MonthlyStats(ctx context.Context, authorID int) ([]types.MonthlyLetterStat, error) {
	const query = `
		SELECT EXTRACT(YEAR FROM created_at)::int AS year,
			EXTRACT(MONTH FROM created_at)::int AS month,
			COUNT(*)::int AS letters_count
		FROM letters
		WHERE from_id = $1
		GROUP BY 1, 2
		ORDER BY 1, 2`
	rows, err := r.db.QueryContext(ctx, query, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []types.MonthlyLetterStat
	for rows.Next() {
		var stat types.MonthlyLetterStat
		if err := rows.Scan(&stat.Year, &stat.Month, &stat.LettersCount); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
