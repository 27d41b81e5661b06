package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mindvoyage/apiserver/types"
)

// ReportRepository stores the user's own monthly reflection comments,
// one row per (user, year, month).
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// UpsertComment creates or replaces the reflection comment for the month.
func (r *ReportRepository) UpsertComment(ctx context.Context, userID, year, month int, comment string) error {
	const query = `
		INSERT INTO report_comments (user_id, year, month, comment, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, year, month) DO UPDATE
		SET comment = EXCLUDED.comment,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query, userID, year, month, comment, time.Now().UTC())
	return err
}

// GetComment returns the stored reflection comment for the month.
func (r *ReportRepository) GetComment(ctx context.Context, userID, year, month int) (types.ReportComment, error) {
	const query = `
		SELECT user_id, year, month, comment, updated_at
		FROM report_comments
		WHERE user_id = $1 AND year = $2 AND month = $3`
	var comment types.ReportComment
	err := r.db.QueryRowContext(ctx, query, userID, year, month).Scan(
		&comment.UserID,
		&comment.Year,
		&comment.Month,
		&comment.Comment,
		&comment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ReportComment{}, ErrNotFound
		}
		return types.ReportComment{}, err
	}
	return comment, nil
}
