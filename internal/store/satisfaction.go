package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mindvoyage/apiserver/types"
)

// SatisfactionRepository persists survey submissions. A unique index over
// (letter_id, created_by, phase) rejects duplicate submissions.
type SatisfactionRepository struct {
	db *sql.DB
}

func NewSatisfactionRepository(db *sql.DB) *SatisfactionRepository {
	return &SatisfactionRepository{db: db}
}

// Create inserts the submission; a duplicate surfaces as ErrConflict.
func (r *SatisfactionRepository) Create(ctx context.Context, record types.Satisfaction) (types.Satisfaction, error) {
	record.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO satisfactions (letter_id, rating, reason, phase, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		record.LetterID,
		record.Rating,
		record.Reason,
		record.Phase,
		record.CreatedBy,
		record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		return types.Satisfaction{}, asStoreError(err)
	}
	return record, nil
}

// Exists reports whether the user already rated the letter in this phase.
func (r *SatisfactionRepository) Exists(ctx context.Context, letterID, createdBy int, phase string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM satisfactions
			WHERE letter_id = $1 AND created_by = $2 AND phase = $3)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, letterID, createdBy, phase).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
