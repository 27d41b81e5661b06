package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mindvoyage/apiserver/types"
)

// AttendanceRepository persists one row per user whose days column is a
// JSONB map of local date strings to DayBlocks.
type AttendanceRepository struct {
	db *sql.DB
}

func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// markQuery merges one action into the user's DayBlock for the given date in
// a single server-evaluated upsert, so concurrent logins cannot lose updates:
// attended is forced true, the action joins the actions set, its counter is
// incremented, first_action_at is written only when the day has none yet and
// last_action_at is overwritten unconditionally.
const markQuery = `
	INSERT INTO attendance (user_id, days, updated_at)
	VALUES ($1, jsonb_build_object($2::text, jsonb_build_object(
			'attended', true,
			'actions', jsonb_build_array($3::text),
			'counts', jsonb_build_object($3::text, 1),
			'first_action_at', to_jsonb($4::text),
			'last_action_at', to_jsonb($4::text))), now())
	ON CONFLICT (user_id) DO UPDATE
	SET days = jsonb_set(attendance.days, ARRAY[$2::text], jsonb_build_object(
			'attended', true,
			'actions', CASE
				WHEN COALESCE(attendance.days #> ARRAY[$2::text, 'actions'], '[]'::jsonb) ? $3::text
					THEN attendance.days #> ARRAY[$2::text, 'actions']
				ELSE COALESCE(attendance.days #> ARRAY[$2::text, 'actions'], '[]'::jsonb) || jsonb_build_array($3::text)
			END,
			'counts', jsonb_set(
				COALESCE(attendance.days #> ARRAY[$2::text, 'counts'], '{}'::jsonb),
				ARRAY[$3::text],
				to_jsonb(COALESCE((attendance.days #>> ARRAY[$2::text, 'counts', $3::text])::int, 0) + 1)),
			'first_action_at', COALESCE(
				attendance.days #> ARRAY[$2::text, 'first_action_at'],
				to_jsonb($4::text)),
			'last_action_at', to_jsonb($4::text))),
		updated_at = now()
	RETURNING (days #>> ARRAY[$2::text, 'counts', $3::text])::int`

// Mark records one occurrence of action on the given local date and returns
// the post-increment counter for that action (1 means first mark of the day).
func (r *AttendanceRepository) Mark(ctx context.Context, userID int, date, action string, at time.Time) (int, error) {
	stamp := at.UTC().Format(time.RFC3339Nano)
	var count int
	if err := r.db.QueryRowContext(ctx, markQuery, userID, date, action, stamp).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetDays returns the user's full day map, or an empty map when the user has
// never attended.
func (r *AttendanceRepository) GetDays(ctx context.Context, userID int) (types.DayMap, error) {
	const query = `SELECT days FROM attendance WHERE user_id = $1`
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.DayMap{}, nil
		}
		return nil, err
	}

	days := types.DayMap{}
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, err
	}
	return days, nil
}

// GetDay returns the DayBlock for one local date. The second return value
// reports whether the date has a block at all.
func (r *AttendanceRepository) GetDay(ctx context.Context, userID int, date string) (types.DayBlock, bool, error) {
	const query = `SELECT days #> ARRAY[$2::text] FROM attendance WHERE user_id = $1`
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, userID, date).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.DayBlock{}, false, nil
		}
		return types.DayBlock{}, false, err
	}
	if raw == nil {
		return types.DayBlock{}, false, nil
	}

	var block types.DayBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return types.DayBlock{}, false, err
	}
	return block, true, nil
}
