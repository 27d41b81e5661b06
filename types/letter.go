package types

import "time"

// Letter statuses as stored.
const (
	LetterStatusSent    = "sent"
	LetterStatusReplied = "replied"
)

// Letter is an anonymous letter exchanged between two users.
type Letter struct {
	ID        int       `json:"id" db:"id"`
	FromID    int       `json:"from_id" db:"from_id"`
	ToID      int       `json:"to_id" db:"to_id"`
	Title     string    `json:"title" db:"title"`
	Emotion   string    `json:"emotion" db:"emotion"`
	Content   string    `json:"content" db:"content"`
	Status    string    `json:"status" db:"status"`
	Saved     bool      `json:"saved" db:"saved"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MonthlyLetterStat is one bucket of the per-month letter aggregation.
type MonthlyLetterStat struct {
	Year         int `json:"year" db:"year"`
	Month        int `json:"month" db:"month"`
	LettersCount int `json:"letters_count" db:"letters_count"`
}
