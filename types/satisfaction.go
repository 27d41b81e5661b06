package types

import "time"

// PhaseAfterLetter is the survey phase recorded for post-letter ratings.
const PhaseAfterLetter = "after_letter"

// Satisfaction is a user's rating of a letter exchange.
type Satisfaction struct {
	ID        int       `json:"id" db:"id"`
	LetterID  int       `json:"letter_id" db:"letter_id"`
	Rating    int       `json:"rating" db:"rating"`
	Reason    string    `json:"reason" db:"reason"`
	Phase     string    `json:"phase" db:"phase"`
	CreatedBy int       `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
