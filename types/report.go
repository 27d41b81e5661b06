package types

import "time"

// LetterTopic is one LLM topic classification result.
type LetterTopic struct {
	Content string `json:"content"`
	Topic   string `json:"topic"`
}

// LetterEmotions is one LLM emotion classification result.
type LetterEmotions struct {
	Content  string   `json:"content"`
	Emotions []string `json:"emotions"`
}

// MonthlyReport is the assembled emotional report for one user and month.
type MonthlyReport struct {
	Nickname             string           `json:"nickname"`
	Year                 int              `json:"year"`
	Month                int              `json:"month"`
	LettersCount         int              `json:"letters_count"`
	RepliesCount         int              `json:"replies_count"`
	RepliedCount         int              `json:"replied_count"`
	LastMonthLetters     int              `json:"last_month_letters"`
	Topics               []LetterTopic    `json:"topics"`
	SelectedEmotionCount map[string]int   `json:"selected_emotion_count"`
	AIEmotions           []LetterEmotions `json:"ai_emotions"`
	AIComment            string           `json:"ai_comment"`
	UserComment          string           `json:"user_comment,omitempty"`
}

// ReportComment is the user's own reflection on a month, stored per
// (user, year, month).
type ReportComment struct {
	UserID    int       `json:"user_id" db:"user_id"`
	Year      int       `json:"year" db:"year"`
	Month     int       `json:"month" db:"month"`
	Comment   string    `json:"comment" db:"comment"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
