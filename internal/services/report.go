package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindvoyage/apiserver/internal/store"
	"github.com/mindvoyage/apiserver/types"
)

// Completer is the LLM boundary. Latency is unpredictable and the output
// may be malformed; callers parse defensively.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

// ReportArchiver persists a generated report snapshot to object storage.
type ReportArchiver interface {
	Archive(ctx context.Context, userID, year, month int, report types.MonthlyReport) error
}

// ReportCommentRepository stores the user's monthly reflection comments.
type ReportCommentRepository interface {
	UpsertComment(ctx context.Context, userID, year, month int, comment string) error
	GetComment(ctx context.Context, userID, year, month int) (types.ReportComment, error)
}

// ReportService assembles the monthly emotional report.
type ReportService struct {
	letters  LetterRepository
	comments ReportCommentRepository
	llm      Completer
	archiver ReportArchiver
	log      zerolog.Logger
	now      func() time.Time
}

func NewReportService(
	letters LetterRepository,
	comments ReportCommentRepository,
	llm Completer,
	archiver ReportArchiver,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		letters:  letters,
		comments: comments,
		llm:      llm,
		archiver: archiver,
		log:      log,
		now:      time.Now,
	}
}

// Monthly builds the report for one user and month. LLM failures degrade to
// empty classifications rather than failing the report.
func (s *ReportService) Monthly(ctx context.Context, user types.User, year, month int) (types.MonthlyReport, error) {
	if year == 0 && month == 0 {
		now := s.now().UTC()
		year, month = now.Year(), int(now.Month())
	}
	if month < 1 || month > 12 {
		return types.MonthlyReport{}, validationErr("month must be between 1 and 12")
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	prevStart := start.AddDate(0, -1, 0)

	letters, err := s.letters.ListByAuthorBetween(ctx, user.ID, start, end)
	if err != nil {
		return types.MonthlyReport{}, fmt.Errorf("list letters: %w", err)
	}
	repliesCount, err := s.letters.CountRepliesByAuthorBetween(ctx, user.ID, start, end)
	if err != nil {
		return types.MonthlyReport{}, fmt.Errorf("count replies: %w", err)
	}
	repliedCount, err := s.letters.CountRepliedBetween(ctx, user.ID, start, end)
	if err != nil {
		return types.MonthlyReport{}, fmt.Errorf("count replied: %w", err)
	}
	prevCount, err := s.letters.CountByAuthorBetween(ctx, user.ID, prevStart, start)
	if err != nil {
		return types.MonthlyReport{}, fmt.Errorf("count previous month: %w", err)
	}

	contents := make([]string, 0, len(letters))
	emotionCount := map[string]int{}
	for _, letter := range letters {
		contents = append(contents, letter.Content)
		if letter.Emotion != "" {
			emotionCount[letter.Emotion]++
		}
	}

	report := types.MonthlyReport{
		Nickname:             user.Nickname,
		Year:                 year,
		Month:                month,
		LettersCount:         len(letters),
		RepliesCount:         repliesCount,
		RepliedCount:         repliedCount,
		LastMonthLetters:     prevCount,
		Topics:               []types.LetterTopic{},
		SelectedEmotionCount: emotionCount,
		AIEmotions:           []types.LetterEmotions{},
	}

	if s.llm != nil {
		if len(contents) > 0 {
			report.Topics = s.classifyTopics(ctx, contents)
			report.AIEmotions = s.classifyEmotions(ctx, contents)
		}
		report.AIComment = s.summarize(ctx, report)
	}

	if comment, err := s.comments.GetComment(ctx, user.ID, year, month); err == nil {
		report.UserComment = comment.Comment
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.MonthlyReport{}, fmt.Errorf("load comment: %w", err)
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, user.ID, year, month, report); err != nil {
			s.log.Warn().Err(err).Int("user_id", user.ID).Msg("report archive failed")
		}
	}
	return report, nil
}

// MonthlyStats returns the per-month letter volume across the user's whole
// history.
func (s *ReportService) MonthlyStats(ctx context.Context, userID int) ([]types.MonthlyLetterStat, error) {
	stats, err := s.letters.MonthlyStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("monthly stats: %w", err)
	}
	if stats == nil {
		stats = []types.MonthlyLetterStat{}
	}
	return stats, nil
}

// SaveComment upserts the user's reflection comment for the month.
func (s *ReportService) SaveComment(ctx context.Context, userID, year, month int, comment string) error {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return validationErr("comment is required")
	}
	if month < 1 || month > 12 {
		return validationErr("month must be between 1 and 12")
	}
	return s.comments.UpsertComment(ctx, userID, year, month, comment)
}

func (s *ReportService) classifyTopics(ctx context.Context, contents []string) []types.LetterTopic {
	prompt := "For each letter below, extract its core topic in one or two words. " +
		"Answer with a JSON array only: [{\"content\": \"...\", \"topic\": \"...\"}, ...]\n\n" +
		strings.Join(contents, "\n---\n")

	raw, err := s.llm.Complete(ctx, prompt, 0.3)
	if err != nil {
		s.log.Warn().Err(err).Msg("topic classification failed")
		return []types.LetterTopic{}
	}

	topics := []types.LetterTopic{}
	if payload := ExtractJSON(raw); payload != nil {
		if err := json.Unmarshal(payload, &topics); err != nil {
			return []types.LetterTopic{}
		}
	}
	return topics
}

func (s *ReportService) classifyEmotions(ctx context.Context, contents []string) []types.LetterEmotions {
	prompt := "Classify each letter below with one or more of " +
		"[joy, sadness, anger, anxiety, exhaustion, anticipation, confusion]. " +
		"Answer with a JSON array only: [{\"content\": \"...\", \"emotions\": [\"...\"]}, ...]\n\n" +
		strings.Join(contents, "\n---\n")

	raw, err := s.llm.Complete(ctx, prompt, 0.3)
	if err != nil {
		s.log.Warn().Err(err).Msg("emotion classification failed")
		return []types.LetterEmotions{}
	}

	emotions := []types.LetterEmotions{}
	if payload := ExtractJSON(raw); payload != nil {
		if err := json.Unmarshal(payload, &emotions); err != nil {
			return []types.LetterEmotions{}
		}
	}
	return emotions
}

func (s *ReportService) summarize(ctx context.Context, report types.MonthlyReport) string {
	prompt := fmt.Sprintf(
		"Activity summary for this month:\n"+
			"- %d letters written\n"+
			"- %d replies written\n"+
			"- %d letters received a reply\n"+
			"- chosen emotion distribution: %v\n"+
			"- %d letters written last month\n"+
			"Write one warm sentence summarizing this user's emotional activity.",
		report.LettersCount, report.RepliesCount, report.RepliedCount,
		report.SelectedEmotionCount, report.LastMonthLetters,
	)

	comment, err := s.llm.Complete(ctx, prompt, 0.7)
	if err != nil {
		s.log.Warn().Err(err).Msg("summary comment failed")
		return ""
	}
	return strings.TrimSpace(comment)
}

// ExtractJSON locates the first well-formed JSON array or object inside a
// model response that may wrap it in prose or code fences. Returns nil when
// nothing parseable is found.
func ExtractJSON(s string) []byte {
	for i := 0; i < len(s); i++ {
		open := s[i]
		if open != '[' && open != '{' {
			continue
		}

		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(s); j++ {
			c := s[j]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '[', '{':
				depth++
			case ']', '}':
				depth--
				if depth == 0 {
					candidate := []byte(s[i : j+1])
					if json.Valid(candidate) {
						return candidate
					}
					// Not valid JSON after all; keep scanning past the
					// opening bracket.
					j = len(s)
				}
			}
		}
	}
	return nil
}
