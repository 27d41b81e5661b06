package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindvoyage/apiserver/internal/store"
	"github.com/mindvoyage/apiserver/types"
)

// LetterRepository defines the letter persistence the core needs.
type LetterRepository interface {
	Create(ctx context.Context, letter types.Letter) (types.Letter, error)
	GetByID(ctx context.Context, id int) (types.Letter, error)
	MarkReplied(ctx context.Context, id int) error
	CreateComment(ctx context.Context, letterID, fromID int, content string) error
	ListByAuthorBetween(ctx context.Context, authorID int, from, to time.Time) ([]types.Letter, error)
	CountByAuthorBetween(ctx context.Context, authorID int, from, to time.Time) (int, error)
	CountRepliedBetween(ctx context.Context, authorID int, from, to time.Time) (int, error)
	CountRepliesByAuthorBetween(ctx context.Context, authorID int, from, to time.Time) (int, error)
	MonthlyStats(ctx context.Context, authorID int) ([]types.MonthlyLetterStat, error)
}

// Notifier sends best-effort notification mail about letter activity.
type Notifier interface {
	LetterReceived(ctx context.Context, userID int, letterTitle string)
	ReplyReceived(ctx context.Context, userID int, letterTitle string)
}

const (
	welcomeTitle   = "A letter from an anonymous sailor"
	welcomeEmotion = "sadness"
	welcomeContent = "I had a big falling-out with a friend I thought I was really close to. " +
		"I believed they were a good friend, but it seems I was wrong. " +
		"Can a friendship never last forever?"
)

// LetterService owns the welcome-letter side effect and the thin letter
// operations the rest of the system leans on.
type LetterService struct {
	repo            LetterRepository
	notify          Notifier
	welcomeSenderID int
	log             zerolog.Logger
}

func NewLetterService(repo LetterRepository, notify Notifier, welcomeSenderID int, log zerolog.Logger) *LetterService {
	return &LetterService{
		repo:            repo,
		notify:          notify,
		welcomeSenderID: welcomeSenderID,
		log:             log,
	}
}

// DeliverWelcome drops the onboarding letter into a fresh account's inbox.
// Runs exactly once per account, on the signup-completion transition.
func (s *LetterService) DeliverWelcome(ctx context.Context, toUserID int) error {
	_, err := s.repo.Create(ctx, types.Letter{
		FromID:  s.welcomeSenderID,
		ToID:    toUserID,
		Title:   welcomeTitle,
		Emotion: welcomeEmotion,
		Content: welcomeContent,
		Status:  types.LetterStatusSent,
	})
	return err
}

// Send stores a letter and notifies the recipient.
func (s *LetterService) Send(ctx context.Context, fromID, toID int, title, emotion, content string) (types.Letter, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return types.Letter{}, validationErr("title and content are required")
	}
	if toID == fromID {
		return types.Letter{}, validationErr("cannot send a letter to yourself")
	}

	letter, err := s.repo.Create(ctx, types.Letter{
		FromID:  fromID,
		ToID:    toID,
		Title:   title,
		Emotion: strings.TrimSpace(emotion),
		Content: content,
		Status:  types.LetterStatusSent,
	})
	if err != nil {
		return types.Letter{}, fmt.Errorf("create letter: %w", err)
	}

	if s.notify != nil {
		s.notify.LetterReceived(ctx, toID, letter.Title)
	}
	return letter, nil
}

// Reply records a reply by the letter's recipient, marks the letter replied
// and notifies the original author.
func (s *LetterService) Reply(ctx context.Context, letterID, authorID int, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return validationErr("content is required")
	}

	letter, err := s.repo.GetByID(ctx, letterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundErr("letter not found")
		}
		return fmt.Errorf("load letter: %w", err)
	}
	if letter.ToID != authorID {
		return forbiddenErr("only the recipient can reply to a letter")
	}

	if err := s.repo.CreateComment(ctx, letterID, authorID, content); err != nil {
		return fmt.Errorf("create reply: %w", err)
	}
	if err := s.repo.MarkReplied(ctx, letterID); err != nil {
		return fmt.Errorf("mark replied: %w", err)
	}

	if s.notify != nil {
		s.notify.ReplyReceived(ctx, letter.FromID, letter.Title)
	}
	return nil
}
