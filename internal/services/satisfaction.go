package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/mindvoyage/apiserver/internal/store"
	"github.com/mindvoyage/apiserver/types"
)

// SatisfactionRepository persists post-letter survey answers.
type SatisfactionRepository interface {
	Create(ctx context.Context, sat types.Satisfaction) (types.Satisfaction, error)
	Exists(ctx context.Context, letterID, createdBy int, phase string) (bool, error)
}

// SatisfactionService records one survey answer per (letter, user, phase).
type SatisfactionService struct {
	repo    SatisfactionRepository
	letters LetterRepository
}

func NewSatisfactionService(repo SatisfactionRepository, letters LetterRepository) *SatisfactionService {
	return &SatisfactionService{repo: repo, letters: letters}
}

// Submit validates and stores a rating. Only the letter's author may rate
// their own exchange, and at most once per phase.
func (s *SatisfactionService) Submit(ctx context.Context, userID, letterID, rating int, reason string) (types.Satisfaction, error) {
	if rating < 1 || rating > 5 {
		return types.Satisfaction{}, validationErr("rating must be between 1 and 5")
	}
	if reason == "" {
		return types.Satisfaction{}, validationErr("reason is required")
	}

	letter, err := s.letters.GetByID(ctx, letterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Satisfaction{}, notFoundErr("letter not found")
		}
		return types.Satisfaction{}, fmt.Errorf("load letter: %w", err)
	}
	if letter.FromID != userID {
		return types.Satisfaction{}, forbiddenErr("only the letter's author can rate it")
	}

	taken, err := s.repo.Exists(ctx, letterID, userID, types.PhaseAfterLetter)
	if err != nil {
		return types.Satisfaction{}, fmt.Errorf("check existing rating: %w", err)
	}
	if taken {
		return types.Satisfaction{}, conflictErr("this letter has already been rated")
	}

	sat, err := s.repo.Create(ctx, types.Satisfaction{
		LetterID:  letterID,
		Rating:    rating,
		Reason:    reason,
		Phase:     types.PhaseAfterLetter,
		CreatedBy: userID,
	})
	if err != nil {
		// Duplicate insert racing the pre-check still lands on the unique
		// index.
		if errors.Is(err, store.ErrConflict) {
			return types.Satisfaction{}, conflictErr("this letter has already been rated")
		}
		return types.Satisfaction{}, fmt.Errorf("create rating: %w", err)
	}
	return sat, nil
}
