package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindvoyage/apiserver/internal/store"
	"github.com/mindvoyage/apiserver/types"
)

type fakeSatisfactionRepo struct {
	rows   []types.Satisfaction
	nextID int
}

func newFakeSatisfactionRepo() *fakeSatisfactionRepo {
	return &fakeSatisfactionRepo{nextID: 1}
}

func (f *fakeSatisfactionRepo) Create(_ context.Context, sat types.Satisfaction) (types.Satisfaction, error) {
	for _, row := range f.rows {
		if row.LetterID == sat.LetterID && row.CreatedBy == sat.CreatedBy && row.Phase == sat.Phase {
			return types.Satisfaction{}, store.ErrConflict
		}
	}
	sat.ID = f.nextID
	f.nextID++
	sat.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, sat)
	return sat, nil
}

func (f *fakeSatisfactionRepo) Exists(_ context.Context, letterID, createdBy int, phase string) (bool, error) {
	for _, row := range f.rows {
		if row.LetterID == letterID && row.CreatedBy == createdBy && row.Phase == phase {
			return true, nil
		}
	}
	return false, nil
}

func satisfactionFixture(t *testing.T) (*SatisfactionService, types.Letter) {
	t.Helper()
	letters := newFakeLetterRepo()
	letter, err := letters.Create(context.Background(), types.Letter{
		FromID: 1, ToID: 2, Title: "t", Content: "c", Status: types.LetterStatusSent,
	})
	require.NoError(t, err)
	return NewSatisfactionService(newFakeSatisfactionRepo(), letters), letter
}

func TestSubmitSatisfaction(t *testing.T) {
	svc, letter := satisfactionFixture(t)

	sat, err := svc.Submit(context.Background(), 1, letter.ID, 4, "it helped")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAfterLetter, sat.Phase)
	assert.Equal(t, 4, sat.Rating)
	assert.Equal(t, 1, sat.CreatedBy)
}

func TestSubmitSatisfactionOncePerLetter(t *testing.T) {
	svc, letter := satisfactionFixture(t)

	_, err := svc.Submit(context.Background(), 1, letter.ID, 4, "it helped")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), 1, letter.ID, 5, "changed my mind")
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestSubmitSatisfactionOnlyByAuthor(t *testing.T) {
	svc, letter := satisfactionFixture(t)

	_, err := svc.Submit(context.Background(), 2, letter.ID, 4, "it helped")
	assert.Equal(t, KindForbidden, kindOf(t, err))
}

func TestSubmitSatisfactionValidation(t *testing.T) {
	svc, letter := satisfactionFixture(t)

	_, err := svc.Submit(context.Background(), 1, letter.ID, 0, "reason")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Submit(context.Background(), 1, letter.ID, 6, "reason")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Submit(context.Background(), 1, letter.ID, 3, "")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Submit(context.Background(), 1, 999, 3, "reason")
	assert.Equal(t, KindNotFound, kindOf(t, err))
}
