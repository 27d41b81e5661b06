package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindvoyage/apiserver/types"
)

type notifyRender struct{}

func (notifyRender) LetterReceived(nickname, _ string) (string, string) {
	return "letter", nickname
}

func (notifyRender) ReplyReceived(nickname, _ string) (string, string) {
	return "reply", nickname
}

func TestNotifyRespectsConsentAndVerification(t *testing.T) {
	users := newFakeUserRepo()
	mailer := &fakeMailer{}
	svc := NewNotifyService(users, mailer, notifyRender{}, zerolog.Nop())
	ctx := context.Background()

	optedIn, err := users.Create(ctx, types.User{
		Nickname: "a", Email: "a@example.com", EmailVerified: true, EmailNotifyEnabled: true,
	})
	require.NoError(t, err)
	optedOut, err := users.Create(ctx, types.User{
		Nickname: "b", Email: "b@example.com", EmailVerified: true,
	})
	require.NoError(t, err)
	unverified, err := users.Create(ctx, types.User{
		Nickname: "c", Email: "c@example.com", EmailNotifyEnabled: true,
	})
	require.NoError(t, err)
	noEmail, err := users.Create(ctx, types.User{
		Nickname: "d", EmailVerified: true, EmailNotifyEnabled: true,
	})
	require.NoError(t, err)

	svc.LetterReceived(ctx, optedIn.ID, "t")
	svc.LetterReceived(ctx, optedOut.ID, "t")
	svc.ReplyReceived(ctx, unverified.ID, "t")
	svc.ReplyReceived(ctx, noEmail.ID, "t")
	svc.LetterReceived(ctx, 999, "t")

	assert.Equal(t, []string{"a@example.com"}, mailer.sent)
}

func TestNotifySwallowsMailFailure(t *testing.T) {
	users := newFakeUserRepo()
	mailer := &fakeMailer{fail: true}
	svc := NewNotifyService(users, mailer, notifyRender{}, zerolog.Nop())
	ctx := context.Background()

	user, err := users.Create(ctx, types.User{
		Nickname: "a", Email: "a@example.com", EmailVerified: true, EmailNotifyEnabled: true,
	})
	require.NoError(t, err)

	// Must not panic or propagate.
	svc.LetterReceived(ctx, user.ID, "t")
	assert.Empty(t, mailer.sent)
}
