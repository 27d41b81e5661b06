package services

import (
	"context"

	"github.com/rs/zerolog"
)

// NotifyRenderer produces the bodies of the letter-activity mails.
type NotifyRenderer interface {
	LetterReceived(nickname, letterTitle string) (subject, html string)
	ReplyReceived(nickname, letterTitle string) (subject, html string)
}

// NotifyService sends letter-activity mail to users who verified their
// email and opted in. Delivery is best effort: every failure is logged and
// swallowed so letter operations never fail on mail trouble.
type NotifyService struct {
	users  UserRepository
	mailer Mailer
	render NotifyRenderer
	log    zerolog.Logger
}

func NewNotifyService(users UserRepository, mailer Mailer, render NotifyRenderer, log zerolog.Logger) *NotifyService {
	return &NotifyService{users: users, mailer: mailer, render: render, log: log}
}

// LetterReceived tells a user a new letter arrived.
func (s *NotifyService) LetterReceived(ctx context.Context, userID int, letterTitle string) {
	s.send(ctx, userID, letterTitle, s.render.LetterReceived)
}

// ReplyReceived tells a user their letter got a reply.
func (s *NotifyService) ReplyReceived(ctx context.Context, userID int, letterTitle string) {
	s.send(ctx, userID, letterTitle, s.render.ReplyReceived)
}

func (s *NotifyService) send(ctx context.Context, userID int, letterTitle string, render func(string, string) (string, string)) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("notify: recipient lookup failed")
		return
	}
	if user.Email == "" || !user.EmailVerified || !user.EmailNotifyEnabled {
		return
	}

	subject, html := render(user.Nickname, letterTitle)
	if err := s.mailer.Send(ctx, user.Email, subject, html); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("notify: mail send failed")
	}
}
