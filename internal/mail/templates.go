package mail

import (
	"fmt"
	"html"
	"time"
)

// Templates renders the transactional mail bodies. All user-supplied values
// are HTML-escaped before interpolation.
type Templates struct{}

func NewTemplates() Templates {
	return Templates{}
}

// VerificationCode renders the signup code mail.
func (Templates) VerificationCode(code string, ttl time.Duration) (subject, body string) {
	subject = "Your Mind Voyage verification code"
	body = fmt.Sprintf(
		"<p>Your verification code is:</p>"+
			"<p style=\"font-size:24px;font-weight:bold;letter-spacing:4px\">%s</p>"+
			"<p>The code expires in %d minutes.</p>",
		html.EscapeString(code), int(ttl.Minutes()),
	)
	return subject, body
}

// VerificationLink renders the email verification link mail.
func (Templates) VerificationLink(nickname, link string) (subject, body string) {
	subject = "Verify your Mind Voyage email"
	body = fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>Please verify your email address by clicking the link below:</p>"+
			"<p><a href=\"%s\">Verify my email</a></p>"+
			"<p>If you did not sign up, you can ignore this mail.</p>",
		html.EscapeString(nickname), html.EscapeString(link),
	)
	return subject, body
}

// LetterReceived renders the new-letter notification mail.
func (Templates) LetterReceived(nickname, letterTitle string) (subject, body string) {
	subject = "A new letter has arrived"
	body = fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>A new letter titled <strong>%s</strong> is waiting for you.</p>",
		html.EscapeString(nickname), html.EscapeString(letterTitle),
	)
	return subject, body
}

// ReplyReceived renders the reply notification mail.
func (Templates) ReplyReceived(nickname, letterTitle string) (subject, body string) {
	subject = "Your letter got a reply"
	body = fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>Your letter <strong>%s</strong> received a reply.</p>",
		html.EscapeString(nickname), html.EscapeString(letterTitle),
	)
	return subject, body
}
