package mail

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemplatesEscapeUserInput(t *testing.T) {
	templates := NewTemplates()

	_, body := templates.LetterReceived(`<script>alert(1)</script>`, `"quoted" & <b>title</b>`)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "&amp;")
}

func TestVerificationCodeMentionsExpiry(t *testing.T) {
	templates := NewTemplates()

	subject, body := templates.VerificationCode("123456", 10*time.Minute)
	assert.NotEmpty(t, subject)
	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "10 minutes")
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("noreply@mindvoyage.io", "user@example.com", "Hello", "<p>Hi</p>")

	header, body, found := strings.Cut(msg, "\r\n\r\n")
	assert.True(t, found)
	assert.Contains(t, header, "From: noreply@mindvoyage.io")
	assert.Contains(t, header, "To: user@example.com")
	assert.Contains(t, header, "Subject: Hello")
	assert.Contains(t, header, "Content-Type: text/html; charset=UTF-8")
	assert.Equal(t, "<p>Hi</p>", body)
}
