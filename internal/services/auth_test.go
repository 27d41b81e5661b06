package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindvoyage/apiserver/config"
	"github.com/mindvoyage/apiserver/internal/store"
	"github.com/mindvoyage/apiserver/types"
)

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByNickname(_ context.Context, nickname string) (types.User, error) {
	for _, user := range f.users {
		if user.Nickname == nickname {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) NicknameTaken(_ context.Context, nickname string, excludeID int) (bool, error) {
	for _, user := range f.users {
		if user.ID != excludeID && user.Nickname == nickname {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) EmailTaken(_ context.Context, email string, excludeID int) (bool, error) {
	for _, user := range f.users {
		if user.ID != excludeID && strings.EqualFold(user.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	user.ID = f.nextID
	f.nextID++
	user.Level = 1
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id int, patch store.ProfilePatch) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if patch.Nickname != nil {
		user.Nickname = *patch.Nickname
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Address != nil {
		user.Address = *patch.Address
	}
	if patch.Phone != nil {
		user.Phone = *patch.Phone
	}
	if patch.EmailNotifyEnabled != nil {
		user.EmailNotifyEnabled = *patch.EmailNotifyEnabled
	}
	f.users[id] = user
	return user, nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id int, hash string) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = hash
	user.TokenVersion++
	f.users[id] = user
	return nil
}

func (f *fakeUserRepo) MarkEmailVerified(_ context.Context, id int, at time.Time) (bool, error) {
	user, ok := f.users[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if user.EmailVerified {
		return false, nil
	}
	user.EmailVerified = true
	user.EmailVerifiedAt = &at
	f.users[id] = user
	return true, nil
}

func (f *fakeUserRepo) TouchVerificationSentAt(_ context.Context, id int, at time.Time) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastVerificationSentAt = &at
	f.users[id] = user
	return nil
}

type fakeCodeRepo struct {
	codes map[string]types.EmailVerificationCode
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{codes: map[string]types.EmailVerificationCode{}}
}

func (f *fakeCodeRepo) Upsert(_ context.Context, email, codeHash string, expiresAt, sentAt time.Time) error {
	f.codes[email] = types.EmailVerificationCode{
		Email:      email,
		CodeHash:   codeHash,
		ExpiresAt:  expiresAt,
		LastSentAt: sentAt,
	}
	return nil
}

func (f *fakeCodeRepo) Get(_ context.Context, email string) (types.EmailVerificationCode, error) {
	record, ok := f.codes[email]
	if !ok {
		return types.EmailVerificationCode{}, store.ErrNotFound
	}
	return record, nil
}

func (f *fakeCodeRepo) IncrementAttempts(_ context.Context, email string) (int, error) {
	record, ok := f.codes[email]
	if !ok {
		return 0, store.ErrNotFound
	}
	record.Attempts++
	f.codes[email] = record
	return record.Attempts, nil
}

func (f *fakeCodeRepo) MarkVerified(_ context.Context, email string) error {
	record, ok := f.codes[email]
	if !ok {
		return store.ErrNotFound
	}
	record.Verified = true
	f.codes[email] = record
	return nil
}

type fakeMailer struct {
	sent []string
	fail bool
}

func (f *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, to)
	return nil
}

// fakeRenderer captures the last code and link so tests can replay them.
type fakeRenderer struct {
	lastCode string
	lastLink string
}

func (f *fakeRenderer) VerificationCode(code string, _ time.Duration) (string, string) {
	f.lastCode = code
	return "code", code
}

func (f *fakeRenderer) VerificationLink(_, link string) (string, string) {
	f.lastLink = link
	return "verify", link
}

type fakeMarker struct {
	marks map[int]int
}

func (f *fakeMarker) Mark(_ context.Context, userID int) (bool, error) {
	if f.marks == nil {
		f.marks = map[int]int{}
	}
	f.marks[userID]++
	return f.marks[userID] == 1, nil
}

type fakeWelcome struct {
	delivered []int
}

func (f *fakeWelcome) DeliverWelcome(_ context.Context, toUserID int) error {
	f.delivered = append(f.delivered, toUserID)
	return nil
}

type authFixture struct {
	svc     *AuthService
	users   *fakeUserRepo
	codes   *fakeCodeRepo
	mailer  *fakeMailer
	render  *fakeRenderer
	welcome *fakeWelcome
	marker  *fakeMarker
}

func newAuthFixture() *authFixture {
	fx := &authFixture{
		users:   newFakeUserRepo(),
		codes:   newFakeCodeRepo(),
		mailer:  &fakeMailer{},
		render:  &fakeRenderer{},
		welcome: &fakeWelcome{},
		marker:  &fakeMarker{},
	}
	fx.svc = NewAuthService(
		fx.users,
		fx.codes,
		fx.marker,
		fx.welcome,
		fx.mailer,
		fx.render,
		config.AuthConfig{JWTSecret: "test-secret", SessionTokenTTL: time.Hour},
		"http://localhost:8080",
		zerolog.Nop(),
	)
	return fx
}

func validSignup(email, token string) SignupRequest {
	return SignupRequest{
		Nickname:    "sailor",
		Password:    "open sesame",
		Age:         27,
		Gender:      "female",
		Status:      types.StatusEmployed,
		Email:       email,
		Phone:       "010-1234-5678",
		SignupToken: token,
	}
}

func kindOf(t *testing.T, err error) ErrKind {
	t.Helper()
	var domain *DomainError
	require.ErrorAs(t, err, &domain)
	return domain.Kind
}

func TestSignupCodeFlow(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	require.Len(t, fx.render.lastCode, 6)
	assert.Equal(t, []string{"new@example.com"}, fx.mailer.sent)

	token, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	user, err := fx.svc.CompleteSignup(ctx, validSignup("new@example.com", token))
	require.NoError(t, err)

	assert.True(t, user.EmailVerified)
	assert.Equal(t, "new@example.com", user.Email)
	assert.False(t, user.LimitedAccess)
	assert.Equal(t, []int{user.ID}, fx.welcome.delivered)
}

func TestRequestSignupCodeCooldown(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	fx.svc.now = func() time.Time { return base }
	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))

	fx.svc.now = func() time.Time { return base.Add(10 * time.Second) }
	err := fx.svc.RequestSignupCode(ctx, "new@example.com")
	require.Error(t, err)

	var domain *DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, KindRateLimited, domain.Kind)
	assert.Equal(t, 50, domain.RetryAfter)

	// After the cooldown a fresh code goes out.
	fx.svc.now = func() time.Time { return base.Add(61 * time.Second) }
	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	assert.Len(t, fx.mailer.sent, 2)
}

func TestRequestSignupCodeSendFailureKeepsRetryOpen(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	fx.svc.now = func() time.Time { return base }
	fx.mailer.fail = true
	require.Error(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))

	// A send failure must not start the cooldown: an immediate retry goes
	// through and its code verifies.
	fx.mailer.fail = false
	fx.svc.now = func() time.Time { return base.Add(2 * time.Second) }
	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	assert.Equal(t, []string{"new@example.com"}, fx.mailer.sent)

	token, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestRequestSignupCodeRegisteredEmail(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	_, err := fx.users.Create(ctx, types.User{Nickname: "sailor", Email: "taken@example.com"})
	require.NoError(t, err)

	err = fx.svc.RequestSignupCode(ctx, "Taken@Example.com")
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestVerifySignupCodeWrongCode(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))

	_, err := fx.svc.VerifySignupCode(ctx, "new@example.com", "000000")
	assert.Equal(t, KindUnauthorized, kindOf(t, err))
	assert.Equal(t, 1, fx.codes.codes["new@example.com"].Attempts)
}

func TestVerifySignupCodeAttemptCap(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	for i := 0; i < codeMaxAttempts; i++ {
		_, err := fx.svc.VerifySignupCode(ctx, "new@example.com", "000000")
		assert.Equal(t, KindUnauthorized, kindOf(t, err))
	}

	// The sixth try is refused even with the right code.
	_, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	assert.Equal(t, KindRateLimited, kindOf(t, err))
}

func TestVerifySignupCodeExpired(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	fx.svc.now = func() time.Time { return base }
	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))

	fx.svc.now = func() time.Time { return base.Add(codeTTL + time.Minute) }
	_, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	assert.Equal(t, KindUnauthorized, kindOf(t, err))
}

func TestCompleteSignupEmailMismatch(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	token, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	require.NoError(t, err)

	_, err = fx.svc.CompleteSignup(ctx, validSignup("other@example.com", token))
	assert.Equal(t, KindUnauthorized, kindOf(t, err))
}

func TestCompleteSignupEmailCaseInsensitive(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	token, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	require.NoError(t, err)

	user, err := fx.svc.CompleteSignup(ctx, validSignup("New@Example.COM", token))
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
}

func TestCompleteSignupRejectsSessionToken(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	// A session token must never pass as an email_signup token.
	sessionToken, err := issueSessionToken(1, "sailor", 0, []byte("test-secret"), time.Hour)
	require.NoError(t, err)

	_, err = fx.svc.CompleteSignup(ctx, validSignup("new@example.com", sessionToken))
	assert.Equal(t, KindUnauthorized, kindOf(t, err))
}

func TestSignupWithoutPhoneLimitsAccess(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	token, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	require.NoError(t, err)

	req := validSignup("new@example.com", token)
	req.Phone = ""
	user, err := fx.svc.CompleteSignup(ctx, req)
	require.NoError(t, err)
	assert.True(t, user.LimitedAccess)
}

func TestLoginFlow(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	require.NoError(t, fx.svc.RequestSignupCode(ctx, "new@example.com"))
	token, err := fx.svc.VerifySignupCode(ctx, "new@example.com", fx.render.lastCode)
	require.NoError(t, err)
	created, err := fx.svc.CompleteSignup(ctx, validSignup("new@example.com", token))
	require.NoError(t, err)

	result, err := fx.svc.Login(ctx, "sailor", "open sesame")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.AttendedToday)
	assert.Equal(t, created.ID, result.User.ID)

	// Second login the same day is no longer the first mark.
	result, err = fx.svc.Login(ctx, "sailor", "open sesame")
	require.NoError(t, err)
	assert.False(t, result.AttendedToday)

	user, err := fx.svc.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	_, err := fx.users.Create(ctx, types.User{
		Nickname:      "sailor",
		Email:         "s@example.com",
		PasswordHash:  string(hash),
		EmailVerified: true,
	})
	require.NoError(t, err)

	_, err = fx.svc.Login(ctx, "sailor", "wrong")
	assert.Equal(t, KindUnauthorized, kindOf(t, err))

	_, err = fx.svc.Login(ctx, "nobody", "open sesame")
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

func TestLoginUnverifiedEmailGate(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	_, err := fx.users.Create(ctx, types.User{
		Nickname:     "sailor",
		Email:        "s@example.com",
		PasswordHash: string(hash),
	})
	require.NoError(t, err)

	_, err = fx.svc.Login(ctx, "sailor", "open sesame")
	assert.Equal(t, KindUnauthorized, kindOf(t, err))
	assert.Empty(t, fx.marker.marks)
}

func TestChangePasswordRevokesOldSessions(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	created, err := fx.users.Create(ctx, types.User{
		Nickname:      "sailor",
		Email:         "s@example.com",
		PasswordHash:  string(hash),
		EmailVerified: true,
	})
	require.NoError(t, err)

	result, err := fx.svc.Login(ctx, "sailor", "open sesame")
	require.NoError(t, err)
	oldToken := result.Token

	newToken, err := fx.svc.ChangePassword(ctx, created.ID, "open sesame", "even more secret")
	require.NoError(t, err)

	_, err = fx.svc.Authenticate(ctx, oldToken)
	assert.Equal(t, KindUnauthorized, kindOf(t, err))

	user, err := fx.svc.Authenticate(ctx, newToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
}

func TestChangePasswordRejectsReuseAndWrongCurrent(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	created, err := fx.users.Create(ctx, types.User{
		Nickname:      "sailor",
		Email:         "s@example.com",
		PasswordHash:  string(hash),
		EmailVerified: true,
	})
	require.NoError(t, err)

	_, err = fx.svc.ChangePassword(ctx, created.ID, "wrong", "even more secret")
	assert.Equal(t, KindUnauthorized, kindOf(t, err))

	_, err = fx.svc.ChangePassword(ctx, created.ID, "open sesame", "open sesame")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = fx.svc.ChangePassword(ctx, created.ID, "open sesame", "short")
	assert.Equal(t, KindValidation, kindOf(t, err))

	// The stored hash is untouched after the failed attempts.
	assert.Equal(t, string(hash), fx.users.users[created.ID].PasswordHash)
	assert.Equal(t, 0, fx.users.users[created.ID].TokenVersion)
}

func TestRegisterAndVerifyEmailLink(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	user, err := fx.svc.Register(ctx, validSignup("new@example.com", ""))
	require.NoError(t, err)
	assert.False(t, user.EmailVerified)
	require.NotEmpty(t, fx.render.lastLink)

	// The account cannot log in yet.
	_, err = fx.svc.Login(ctx, "sailor", "open sesame")
	assert.Equal(t, KindUnauthorized, kindOf(t, err))

	token := linkToken(t, fx.render.lastLink)
	already, err := fx.svc.VerifyEmailToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, []int{user.ID}, fx.welcome.delivered)

	// A second visit is idempotent and skips the welcome letter.
	already, err = fx.svc.VerifyEmailToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Len(t, fx.welcome.delivered, 1)

	result, err := fx.svc.Login(ctx, "sailor", "open sesame")
	require.NoError(t, err)
	assert.True(t, result.User.EmailVerified)
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()
	fx.mailer.fail = true

	// The account is created even when the verification mail bounces; the
	// user can ask for a resend later.
	user, err := fx.svc.Register(ctx, validSignup("new@example.com", ""))
	require.NoError(t, err)
	assert.False(t, user.EmailVerified)
	_, ok := fx.users.users[user.ID]
	assert.True(t, ok)
}

func TestResendVerificationCooldown(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	fx.svc.now = func() time.Time { return base }

	_, err := fx.svc.Register(ctx, validSignup("new@example.com", ""))
	require.NoError(t, err)

	require.NoError(t, fx.svc.ResendVerification(ctx, "new@example.com"))

	fx.svc.now = func() time.Time { return base.Add(30 * time.Second) }
	err = fx.svc.ResendVerification(ctx, "new@example.com")
	var domain *DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, KindRateLimited, domain.Kind)
	assert.Equal(t, 30, domain.RetryAfter)

	fx.svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	require.NoError(t, fx.svc.ResendVerification(ctx, "new@example.com"))
}

func TestUpdateProfile(t *testing.T) {
	fx := newAuthFixture()
	ctx := context.Background()

	created, err := fx.users.Create(ctx, types.User{
		Nickname: "sailor", Email: "s@example.com", Status: types.StatusEmployed,
	})
	require.NoError(t, err)
	_, err = fx.users.Create(ctx, types.User{Nickname: "other", Email: "o@example.com"})
	require.NoError(t, err)

	nickname := "voyager"
	updated, err := fx.svc.UpdateProfile(ctx, created.ID, ProfileUpdate{
		Nickname:           &nickname,
		EmailNotifyEnabled: "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, "voyager", updated.Nickname)
	assert.True(t, updated.EmailNotifyEnabled)

	// Taken nickname, invalid status, bad bool, empty patch.
	taken := "other"
	_, err = fx.svc.UpdateProfile(ctx, created.ID, ProfileUpdate{Nickname: &taken})
	assert.Equal(t, KindConflict, kindOf(t, err))

	bad := "retired"
	_, err = fx.svc.UpdateProfile(ctx, created.ID, ProfileUpdate{Status: &bad})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = fx.svc.UpdateProfile(ctx, created.ID, ProfileUpdate{EmailNotifyEnabled: "maybe"})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = fx.svc.UpdateProfile(ctx, created.ID, ProfileUpdate{})
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func linkToken(t *testing.T, link string) string {
	t.Helper()
	_, token, ok := strings.Cut(link, "token=")
	require.True(t, ok)
	return token
}
