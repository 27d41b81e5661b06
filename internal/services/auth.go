package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindvoyage/apiserver/config"
	"github.com/mindvoyage/apiserver/internal/store"
	"github.com/mindvoyage/apiserver/types"
)

const (
	passwordMinLen = 8

	codeDigits         = 6
	codeTTL            = 10 * time.Minute
	codeResendCooldown = 60 * time.Second
	codeMaxAttempts    = 5

	resendLinkCooldown = 60 * time.Second
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByNickname(ctx context.Context, nickname string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	NicknameTaken(ctx context.Context, nickname string, excludeID int) (bool, error)
	EmailTaken(ctx context.Context, email string, excludeID int) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id int, patch store.ProfilePatch) (types.User, error)
	UpdatePassword(ctx context.Context, id int, hash string) error
	MarkEmailVerified(ctx context.Context, id int, at time.Time) (bool, error)
	TouchVerificationSentAt(ctx context.Context, id int, at time.Time) error
}

// EmailCodeRepository defines persistence operations for signup codes.
type EmailCodeRepository interface {
	Upsert(ctx context.Context, email, codeHash string, expiresAt, sentAt time.Time) error
	Get(ctx context.Context, email string) (types.EmailVerificationCode, error)
	IncrementAttempts(ctx context.Context, email string) (int, error)
	MarkVerified(ctx context.Context, email string) error
}

// Mailer delivers transactional email. Implementations may send
// synchronously or enqueue for a background worker.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// WelcomeDeliverer owns the welcome-letter side effect that runs once per
// account, on signup completion.
type WelcomeDeliverer interface {
	DeliverWelcome(ctx context.Context, toUserID int) error
}

type attendanceMarker interface {
	Mark(ctx context.Context, userID int) (bool, error)
}

// MailRenderer produces the bodies of the verification mails.
type MailRenderer interface {
	VerificationCode(code string, ttl time.Duration) (subject, html string)
	VerificationLink(nickname, link string) (subject, html string)
}

// AuthService implements credential checks, the three token flows and the
// account lifecycle rules.
type AuthService struct {
	users      UserRepository
	codes      EmailCodeRepository
	attendance attendanceMarker
	welcome    WelcomeDeliverer
	mailer     Mailer
	render     MailRenderer
	secret     []byte
	sessionTTL time.Duration
	baseURL    string
	log        zerolog.Logger
	now        func() time.Time
}

func NewAuthService(
	users UserRepository,
	codes EmailCodeRepository,
	attendance attendanceMarker,
	welcome WelcomeDeliverer,
	mailer Mailer,
	render MailRenderer,
	cfg config.AuthConfig,
	baseURL string,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		codes:      codes,
		attendance: attendance,
		welcome:    welcome,
		mailer:     mailer,
		render:     render,
		secret:     []byte(cfg.JWTSecret),
		sessionTTL: cfg.SessionTokenTTL,
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
		now:        time.Now,
	}
}

// RequestSignupCode issues a one-time numeric code to an email address that
// is not registered yet, subject to a resend cooldown.
func (s *AuthService) RequestSignupCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !emailRe.MatchString(email) {
		return validationErr("a valid email address is required")
	}

	taken, err := s.users.EmailTaken(ctx, email, 0)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return conflictErr("this email is already registered")
	}

	now := s.now()
	if existing, err := s.codes.Get(ctx, email); err == nil {
		if remaining := cooldownRemaining(existing.LastSentAt, codeResendCooldown, now); remaining > 0 {
			return rateLimitedErr("a code was just sent, try again shortly", remaining)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load code: %w", err)
	}

	code, err := randomDigits(codeDigits)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	// The row (and with it the cooldown stamp) is written only after the
	// mail goes out, so a failed send leaves an immediate retry open.
	subject, html := s.render.VerificationCode(code, codeTTL)
	if err := s.mailer.Send(ctx, email, subject, html); err != nil {
		return fmt.Errorf("send code mail: %w", err)
	}
	if err := s.codes.Upsert(ctx, email, hashCode(code), now.Add(codeTTL), now); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	return nil
}

// VerifySignupCode checks a submitted code and, on success, issues the
// short-lived email_signup token that gates account creation. A mismatch
// never reveals whether the email or the code was wrong.
func (s *AuthService) VerifySignupCode(ctx context.Context, email, code string) (string, error) {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return "", validationErr("email and code are required")
	}

	record, err := s.codes.Get(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", unauthorizedErr("invalid email or code")
		}
		return "", fmt.Errorf("load code: %w", err)
	}

	now := s.now()
	if record.Attempts >= codeMaxAttempts {
		return "", rateLimitedErr("too many attempts, request a new code", 0)
	}
	if now.After(record.ExpiresAt) {
		return "", unauthorizedErr("the code has expired, request a new one")
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(record.CodeHash)) != 1 {
		if _, err := s.codes.IncrementAttempts(ctx, email); err != nil {
			return "", fmt.Errorf("count attempt: %w", err)
		}
		return "", unauthorizedErr("invalid email or code")
	}

	if err := s.codes.MarkVerified(ctx, email); err != nil {
		return "", fmt.Errorf("mark code verified: %w", err)
	}
	return issuePurposeToken(TokenTypeEmailSignup, strings.ToLower(email), s.secret, emailSignupTokenTTL)
}

// SignupRequest carries the profile fields for account creation.
type SignupRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Status   string `json:"status"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`

	// SignupToken is the email_signup token proving the email was verified.
	SignupToken string `json:"signup_token"`
}

// CompleteSignup creates an account from a verified email. Every rule is
// checked before any write; the account comes out already email-verified
// because the token proves verification.
func (s *AuthService) CompleteSignup(ctx context.Context, req SignupRequest) (types.User, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	req.Email = strings.TrimSpace(req.Email)
	req.Status = strings.TrimSpace(req.Status)

	if err := s.validateProfile(req); err != nil {
		return types.User{}, err
	}

	claims, err := parsePurposeClaims(req.SignupToken, TokenTypeEmailSignup, s.secret)
	if err != nil {
		return types.User{}, err
	}
	if !strings.EqualFold(claims.Subject, req.Email) {
		return types.User{}, unauthorizedErr("the token was issued for a different email")
	}

	if err := s.checkUniqueness(ctx, req.Nickname, req.Email, 0); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user, err := s.users.Create(ctx, types.User{
		Nickname:        req.Nickname,
		Email:           strings.ToLower(req.Email),
		PasswordHash:    string(hash),
		Age:             req.Age,
		Gender:          req.Gender,
		Status:          req.Status,
		Address:         req.Address,
		Phone:           req.Phone,
		Point:           0,
		Level:           1,
		LimitedAccess:   strings.TrimSpace(req.Phone) == "",
		EmailVerified:   true,
		EmailVerifiedAt: &now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflictErr("nickname or email is already registered")
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	s.deliverWelcome(ctx, user.ID)
	return user, nil
}

// Register is the link-based signup variant: the account is created
// unverified and a verification link goes out by mail. The account cannot
// log in until the link is visited.
func (s *AuthService) Register(ctx context.Context, req SignupRequest) (types.User, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	req.Email = strings.TrimSpace(req.Email)
	req.Status = strings.TrimSpace(req.Status)

	if err := s.validateProfile(req); err != nil {
		return types.User{}, err
	}
	if err := s.checkUniqueness(ctx, req.Nickname, req.Email, 0); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Nickname:      req.Nickname,
		Email:         strings.ToLower(req.Email),
		PasswordHash:  string(hash),
		Age:           req.Age,
		Gender:        req.Gender,
		Status:        req.Status,
		Address:       req.Address,
		Phone:         req.Phone,
		Point:         0,
		Level:         1,
		LimitedAccess: strings.TrimSpace(req.Phone) == "",
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflictErr("nickname or email is already registered")
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	// Mail failure must not roll back the account; the user can ask for a
	// resend.
	if err := s.sendVerificationLink(ctx, user); err != nil {
		s.log.Warn().Err(err).Int("user_id", user.ID).Msg("verification mail failed")
	}
	return user, nil
}

// LoginResult is what a successful login hands back to the route layer.
type LoginResult struct {
	Token         string
	User          types.User
	AttendedToday bool
}

// Login authenticates nickname and password, enforces the email-verified
// gate, mints a session token and marks today's attendance. Attendance
// failures are logged and never block the login.
func (s *AuthService) Login(ctx context.Context, nickname, password string) (LoginResult, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || password == "" {
		return LoginResult{}, validationErr("nickname and password are required")
	}

	user, err := s.users.GetByNickname(ctx, nickname)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, notFoundErr("no account with this nickname")
		}
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, unauthorizedErr("wrong password")
	}
	if !user.EmailVerified {
		return LoginResult{}, unauthorizedErr("verify your email before logging in")
	}

	token, err := issueSessionToken(user.ID, user.Nickname, user.TokenVersion, s.secret, s.sessionTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	first, err := s.attendance.Mark(ctx, user.ID)
	if err != nil {
		s.log.Warn().Err(err).Int("user_id", user.ID).Msg("attendance mark failed")
		first = false
	}

	return LoginResult{Token: token, User: user, AttendedToday: first}, nil
}

// Authenticate resolves a bearer token to a live user. Expired tokens,
// otherwise-invalid tokens, deleted accounts and stale token versions each
// fail distinctly.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (types.User, error) {
	claims, err := parseSessionClaims(tokenString, s.secret)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundErr("account no longer exists")
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}

	if claims.TokenVersion != user.TokenVersion {
		return types.User{}, unauthorizedErr("session has been revoked, log in again")
	}
	return user, nil
}

// ChangePassword re-verifies the current password, rejects reuse, stores
// the new hash and bumps the token version so every other session dies.
// A fresh session token for the caller comes back with the change.
func (s *AuthService) ChangePassword(ctx context.Context, userID int, current, next string) (string, error) {
	if current == "" || next == "" {
		return "", validationErr("current_password and new_password are required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", notFoundErr("account no longer exists")
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return "", unauthorizedErr("current password is wrong")
	}
	if len(next) < passwordMinLen {
		return "", validationErr(fmt.Sprintf("password must be at least %d characters", passwordMinLen))
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(next)) == nil {
		return "", validationErr("new password must differ from the current one")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}

	return issueSessionToken(user.ID, user.Nickname, user.TokenVersion+1, s.secret, s.sessionTTL)
}

// ProfileUpdate carries the raw partial-update payload. Consent flags come
// in as loosely typed JSON values and go through the tri-state parser.
type ProfileUpdate struct {
	Nickname           *string
	Status             *string
	Email              *string
	Address            *string
	Phone              *string
	EmailNotifyEnabled any
}

// UpdateProfile applies a whitelisted partial update. Required fields can
// never be blanked out and uniqueness is rechecked excluding the caller.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int, update ProfileUpdate) (types.User, error) {
	patch := store.ProfilePatch{
		Address: update.Address,
		Phone:   update.Phone,
	}

	if update.Nickname != nil {
		nickname := strings.TrimSpace(*update.Nickname)
		if nickname == "" {
			return types.User{}, validationErr("nickname cannot be blank")
		}
		taken, err := s.users.NicknameTaken(ctx, nickname, userID)
		if err != nil {
			return types.User{}, fmt.Errorf("check nickname: %w", err)
		}
		if taken {
			return types.User{}, conflictErr("this nickname is already taken")
		}
		patch.Nickname = &nickname
	}

	if update.Status != nil {
		status := strings.TrimSpace(*update.Status)
		if status == "" {
			return types.User{}, validationErr("status cannot be blank")
		}
		if !types.IsValidStatus(status) {
			return types.User{}, validationErr("status must be one of " + strings.Join(types.AllowedStatuses, ", "))
		}
		patch.Status = &status
	}

	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if email == "" {
			return types.User{}, validationErr("email cannot be blank")
		}
		if !emailRe.MatchString(email) {
			return types.User{}, validationErr("a valid email address is required")
		}
		taken, err := s.users.EmailTaken(ctx, email, userID)
		if err != nil {
			return types.User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return types.User{}, conflictErr("this email is already registered")
		}
		lowered := strings.ToLower(email)
		patch.Email = &lowered
	}

	notify, err := ParseOptionalBool("email_notify_enabled", update.EmailNotifyEnabled)
	if err != nil {
		return types.User{}, err
	}
	patch.EmailNotifyEnabled = notify

	if patch.Empty() {
		return types.User{}, validationErr("nothing to update")
	}

	user, err := s.users.UpdateProfile(ctx, userID, patch)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflictErr("nickname or email is already registered")
		}
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundErr("account no longer exists")
		}
		return types.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// VerifyEmailToken handles a visit to the verification link. The operation
// is idempotent: a second visit short-circuits without re-running the
// welcome side effect.
func (s *AuthService) VerifyEmailToken(ctx context.Context, tokenString string) (alreadyVerified bool, err error) {
	claims, err := parsePurposeClaims(tokenString, TokenTypeEmailVerify, s.secret)
	if err != nil {
		return false, err
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID < 1 {
		return false, unauthorizedErr("invalid token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, notFoundErr("account no longer exists")
		}
		return false, fmt.Errorf("load user: %w", err)
	}
	if user.EmailVerified {
		return true, nil
	}

	transitioned, err := s.users.MarkEmailVerified(ctx, userID, s.now())
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	if transitioned {
		s.deliverWelcome(ctx, userID)
	}
	return !transitioned, nil
}

// ResendVerification re-sends the verification link, with a cooldown
// against hammering the mail provider.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return validationErr("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundErr("no account with this email")
		}
		return fmt.Errorf("load user: %w", err)
	}
	if user.EmailVerified {
		return validationErr("this email is already verified")
	}

	now := s.now()
	if user.LastVerificationSentAt != nil {
		if remaining := cooldownRemaining(*user.LastVerificationSentAt, resendLinkCooldown, now); remaining > 0 {
			return rateLimitedErr("a verification mail was just sent, try again shortly", remaining)
		}
	}

	if err := s.sendVerificationLink(ctx, user); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return s.users.TouchVerificationSentAt(ctx, user.ID, now)
}

func (s *AuthService) sendVerificationLink(ctx context.Context, user types.User) error {
	token, err := issuePurposeToken(TokenTypeEmailVerify, strconv.Itoa(user.ID), s.secret, emailVerifyTokenTTL)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/verify-email?token=%s", s.baseURL, token)
	subject, html := s.render.VerificationLink(user.Nickname, link)
	return s.mailer.Send(ctx, user.Email, subject, html)
}

func (s *AuthService) deliverWelcome(ctx context.Context, userID int) {
	if s.welcome == nil {
		return
	}
	if err := s.welcome.DeliverWelcome(ctx, userID); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("welcome letter failed")
	}
}

func (s *AuthService) validateProfile(req SignupRequest) error {
	if req.Nickname == "" || req.Password == "" || req.Gender == "" || req.Status == "" || req.Email == "" || req.Age <= 0 {
		return validationErr("nickname, password, age, gender, status and email are required")
	}
	if len(req.Password) < passwordMinLen {
		return validationErr(fmt.Sprintf("password must be at least %d characters", passwordMinLen))
	}
	if !types.IsValidStatus(req.Status) {
		return validationErr("status must be one of " + strings.Join(types.AllowedStatuses, ", "))
	}
	if !emailRe.MatchString(req.Email) {
		return validationErr("a valid email address is required")
	}
	return nil
}

func (s *AuthService) checkUniqueness(ctx context.Context, nickname, email string, excludeID int) error {
	taken, err := s.users.NicknameTaken(ctx, nickname, excludeID)
	if err != nil {
		return fmt.Errorf("check nickname: %w", err)
	}
	if taken {
		return conflictErr("this nickname is already taken")
	}

	taken, err = s.users.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return conflictErr("this email is already registered")
	}
	return nil
}

func cooldownRemaining(last time.Time, cooldown time.Duration, now time.Time) int {
	elapsed := now.Sub(last)
	if elapsed >= cooldown {
		return 0
	}
	remaining := int((cooldown - elapsed) / time.Second)
	if remaining < 1 {
		remaining = 1
	}
	return remaining
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		digit, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + digit.Int64()))
	}
	return b.String(), nil
}
