package services

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators. Every consumer checks the type so a token
// minted for one purpose is never accepted for another.
const (
	TokenTypeSession     = "session"
	TokenTypeEmailVerify = "email_verify"
	TokenTypeEmailSignup = "email_signup"
)

const (
	emailVerifyTokenTTL = 24 * time.Hour
	emailSignupTokenTTL = 30 * time.Minute
)

// sessionClaims is the session token payload: the user, their nickname and
// the token version current at issue time.
type sessionClaims struct {
	UserID       int    `json:"user_id"`
	Nickname     string `json:"nickname"`
	TokenVersion int    `json:"ver"`
	TokenType    string `json:"type"`
	jwt.RegisteredClaims
}

// purposeClaims is the payload of the single-purpose email tokens. Subject
// carries a user id (email_verify) or an email address (email_signup).
type purposeClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

func signToken(claims jwt.Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func issueSessionToken(userID int, nickname string, tokenVersion int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	return signToken(sessionClaims{
		UserID:       userID,
		Nickname:     nickname,
		TokenVersion: tokenVersion,
		TokenType:    TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}, secret)
}

func issuePurposeToken(tokenType, subject string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	return signToken(purposeClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}, secret)
}

func hmacKeyFunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}
}

// parseSessionClaims validates signature and expiry and enforces the session
// type. Expiry is reported distinctly from every other failure.
func parseSessionClaims(tokenString string, secret []byte) (sessionClaims, error) {
	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, hmacKeyFunc(secret))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return sessionClaims{}, unauthorizedErr("token has expired")
		}
		return sessionClaims{}, unauthorizedErr("invalid token")
	}
	if !token.Valid || claims.TokenType != TokenTypeSession || claims.UserID < 1 {
		return sessionClaims{}, unauthorizedErr("invalid token")
	}
	return claims, nil
}

// parsePurposeClaims validates signature, expiry and the expected type for
// the email_verify and email_signup tokens.
func parsePurposeClaims(tokenString, wantType string, secret []byte) (purposeClaims, error) {
	claims := purposeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, hmacKeyFunc(secret))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return purposeClaims{}, unauthorizedErr("token has expired, request a new one")
		}
		return purposeClaims{}, unauthorizedErr("invalid token")
	}
	if !token.Valid || claims.TokenType != wantType || strings.TrimSpace(claims.Subject) == "" {
		return purposeClaims{}, unauthorizedErr("invalid token")
	}
	return claims, nil
}
