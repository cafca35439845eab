package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "bearer "

var (
	ErrMissingToken  = errors.New("auth: token required")
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrExpiredToken  = errors.New("auth: token expired")
	ErrMissingScope  = errors.New("auth: scope not granted")
	ErrMissingSecret = errors.New("auth: signing secret required")
)

// TokenValidatorConfig describes how to validate service tokens.
type TokenValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// TokenValidator validates HS256 tokens minted by TokenIssuer.
type TokenValidator struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewTokenValidator constructs a validator with the provided configuration.
func NewTokenValidator(cfg TokenValidatorConfig) (*TokenValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// ValidateToken validates the supplied token string and returns its claims.
func (v *TokenValidator) ValidateToken(tokenString string) (WebhookClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return WebhookClaims{}, ErrMissingToken
	}

	claims := &WebhookClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return v.signingSecret, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return WebhookClaims{}, ErrExpiredToken
		}
		return WebhookClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return WebhookClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return WebhookClaims{}, errMissingSubjectClaim
	}
	return *claims, nil
}

// ValidateRequest reads the bearer token from the Authorization header and
// checks that it grants scope.
func (v *TokenValidator) ValidateRequest(r *http.Request, scope string) (WebhookClaims, error) {
	if r == nil {
		return WebhookClaims{}, ErrMissingToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return WebhookClaims{}, ErrMissingToken
	}
	claims, err := v.ValidateToken(header[len(bearerPrefix):])
	if err != nil {
		return WebhookClaims{}, err
	}
	if scope != "" && !claims.HasScope(scope) {
		return WebhookClaims{}, ErrMissingScope
	}
	return claims, nil
}
