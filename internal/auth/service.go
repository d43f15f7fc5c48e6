// Package auth verifies access tokens issued by the hosted auth service and
// enforces profile roles on admin routes. Sign-up, login and password flows
// stay with the auth service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	supabase "github.com/nedpals/supabase-go"

	"github.com/noah-isme/backend-telco/internal/common"
)

// Profile roles allowed on admin routes.
const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
)

// Claims is the subset of a verified token the API relies on.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// RemoteVerifier resolves a token against the auth API.
type RemoteVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// Config configures the Service.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Remote    RemoteVerifier
}

// Service verifies bearer tokens. HS256 tokens are checked locally when a
// secret is configured; otherwise the remote verifier decides.
type Service struct {
	secret    []byte
	validator TokenValidator
	remote    RemoteVerifier
	now       func() time.Time
}

// NewService constructs the verifier.
func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" && cfg.Remote == nil {
		return nil, errors.New("auth: secret or remote verifier required")
	}
	return &Service{
		secret: []byte(cfg.Secret),
		validator: TokenValidator{
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: cfg.ClockSkew,
		},
		remote: cfg.Remote,
		now:    time.Now,
	}, nil
}

// WithClock overrides the clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func unauthorized(message string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}

// Verify validates token and returns its claims.
func (s *Service) Verify(ctx context.Context, token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, unauthorized("missing token", nil)
	}
	if len(s.secret) == 0 {
		claims, err := s.remote.Verify(ctx, trimmed)
		if err != nil {
			return Claims{}, unauthorized("invalid token", err)
		}
		return claims, nil
	}
	return s.verifyLocal(trimmed)
}

func (s *Service) verifyLocal(token string) (Claims, error) {
	algorithm, err := extractTokenAlgorithm(token)
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	if algorithm != jwa.HS256 {
		return Claims{}, unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(token, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	claims, err := s.validator.Claims(parsed, s.now())
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	return claims, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

// SupabaseVerifier asks the hosted auth API who owns a token.
type SupabaseVerifier struct {
	Client *supabase.Client
}

// NewSupabaseVerifier builds a verifier for the project at baseURL.
func NewSupabaseVerifier(baseURL, anonKey string) *SupabaseVerifier {
	return &SupabaseVerifier{Client: supabase.CreateClient(baseURL, anonKey)}
}

// Verify implements RemoteVerifier.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	if v == nil || v.Client == nil {
		return Claims{}, errors.New("auth: supabase client not configured")
	}
	user, err := v.Client.Auth.User(ctx, token)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: fetch user: %w", err)
	}
	if user == nil || user.ID == "" {
		return Claims{}, errors.New("auth: token has no user")
	}
	return Claims{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}
