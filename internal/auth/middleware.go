package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

var errNoToken = errors.New("auth: token missing")

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// Middleware authenticates bearer tokens and gates admin routes on the
// caller's profile role.
type Middleware struct {
	Service  Verifier
	Profiles store.Profiles
}

// RequireAuth enforces that a valid token is present before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			if errors.Is(err, errNoToken) || !common.IsAppError(err) {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
				return
			}
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits authenticated callers whose profile role is one of
// roles. The role comes from the profiles table, never from the token. It
// must run after RequireAuth.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Profiles == nil {
				common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "profiles not configured", nil)
				return
			}
			userID, ok := common.UserUUID(r.Context())
			if !ok {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
				return
			}
			profile, err := m.Profiles.GetProfile(r.Context(), userID)
			if err != nil {
				err = common.FromStoreError("profile", err)
				var appErr *common.AppError
				if errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusNotFound {
					common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
					return
				}
				common.WriteError(w, err)
				return
			}
			if !slices.Contains(roles, profile.Role) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("role", profile.Role)
			})
			next.ServeHTTP(w, r.WithContext(common.WithRole(r.Context(), profile.Role)))
		})
	}
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	if m.Service == nil {
		return r.Context(), errors.New("auth: service not configured")
	}
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	claims, err := m.Service.Verify(r.Context(), token)
	if err != nil {
		return r.Context(), err
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return r.Context(), unauthorized("invalid token", err)
	}
	// the request logger sits outside this middleware and shares the context logger
	zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("user_id", claims.UserID)
	})
	return common.WithUserID(r.Context(), claims.UserID), nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
