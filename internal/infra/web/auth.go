package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pix-membership-platform/internal/domain/ports/repository"
	"pix-membership-platform/internal/infra/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type AuthManager struct {
	secret []byte
	ttl    time.Duration
	users  repository.UserRepository
}

func NewAuthManager(secret string, ttl time.Duration, users repository.UserRepository) *AuthManager {
	return &AuthManager{secret: []byte(secret), ttl: ttl, users: users}
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Mint issues an HS256 bearer token for the given user id. Role is stamped
// into the claims for observability only; authorization re-checks the user
// store on every request.
func (a *AuthManager) Mint(userID string) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return nil, errors.New("missing token")
	}
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(strings.TrimSpace(hdr[7:]), claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireAdmin authenticates the bearer token and then verifies the subject
// still holds the admin flag in the user store. A token alone never grants
// access: revoking the flag revokes every outstanding token.
func (a *AuthManager) RequireAdmin(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			user, err := a.users.FindByID(r.Context(), repository.NoTX, claims.Subject)
			if err != nil || !user.IsAdmin {
				l := logging.With(r.Context(), logger)
				l.Warn().Str("subject", claims.Subject).Msg("admin access denied")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ctx := logging.WithUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CronAuth guards the cron trigger endpoints with a static bearer secret,
// for external schedulers that cannot hold a JWT.
func CronAuth(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			hdr := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") || strings.TrimSpace(hdr[7:]) != secret {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
