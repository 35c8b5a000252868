package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/golang-jwt/jwt/v5"
)

// TokenCookie is the cookie browsers may use instead of the Authorization
// header on GET and HEAD requests.
const TokenCookie = "equipment_token"

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// JWTAuth returns middleware that resolves the requesting user from an HS256
// bearer token whose subject is the numeric user ID.
//
// The token is read from the Authorization header. Without one, GET and HEAD
// requests fall back to the TokenCookie cookie; state-changing requests never
// authenticate from the cookie. If Required is false, requests without a token run as
// DefaultUserID; a token that is present must still be valid.
func JWTAuth(cfg config.AuthConfig) func(http.Handler) http.Handler {
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := tokenFromRequest(r)
			if errors.Is(err, errMissingToken) && !cfg.Required {
				ctx := core.ContextWithUserID(r.Context(), cfg.DefaultUserID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			var userID int64
			if err == nil {
				userID, err = ParseToken(secret, raw)
			}
			if err != nil {
				slog.Warn("auth: rejected request",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="equipment-analytics"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintf(w, `{"error":%q,"code":"AUTH001"}`, err.Error())
				return
			}

			ctx := core.ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			return "", errMissingToken
		}
		if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
			return c.Value, nil
		}
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// ParseToken validates an HS256 token and returns its subject as a user ID.
func ParseToken(secret []byte, raw string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: subject %q is not a user id", errInvalidToken, claims.Subject)
	}
	return userID, nil
}

// IssueToken signs an HS256 token for userID that expires after ttl.
func IssueToken(secret []byte, userID int64, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
