package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const maxWebhookBody = 1 << 20

// tokenClaims are issued by the identity provider: the subject is the user id.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		u, err := s.authenticate(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withAuthUser(r.Context(), u)))
	})
}

func (s *Server) authenticate(raw string) (*AuthUser, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.security.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.New("invalid token subject")
	}
	if claims.Role == "" {
		return nil, errors.New("token carries no role")
	}
	return &AuthUser{UserID: userID, Role: strings.ToUpper(claims.Role)}, nil
}

func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[strings.ToUpper(r)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := authUserFromContext(r.Context())
			if user == nil {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
				return
			}
			if _, ok := allowed[user.Role]; !ok {
				respondError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	// EventSource cannot set headers.
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// requireCronSecret checks X-Cron-Secret against the configured bcrypt hash.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.security.CronSecretHash == "" {
			respondError(w, http.StatusServiceUnavailable, "CRON_DISABLED", "cron secret not configured")
			return
		}
		secret := r.Header.Get("X-Cron-Secret")
		if secret == "" || bcrypt.CompareHashAndPassword([]byte(s.security.CronSecretHash), []byte(secret)) != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid cron secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSignature verifies the hex HMAC-SHA256 of the raw body in X-Signature
// and hands the body on unchanged.
func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.security.PaymentWebhookSecret == "" {
			respondError(w, http.StatusServiceUnavailable, "WEBHOOK_DISABLED", "webhook secret not configured")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "unreadable body")
			return
		}
		given := strings.TrimPrefix(strings.TrimSpace(r.Header.Get("X-Signature")), "sha256=")
		if !validSignature(s.security.PaymentWebhookSecret, body, given) {
			respondError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature mismatch")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, given string) bool {
	decoded, err := hex.DecodeString(given)
	if err != nil || len(decoded) == 0 {
		return false
	}
	expected, _ := hex.DecodeString(sign(secret, body))
	return hmac.Equal(decoded, expected)
}
