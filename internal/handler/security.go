package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/auth"
)

const (
	// APIKeyHeader carries the client API key.
	APIKeyHeader = "api_key"
	// UserIDHeader carries the authenticated end user, set by the session
	// layer in front of this service.
	UserIDHeader = "X-User-ID"
)

var errUnauthorized = errors.New("unauthorized")

type userIDKey struct{}

// WithUserID returns a context carrying the caller's user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the caller's user id stored by the security middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate rejects requests without a valid API key or user identity.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := s.verify(ctx, r.Header.Get(APIKeyHeader)); err != nil {
			if !errors.Is(err, errUnauthorized) {
				zctx.From(ctx).Error("Verify api key", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(ctx, userID)))
	})
}

// verify hashes key, looks it up and compares the stored hash in constant
// time.
func (s *SecurityHandler) verify(ctx context.Context, key string) error {
	if key == "" {
		return errUnauthorized
	}
	hexHash := auth.HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			return errUnauthorized
		}
		return err
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return errUnauthorized
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return errUnauthorized
	}
	return nil
}
