package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/viewtube/accounts/internal/common"
	"github.com/viewtube/accounts/internal/server/auth"
)

type ctxKey string

const accountIDKey ctxKey = "accountID"

var errMissingToken = fmt.Errorf("%w: missing access token", common.ErrorUnauthorized)

// accountIDFromContext returns the authenticated account id set by
// requireAuth, or "" when the request was not authenticated.
func accountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// requireAuth verifies the access token from the Authorization header or the
// accessToken cookie and stores the account id in the request context.
// Verification is stateless; revocation freshness is only checked on refresh.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(accessTokenCookie); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			writeError(w, errMissingToken)
			return
		}

		claims, err := auth.VerifyAccessToken(token, s.accessTokenSecret)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, claims.AccountID)
		next(w, r.WithContext(ctx))
	}
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.logger.Info(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	}
}

// chain applies middleware right to left, so the first listed runs first.
func chain(h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
