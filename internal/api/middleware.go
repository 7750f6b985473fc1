package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/foxzi/rbacdash/internal/auth"
)

type ctxKey int

const principalKey ctxKey = iota

// principal returns who made the request: the session email, or "api-key"
func principal(ctx context.Context) string {
	p, _ := ctx.Value(principalKey).(string)
	return p
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware accepts the configured API key or a live session token,
// from either the Authorization or the X-API-Key header
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.unauthorized(w, r, "missing credentials")
			return
		}

		if s.config.APIKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.config.APIKey)) == 1 {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, "api-key")))
			return
		}

		sess, err := s.sessions.Lookup(token)
		if err != nil {
			msg := "invalid credentials"
			if errors.Is(err, auth.ErrSessionExpired) {
				msg = "session expired"
			}
			s.unauthorized(w, r, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, sess.Email)))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	s.logger.Warn("unauthorized API request",
		"remote_addr", r.RemoteAddr,
		"path", r.URL.Path,
		"reason", msg,
	)
	s.sendError(w, http.StatusUnauthorized, msg)
}

func bearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.Header.Get("X-API-Key")
	}
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}

// securityHeaders sets the response headers of a JSON-only API
func securityHeaders(https bool) *secure.Secure {
	opts := secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	}
	if https {
		opts.STSSeconds = 31536000
		opts.STSIncludeSubdomains = true
	}
	return secure.New(opts)
}
