package http

import (
	"context"
	"fmt"
	"net"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/auth"
	"wikilinks/app/internal/metrics"
	"wikilinks/app/internal/wiki"
)

const (
	rateLimitMessage    = "too many requests, please wait a moment and try again"
	unauthorizedMessage = "a valid bearer token is required"
	requestIDHeader     = "X-Request-ID"
)

func (s *Server) requestIDMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		reqID := uuid.NewString()
		goCtx := context.WithValue(ctx.Context(), requestIDContextKey, reqID)
		ctx = huma.WithContext(ctx, goCtx)
		ctx.SetHeader(requestIDHeader, reqID)

		if hub := sentry.GetHubFromContext(goCtx); hub != nil {
			hub.Scope().SetTag("request_id", reqID)
		}

		next(ctx)
	}
}

func (s *Server) rateLimitMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if s.rateLimiter == nil {
			next(ctx)
			return
		}

		req, _ := humago.Unwrap(ctx)
		if req == nil {
			next(ctx)
			return
		}

		ip := clientIPFromRequest(req)
		if s.rateLimiter.Allow(ip) {
			next(ctx)
			return
		}

		metrics.RateLimitRejections.Inc()
		if s.logger != nil {
			fields := logrus.Fields{
				"ip":   ip,
				"path": req.URL.Path,
			}
			if requestID := RequestIDFromContext(ctx.Context()); requestID != "" {
				fields["request_id"] = requestID
			}
			s.logger.WithError(eris.New("rate limit exceeded")).WithFields(fields).Warn("request rate limited")
		}

		ctx.SetHeader("Retry-After", "1")
		s.writeError(ctx, newAPIError(stdhttp.StatusTooManyRequests, "rate_limited", rateLimitMessage))
	}
}

// authMiddleware enforces the bearer scheme on operations that declare it.
func (s *Server) authMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !requiresBearer(ctx.Operation()) {
			next(ctx)
			return
		}

		identity, err := s.auth.Authenticate(ctx.Context(), ctx.Header)
		if err != nil {
			if s.logger != nil {
				fields := logrus.Fields{"method": ctx.Method(), "error": err.Error()}
				if op := ctx.Operation(); op != nil {
					fields["route"] = op.Path
				}
				if requestID := RequestIDFromContext(ctx.Context()); requestID != "" {
					fields["request_id"] = requestID
				}
				s.logger.WithFields(fields).Warn("request rejected by authentication")
			}

			ctx.SetHeader("WWW-Authenticate", `Bearer realm="wiki"`)
			s.writeError(ctx, newAPIError(stdhttp.StatusUnauthorized, "unauthorized", unauthorizedMessage))
			return
		}

		if hub := sentry.GetHubFromContext(ctx.Context()); hub != nil {
			hub.Scope().SetUser(sentry.User{ID: identity.Subject, Email: identity.Email})
		}

		next(huma.WithContext(ctx, auth.WithIdentity(ctx.Context(), identity)))
	}
}

func requiresBearer(op *huma.Operation) bool {
	if op == nil {
		return false
	}
	for _, requirement := range op.Security {
		if _, ok := requirement[bearerScheme]; ok {
			return true
		}
	}
	return false
}

func (s *Server) loggingMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)

		status := ctx.Status()
		if status == 0 {
			status = stdhttp.StatusOK
		}

		route := ""
		if op := ctx.Operation(); op != nil {
			route = op.Path
		}

		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(ctx.Method(), route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(ctx.Method(), route).Observe(elapsed.Seconds())

		if s.logger == nil {
			return
		}

		fields := logrus.Fields{
			"method":      ctx.Method(),
			"route":       route,
			"status":      status,
			"duration_ms": float64(elapsed.Microseconds()) / 1000,
		}

		if req, _ := humago.Unwrap(ctx); req != nil {
			fields["path"] = req.URL.Path
			fields["remote_addr"] = req.RemoteAddr
		}

		if requestID := RequestIDFromContext(ctx.Context()); requestID != "" {
			fields["request_id"] = requestID
		}

		if identity, ok := auth.IdentityFrom(ctx.Context()); ok {
			fields["user"] = identity.Subject
		}

		entry := s.logger.WithFields(fields)
		if status >= 500 {
			entry.Error("request failed")
		} else {
			entry.Info("request completed")
		}
	}
}

func (s *Server) recoveryMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		defer func() {
			if rec := recover(); rec != nil {
				var err error
				switch v := rec.(type) {
				case error:
					err = v
				default:
					err = fmt.Errorf("panic: %v", v)
				}

				s.recordError(ctx.Context(), err, "panic recovered", nil)

				if hub := sentry.GetHubFromContext(ctx.Context()); hub != nil {
					hub.RecoverWithContext(ctx.Context(), rec)
					hub.Flush(2 * time.Second)
				}

				s.writeError(ctx, newAPIError(stdhttp.StatusInternalServerError, wiki.CategoryInternal, "internal server error"))
			}
		}()

		next(ctx)
	}
}

func (s *Server) sentryMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if s.sentry == nil {
			next(ctx)
			return
		}

		hub := s.sentry.Clone()
		scope := hub.Scope()
		scope.SetTag("http.method", ctx.Method())
		if op := ctx.Operation(); op != nil {
			scope.SetTag("http.route", op.Path)
		}

		goCtx := sentry.SetHubOnContext(ctx.Context(), hub)
		ctx = huma.WithContext(ctx, goCtx)

		defer hub.Flush(2 * time.Second)

		next(ctx)
	}
}

func clientIPFromRequest(req *stdhttp.Request) string {
	if req == nil {
		return ""
	}

	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if candidate := strings.TrimSpace(first); candidate != "" {
			return candidate
		}
	}

	if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
