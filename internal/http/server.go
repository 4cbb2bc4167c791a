package http

import (
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikilinks/app/internal/auth"
	"wikilinks/app/internal/cache"
	"wikilinks/app/internal/metrics"
	"wikilinks/app/internal/wiki"
)

const bearerScheme = "bearer"

// Options configures the HTTP server wiring.
type Options struct {
	WikiService   wiki.Service
	Database      *gorm.DB
	Cache         cache.Cache
	Authenticator auth.Authenticator
	Logger        *logrus.Logger
	SentryHub     *sentry.Hub
	RateLimiter   RateLimiterSettings
	// Development adds eris stack traces to error responses.
	Development bool
}

// RateLimiterSettings configures the HTTP rate limiter behaviour.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Server wires the HTTP transport layer via Huma and templ components.
type Server struct {
	api         huma.API
	mux         *stdhttp.ServeMux
	wiki        wiki.Service
	cache       cache.Cache
	auth        auth.Authenticator
	logger      *logrus.Logger
	sentry      *sentry.Hub
	db          *gorm.DB
	rateLimiter *RateLimiter
	development bool

	// cacheMu orders cache fills against invalidation; cacheGen counts
	// invalidations so a read that raced one is not stored.
	cacheMu  sync.RWMutex
	cacheGen uint64
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.WikiService == nil {
		return nil, eris.New("wiki service is required")
	}
	if opts.Database == nil {
		return nil, eris.New("database is required")
	}
	if opts.Authenticator == nil {
		return nil, eris.New("authenticator is required")
	}

	responseCache := opts.Cache
	if responseCache == nil {
		responseCache = cache.Nop{}
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("Wiki Links", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		bearerScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	api := humago.New(mux, config)

	srv := &Server{
		api:         api,
		mux:         mux,
		wiki:        opts.WikiService,
		cache:       responseCache,
		auth:        opts.Authenticator,
		logger:      opts.Logger,
		sentry:      opts.SentryHub,
		db:          opts.Database,
		development: opts.Development,
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	srv.rateLimiter = NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL)

	srv.registerMiddlewares()
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.mux
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.rateLimitMiddleware(),
		s.authMiddleware(),
		s.loggingMiddleware(),
		s.cacheMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.registerEntryRoutes()
	s.registerPendingRoutes()
	s.registerResolutionRoutes()
	s.registerLinkRoutes()
	s.registerPageRoute()
	s.registerHealthRoute()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
}
