package http

import (
	"bytes"
	"context"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/cache"
	"wikilinks/app/internal/metrics"
)

const cacheHeader = "X-Cache"

// humaContext lets recordingContext embed huma.Context without the field name
// shadowing its Context method.
type humaContext = huma.Context

// recordingContext tees the response so a successful read can be stored.
type recordingContext struct {
	humaContext
	status      int
	contentType string
	body        bytes.Buffer
}

var _ huma.Context = (*recordingContext)(nil)

func (c *recordingContext) SetStatus(code int) {
	c.status = code
	c.humaContext.SetStatus(code)
}

func (c *recordingContext) SetHeader(name, value string) {
	if strings.EqualFold(name, "Content-Type") {
		c.contentType = value
	}
	c.humaContext.SetHeader(name, value)
}

func (c *recordingContext) BodyWriter() io.Writer {
	return io.MultiWriter(c.humaContext.BodyWriter(), &c.body)
}

// cacheMiddleware serves public wiki reads from the response cache and fills it
// on a miss.
func (s *Server) cacheMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if ctx.Method() != stdhttp.MethodGet || requiresBearer(ctx.Operation()) {
			next(ctx)
			return
		}

		u := ctx.URL()
		key := cache.NewKey(ctx.Method(), u.Path, u.Query())
		if !cache.WikiReads.Matches(key) {
			next(ctx)
			return
		}

		item, ok, err := s.cache.Get(ctx.Context(), key)
		if err != nil {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			s.logCacheError(ctx.Context(), err, "reading response cache", key)
		}
		if ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			ctx.SetHeader("Content-Type", item.ContentType)
			ctx.SetHeader(cacheHeader, "HIT")
			ctx.SetStatus(item.Status)
			_, _ = ctx.BodyWriter().Write(item.Body)
			return
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		ctx.SetHeader(cacheHeader, "MISS")
		generation := s.cacheGeneration()
		recorder := &recordingContext{humaContext: ctx}
		next(recorder)

		status := recorder.status
		if status == 0 {
			status = stdhttp.StatusOK
		}
		if status != stdhttp.StatusOK {
			return
		}

		stored := cache.Item{
			Status:      status,
			ContentType: recorder.contentType,
			Body:        recorder.body.Bytes(),
		}
		if _, err := s.storeRead(ctx.Context(), generation, key, stored); err != nil {
			s.logCacheError(ctx.Context(), err, "writing response cache", key)
		}
	}
}

func (s *Server) cacheGeneration() uint64 {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cacheGen
}

// storeRead caches item unless an invalidation ran since generation was taken.
func (s *Server) storeRead(ctx context.Context, generation uint64, key cache.Key, item cache.Item) (bool, error) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	if s.cacheGen != generation {
		return false, nil
	}
	if err := s.cache.Set(ctx, key, item); err != nil {
		return false, err
	}
	return true, nil
}

// InvalidateReads drops every cached wiki read. Background jobs that change
// wiki state call it.
func (s *Server) InvalidateReads(ctx context.Context) {
	s.invalidateReads(ctx)
}

// invalidateReads drops every cached wiki read after a mutation. Failures are
// logged; the mutation itself already succeeded.
func (s *Server) invalidateReads(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheGen++

	removed, err := s.cache.Invalidate(ctx, cache.WikiReads)
	if err != nil {
		s.recordError(ctx, err, "invalidating response cache", logrus.Fields{"prefix": cache.WikiReads.String()})
		return
	}
	metrics.CacheInvalidations.Add(float64(removed))
}

func (s *Server) logCacheError(ctx context.Context, err error, message string, key cache.Key) {
	if s.logger == nil {
		return
	}
	fields := logrus.Fields{"error": err.Error(), "cache_key": key.String()}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	s.logger.WithFields(fields).Warn(message)
}
