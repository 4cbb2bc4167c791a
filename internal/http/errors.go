package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/wiki"
)

const jsonContentType = "application/json"

// APIError is the JSON body of every failed API request.
type APIError struct {
	Status   int    `json:"status"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Debug    string `json:"debug,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.Status
}

// ContentType implements huma.ContentTypeFilter.
func (e *APIError) ContentType(string) string {
	return jsonContentType
}

var _ huma.StatusError = (*APIError)(nil)

func statusFor(category wiki.Category) int {
	switch category {
	case wiki.CategoryNotFound:
		return stdhttp.StatusNotFound
	case wiki.CategoryConflict:
		return stdhttp.StatusConflict
	case wiki.CategoryBadRequest:
		return stdhttp.StatusBadRequest
	default:
		return stdhttp.StatusInternalServerError
	}
}

// apiError maps err onto a response. Server errors are logged and reported;
// client errors are returned as they are.
func (s *Server) apiError(ctx context.Context, err error, message string, fields logrus.Fields) *APIError {
	category := wiki.Classify(err)
	resp := &APIError{
		Status:   statusFor(category),
		Category: string(category),
		Message:  wiki.Message(err),
	}

	if resp.Status >= stdhttp.StatusInternalServerError {
		s.recordError(ctx, err, message, fields)
	}
	if s.development {
		resp.Debug = eris.ToString(err, false)
	}

	return resp
}

func newAPIError(status int, category wiki.Category, message string) *APIError {
	return &APIError{Status: status, Category: string(category), Message: message}
}

// writeError writes resp from inside a middleware, where there is no handler to
// return it from.
func (s *Server) writeError(ctx huma.Context, resp *APIError) {
	ctx.SetHeader("Content-Type", jsonContentType)
	ctx.SetStatus(resp.Status)
	if err := s.api.Marshal(ctx.BodyWriter(), jsonContentType, resp); err != nil {
		s.recordError(ctx.Context(), err, "writing error response", logrus.Fields{"status": resp.Status})
	}
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}
