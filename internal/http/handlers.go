package http

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/db"
	"wikilinks/app/internal/http/templates"
	"wikilinks/app/internal/wiki"
)

const htmlContentType = "text/html; charset=utf-8"

type htmlResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type wikiPageInput struct {
	Slug string `path:"slug"`
}

type healthResponse struct {
	Status int
	Body   struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
}

func (s *Server) registerPageRoute() {
	huma.Get(s.api, "/wiki/{slug}", s.wikiPageHandler, htmlOperation(
		"Render a published wiki entry",
		stdhttp.StatusNotFound,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
	})
}

func (s *Server) wikiPageHandler(ctx context.Context, input *wikiPageInput) (*htmlResponse, error) {
	slug := strings.TrimSpace(input.Slug)

	if wiki.IsPendingSlug(slug) {
		return s.pendingPage(ctx, slug)
	}

	entry, err := s.wiki.GetEntryBySlug(ctx, slug)
	if err != nil {
		switch wiki.Classify(err) {
		case wiki.CategoryNotFound, wiki.CategoryBadRequest:
			return s.renderErrorResponse(ctx, stdhttp.StatusNotFound, "There is no wiki entry at this address.")
		default:
			s.recordError(ctx, err, "loading wiki entry", logrus.Fields{"slug": slug})
			return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "The wiki entry could not be loaded right now.")
		}
	}

	if !entry.Published {
		return s.renderErrorResponse(ctx, stdhttp.StatusNotFound, "There is no wiki entry at this address.")
	}

	body, err := renderComponent(ctx, templates.EntryPage(templates.EntryPageData{
		Term:        entry.Term,
		Definition:  entry.Definition,
		ContentHTML: entry.Content,
		Aliases:     entry.Aliases,
		UpdatedAt:   entry.UpdatedAt.UTC().Format(time.DateOnly),
	}))
	if err != nil {
		s.recordError(ctx, err, "rendering wiki entry", logrus.Fields{"slug": slug})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "The wiki entry could not be rendered right now.")
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

// pendingPage renders the placeholder behind a pending href. Every spelling whose
// pending slug matches contributes to the reference count.
func (s *Server) pendingPage(ctx context.Context, slug string) (*htmlResponse, error) {
	groups, err := s.wiki.PendingGroupedByTerm(ctx)
	if err != nil {
		s.recordError(ctx, err, "loading pending terms", logrus.Fields{"slug": slug})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "This page could not be loaded right now.")
	}

	data := templates.PendingPageData{
		Term: strings.ReplaceAll(strings.TrimPrefix(slug, "pending-"), "-", " "),
	}
	matched := false
	for _, group := range groups {
		if wiki.PendingSlug(group.Term) != slug {
			continue
		}
		if !matched {
			data.Term = group.Term
			matched = true
		}
		data.References += group.Count
	}

	body, err := renderComponent(ctx, templates.PendingPage(data))
	if err != nil {
		s.recordError(ctx, err, "rendering pending page", logrus.Fields{"slug": slug})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "This page could not be rendered right now.")
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) healthHandler(ctx context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{}
	resp.Body.Status = "ok"
	resp.Body.Database = "ok"

	sqlDB, err := db.SQLDB(s.db)
	if err != nil {
		s.recordError(ctx, err, "obtaining sql db", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
	} else if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
		s.recordError(ctx, pingErr, "pinging database", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
	}

	if resp.Status == 0 {
		resp.Status = stdhttp.StatusOK
	}

	return resp, nil
}

func newHTMLResponse(status int, body []byte) *htmlResponse {
	return &htmlResponse{
		Status:      status,
		ContentType: htmlContentType,
		Body:        body,
	}
}

func htmlOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}

		statusCodes := append([]int{stdhttp.StatusOK}, statuses...)
		for _, status := range statusCodes {
			code := strconv.Itoa(status)
			op.Responses[code] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					htmlContentType: {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			}
		}
	}
}

func (s *Server) renderErrorResponse(ctx context.Context, status int, message string) (*htmlResponse, error) {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))
	template := templates.ErrorPage(templates.ErrorPageData{
		StatusLabel: label,
		Message:     message,
	})

	body, err := renderComponent(ctx, template)
	if err != nil {
		s.recordError(ctx, err, "rendering error page", logrus.Fields{"status": status})
		fallback := []byte(fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>", label, message))
		return newHTMLResponse(status, fallback), nil
	}

	return newHTMLResponse(status, body), nil
}
