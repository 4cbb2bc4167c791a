package http

import (
	"context"
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/content"
	"wikilinks/app/internal/wiki"
)

var bearerSecurity = []map[string][]string{{bearerScheme: {}}}

type idInput struct {
	ID string `path:"id"`
}

type slugInput struct {
	Slug string `path:"slug"`
}

type termPathInput struct {
	Term string `path:"term"`
}

type contentRefInput struct {
	Type string `path:"type" doc:"Content type, blog or education"`
	ID   string `path:"id"`
}

type pageQueryInput struct {
	Page  int `query:"page" minimum:"0" doc:"1-based page number, defaults to 1"`
	Limit int `query:"limit" minimum:"0" doc:"Page size, defaults to 20 and is capped at 100"`
}

type listEntriesInput struct {
	Published string `query:"published" doc:"Filter by published flag, true or false"`
	Page      int    `query:"page" minimum:"0" doc:"1-based page number, defaults to 1"`
	Limit     int    `query:"limit" minimum:"0" doc:"Page size, defaults to 20 and is capped at 100"`
}

type resolveInput struct {
	Term string `query:"term"`
}

type createEntryInput struct {
	Body struct {
		Term       string   `json:"term,omitempty"`
		Slug       string   `json:"slug,omitempty"`
		Definition string   `json:"definition,omitempty"`
		Content    string   `json:"content,omitempty"`
		Aliases    []string `json:"aliases,omitempty"`
		Published  bool     `json:"published,omitempty"`
	}
}

type updateEntryInput struct {
	ID   string `path:"id"`
	Body struct {
		Term       *string   `json:"term,omitempty"`
		Slug       *string   `json:"slug,omitempty"`
		Definition *string   `json:"definition,omitempty"`
		Content    *string   `json:"content,omitempty"`
		Aliases    *[]string `json:"aliases,omitempty"`
		Published  *bool     `json:"published,omitempty"`
	}
}

type addAliasInput struct {
	ID   string `path:"id"`
	Body struct {
		Alias string `json:"alias,omitempty"`
	}
}

type removeAliasInput struct {
	ID    string `path:"id"`
	Alias string `path:"alias"`
}

type createPendingInput struct {
	Body struct {
		Term        string  `json:"term,omitempty"`
		ContentType string  `json:"content_type,omitempty"`
		ContentID   string  `json:"content_id,omitempty"`
		Context     *string `json:"context,omitempty"`
	}
}

type scanInput struct {
	Body struct {
		ContentType string `json:"content_type,omitempty"`
		ContentID   string `json:"content_id,omitempty"`
		Body        string `json:"body,omitempty" doc:"HTML body; elements carrying data-wiki-term are references"`
	}
}

type createLinkInput struct {
	Body struct {
		EntryID     string `json:"entry_id,omitempty"`
		ContentType string `json:"content_type,omitempty"`
		ContentID   string `json:"content_id,omitempty"`
		AnchorText  string `json:"anchor_text,omitempty"`
	}
}

type entryOutput struct {
	Body *wiki.Entry
}

type entryPageOutput struct {
	Body wiki.Page[wiki.Entry]
}

type pendingOutput struct {
	Body *wiki.PendingLink
}

type pendingListOutput struct {
	Body []wiki.PendingLink
}

type pendingPageOutput struct {
	Body wiki.Page[wiki.PendingWithContent]
}

type termGroupsOutput struct {
	Body []wiki.TermGroup
}

type pendingCountsOutput struct {
	Body wiki.PendingCounts
}

type deletedOutput struct {
	Body struct {
		Deleted int64 `json:"deleted"`
	}
}

type resolutionOutput struct {
	Body *wiki.Resolution
}

type scanOutput struct {
	Body struct {
		Resolutions []wiki.Resolution `json:"resolutions"`
	}
}

type linkOutput struct {
	Body *wiki.ContentLink
}

type linksOutput struct {
	Body []wiki.ContentLink
}

type overviewOutput struct {
	Body *wiki.ContentOverview
}

func operation(id, method, path, summary, tag string) huma.Operation {
	return huma.Operation{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Tags:        []string{tag},
	}
}

func protected(op huma.Operation) huma.Operation {
	op.Security = bearerSecurity
	op.Errors = append(op.Errors, stdhttp.StatusUnauthorized)
	return op
}

func created(op huma.Operation) huma.Operation {
	op.DefaultStatus = stdhttp.StatusCreated
	return op
}

func (s *Server) registerEntryRoutes() {
	huma.Register(s.api, operation("list-entries", stdhttp.MethodGet, "/api/wiki/entries", "List wiki entries", "entries"), s.listEntriesHandler)
	huma.Register(s.api, operation("get-entry", stdhttp.MethodGet, "/api/wiki/entries/{id}", "Fetch a wiki entry by id", "entries"), s.getEntryHandler)
	huma.Register(s.api, operation("get-entry-by-slug", stdhttp.MethodGet, "/api/wiki/slug/{slug}", "Fetch a wiki entry by slug", "entries"), s.getEntryBySlugHandler)

	huma.Register(s.api, created(protected(operation("create-entry", stdhttp.MethodPost, "/api/wiki/entries", "Create a wiki entry", "entries"))), s.createEntryHandler)
	huma.Register(s.api, protected(operation("update-entry", stdhttp.MethodPatch, "/api/wiki/entries/{id}", "Update a wiki entry", "entries")), s.updateEntryHandler)
	huma.Register(s.api, protected(operation("delete-entry", stdhttp.MethodDelete, "/api/wiki/entries/{id}", "Delete a wiki entry", "entries")), s.deleteEntryHandler)
	huma.Register(s.api, protected(operation("add-alias", stdhttp.MethodPost, "/api/wiki/entries/{id}/aliases", "Add an alias to an entry", "entries")), s.addAliasHandler)
	huma.Register(s.api, protected(operation("remove-alias", stdhttp.MethodDelete, "/api/wiki/entries/{id}/aliases/{alias}", "Remove an alias from an entry", "entries")), s.removeAliasHandler)
}

func (s *Server) registerPendingRoutes() {
	huma.Register(s.api, operation("list-pending", stdhttp.MethodGet, "/api/wiki/pending", "List pending links with content titles", "pending"), s.listPendingHandler)
	huma.Register(s.api, operation("group-pending", stdhttp.MethodGet, "/api/wiki/pending/grouped", "Group pending links by term", "pending"), s.groupPendingHandler)
	huma.Register(s.api, operation("count-pending", stdhttp.MethodGet, "/api/wiki/pending/count", "Count pending links", "pending"), s.countPendingHandler)
	huma.Register(s.api, operation("pending-by-term", stdhttp.MethodGet, "/api/wiki/pending/term/{term}", "List pending links for a term", "pending"), s.pendingByTermHandler)

	huma.Register(s.api, created(protected(operation("create-pending", stdhttp.MethodPost, "/api/wiki/pending", "Record a pending link", "pending"))), s.createPendingHandler)
	huma.Register(s.api, protected(operation("delete-pending", stdhttp.MethodDelete, "/api/wiki/pending/{id}", "Delete a pending link", "pending")), s.deletePendingHandler)
	huma.Register(s.api, protected(operation("delete-pending-by-term", stdhttp.MethodDelete, "/api/wiki/pending/term/{term}", "Delete every pending link for a term", "pending")), s.deletePendingByTermHandler)
}

func (s *Server) registerResolutionRoutes() {
	huma.Register(s.api, operation("resolve-term", stdhttp.MethodGet, "/api/wiki/resolve", "Resolve a term to its entry or pending page", "resolution"), s.resolveHandler)
	huma.Register(s.api, protected(operation("scan-content", stdhttp.MethodPost, "/api/wiki/scan", "Resolve every reference in a content body", "resolution")), s.scanHandler)
}

func (s *Server) registerLinkRoutes() {
	huma.Register(s.api, operation("entry-links", stdhttp.MethodGet, "/api/wiki/entries/{id}/links", "List content linking to an entry", "links"), s.entryLinksHandler)
	huma.Register(s.api, operation("content-overview", stdhttp.MethodGet, "/api/wiki/content/{type}/{id}", "Wiki state of one content item", "links"), s.contentOverviewHandler)

	huma.Register(s.api, created(protected(operation("create-link", stdhttp.MethodPost, "/api/wiki/links", "Record a resolved content link", "links"))), s.createLinkHandler)
	huma.Register(s.api, protected(operation("delete-link", stdhttp.MethodDelete, "/api/wiki/links/{id}", "Delete a content link", "links")), s.deleteLinkHandler)
}

func (s *Server) listEntriesHandler(ctx context.Context, input *listEntriesInput) (*entryPageOutput, error) {
	var published *bool
	if raw := strings.TrimSpace(input.Published); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, newAPIError(stdhttp.StatusBadRequest, wiki.CategoryBadRequest, "published must be true or false")
		}
		published = &value
	}

	page, err := s.wiki.ListEntries(ctx, wiki.ListEntriesInput{Published: published, Page: input.Page, Limit: input.Limit})
	if err != nil {
		return nil, s.apiError(ctx, err, "listing entries", nil)
	}
	return &entryPageOutput{Body: page}, nil
}

func (s *Server) getEntryHandler(ctx context.Context, input *idInput) (*entryOutput, error) {
	entry, err := s.wiki.GetEntryByID(ctx, input.ID)
	if err != nil {
		return nil, s.apiError(ctx, err, "loading entry", logrus.Fields{"entry_id": input.ID})
	}
	return &entryOutput{Body: entry}, nil
}

func (s *Server) getEntryBySlugHandler(ctx context.Context, input *slugInput) (*entryOutput, error) {
	entry, err := s.wiki.GetEntryBySlug(ctx, input.Slug)
	if err != nil {
		return nil, s.apiError(ctx, err, "loading entry by slug", logrus.Fields{"slug": input.Slug})
	}
	return &entryOutput{Body: entry}, nil
}

func (s *Server) createEntryHandler(ctx context.Context, input *createEntryInput) (*entryOutput, error) {
	entry, err := s.wiki.CreateEntry(ctx, wiki.CreateEntryInput{
		Term:       input.Body.Term,
		Slug:       input.Body.Slug,
		Definition: input.Body.Definition,
		Content:    input.Body.Content,
		Aliases:    input.Body.Aliases,
		Published:  input.Body.Published,
	})
	if err != nil {
		return nil, s.apiError(ctx, err, "creating entry", logrus.Fields{"term": input.Body.Term})
	}

	s.invalidateReads(ctx)
	return &entryOutput{Body: entry}, nil
}

func (s *Server) updateEntryHandler(ctx context.Context, input *updateEntryInput) (*entryOutput, error) {
	entry, err := s.wiki.UpdateEntry(ctx, input.ID, wiki.UpdateEntryInput{
		Term:       input.Body.Term,
		Slug:       input.Body.Slug,
		Definition: input.Body.Definition,
		Content:    input.Body.Content,
		Aliases:    input.Body.Aliases,
		Published:  input.Body.Published,
	})
	if err != nil {
		return nil, s.apiError(ctx, err, "updating entry", logrus.Fields{"entry_id": input.ID})
	}

	s.invalidateReads(ctx)
	return &entryOutput{Body: entry}, nil
}

func (s *Server) deleteEntryHandler(ctx context.Context, input *idInput) (*struct{}, error) {
	if err := s.wiki.DeleteEntry(ctx, input.ID); err != nil {
		return nil, s.apiError(ctx, err, "deleting entry", logrus.Fields{"entry_id": input.ID})
	}

	s.invalidateReads(ctx)
	return nil, nil
}

func (s *Server) addAliasHandler(ctx context.Context, input *addAliasInput) (*entryOutput, error) {
	entry, err := s.wiki.AddAlias(ctx, input.ID, input.Body.Alias)
	if err != nil {
		return nil, s.apiError(ctx, err, "adding alias", logrus.Fields{"entry_id": input.ID, "alias": input.Body.Alias})
	}

	s.invalidateReads(ctx)
	return &entryOutput{Body: entry}, nil
}

func (s *Server) removeAliasHandler(ctx context.Context, input *removeAliasInput) (*entryOutput, error) {
	entry, err := s.wiki.RemoveAlias(ctx, input.ID, input.Alias)
	if err != nil {
		return nil, s.apiError(ctx, err, "removing alias", logrus.Fields{"entry_id": input.ID, "alias": input.Alias})
	}

	s.invalidateReads(ctx)
	return &entryOutput{Body: entry}, nil
}

func (s *Server) listPendingHandler(ctx context.Context, input *pageQueryInput) (*pendingPageOutput, error) {
	page, err := s.wiki.PendingWithContent(ctx, input.Page, input.Limit)
	if err != nil {
		return nil, s.apiError(ctx, err, "listing pending links", nil)
	}
	return &pendingPageOutput{Body: page}, nil
}

func (s *Server) groupPendingHandler(ctx context.Context, _ *struct{}) (*termGroupsOutput, error) {
	groups, err := s.wiki.PendingGroupedByTerm(ctx)
	if err != nil {
		return nil, s.apiError(ctx, err, "grouping pending links", nil)
	}
	if groups == nil {
		groups = []wiki.TermGroup{}
	}
	return &termGroupsOutput{Body: groups}, nil
}

func (s *Server) countPendingHandler(ctx context.Context, _ *struct{}) (*pendingCountsOutput, error) {
	counts, err := s.wiki.PendingCounts(ctx)
	if err != nil {
		return nil, s.apiError(ctx, err, "counting pending links", nil)
	}
	return &pendingCountsOutput{Body: counts}, nil
}

func (s *Server) pendingByTermHandler(ctx context.Context, input *termPathInput) (*pendingListOutput, error) {
	links, err := s.wiki.PendingByTerm(ctx, input.Term)
	if err != nil {
		return nil, s.apiError(ctx, err, "listing pending links for term", logrus.Fields{"term": input.Term})
	}
	if links == nil {
		links = []wiki.PendingLink{}
	}
	return &pendingListOutput{Body: links}, nil
}

func (s *Server) createPendingHandler(ctx context.Context, input *createPendingInput) (*pendingOutput, error) {
	link, err := s.wiki.CreatePendingLink(ctx, wiki.CreatePendingLinkInput{
		Term:        input.Body.Term,
		ContentType: content.Type(input.Body.ContentType),
		ContentID:   input.Body.ContentID,
		Context:     input.Body.Context,
	})
	if err != nil {
		return nil, s.apiError(ctx, err, "creating pending link", logrus.Fields{"term": input.Body.Term})
	}

	s.invalidateReads(ctx)
	return &pendingOutput{Body: link}, nil
}

func (s *Server) deletePendingHandler(ctx context.Context, input *idInput) (*struct{}, error) {
	if err := s.wiki.DeletePendingLink(ctx, input.ID); err != nil {
		return nil, s.apiError(ctx, err, "deleting pending link", logrus.Fields{"pending_id": input.ID})
	}

	s.invalidateReads(ctx)
	return nil, nil
}

func (s *Server) deletePendingByTermHandler(ctx context.Context, input *termPathInput) (*deletedOutput, error) {
	deleted, err := s.wiki.DeletePendingByTerm(ctx, input.Term)
	if err != nil {
		return nil, s.apiError(ctx, err, "deleting pending links for term", logrus.Fields{"term": input.Term})
	}

	s.invalidateReads(ctx)
	out := &deletedOutput{}
	out.Body.Deleted = deleted
	return out, nil
}

func (s *Server) resolveHandler(ctx context.Context, input *resolveInput) (*resolutionOutput, error) {
	resolution, err := s.wiki.Resolve(ctx, input.Term)
	if err != nil {
		return nil, s.apiError(ctx, err, "resolving term", logrus.Fields{"term": input.Term})
	}
	return &resolutionOutput{Body: resolution}, nil
}

func (s *Server) scanHandler(ctx context.Context, input *scanInput) (*scanOutput, error) {
	resolutions, err := s.wiki.ScanContent(ctx, wiki.ScanInput{
		ContentType: content.Type(input.Body.ContentType),
		ContentID:   input.Body.ContentID,
		Body:        input.Body.Body,
	})
	// A scan that fails part way may already have recorded pending links.
	s.invalidateReads(ctx)
	if err != nil {
		return nil, s.apiError(ctx, err, "scanning content", logrus.Fields{
			"content_type": input.Body.ContentType,
			"content_id":   input.Body.ContentID,
		})
	}

	out := &scanOutput{}
	out.Body.Resolutions = resolutions
	return out, nil
}

func (s *Server) entryLinksHandler(ctx context.Context, input *idInput) (*linksOutput, error) {
	links, err := s.wiki.ContentLinksForEntry(ctx, input.ID)
	if err != nil {
		return nil, s.apiError(ctx, err, "listing entry links", logrus.Fields{"entry_id": input.ID})
	}
	if links == nil {
		links = []wiki.ContentLink{}
	}
	return &linksOutput{Body: links}, nil
}

func (s *Server) contentOverviewHandler(ctx context.Context, input *contentRefInput) (*overviewOutput, error) {
	overview, err := s.wiki.ContentOverview(ctx, content.Type(input.Type), input.ID)
	if err != nil {
		return nil, s.apiError(ctx, err, "loading content overview", logrus.Fields{"content_type": input.Type, "content_id": input.ID})
	}
	return &overviewOutput{Body: overview}, nil
}

func (s *Server) createLinkHandler(ctx context.Context, input *createLinkInput) (*linkOutput, error) {
	link, err := s.wiki.CreateContentLink(ctx, wiki.CreateContentLinkInput{
		EntryID:     input.Body.EntryID,
		ContentType: content.Type(input.Body.ContentType),
		ContentID:   input.Body.ContentID,
		AnchorText:  input.Body.AnchorText,
	})
	if err != nil {
		return nil, s.apiError(ctx, err, "creating content link", logrus.Fields{"entry_id": input.Body.EntryID})
	}

	s.invalidateReads(ctx)
	return &linkOutput{Body: link}, nil
}

func (s *Server) deleteLinkHandler(ctx context.Context, input *idInput) (*struct{}, error) {
	if err := s.wiki.DeleteContentLink(ctx, input.ID); err != nil {
		return nil, s.apiError(ctx, err, "deleting content link", logrus.Fields{"link_id": input.ID})
	}

	s.invalidateReads(ctx)
	return nil, nil
}
