package wiki

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/content"
	"wikilinks/app/internal/events"
)

// Service defines the wiki entry, pending link and resolution operations.
type Service interface {
	CreateEntry(ctx context.Context, input CreateEntryInput) (*Entry, error)
	GetEntryBySlug(ctx context.Context, slug string) (*Entry, error)
	GetEntryByID(ctx context.Context, id string) (*Entry, error)
	FindByTermOrAlias(ctx context.Context, term string) (*Entry, error)
	ListEntries(ctx context.Context, input ListEntriesInput) (Page[Entry], error)
	AddAlias(ctx context.Context, id, alias string) (*Entry, error)
	RemoveAlias(ctx context.Context, id, alias string) (*Entry, error)
	UpdateEntry(ctx context.Context, id string, input UpdateEntryInput) (*Entry, error)
	DeleteEntry(ctx context.Context, id string) error

	CreatePendingLink(ctx context.Context, input CreatePendingLinkInput) (*PendingLink, error)
	PendingByTerm(ctx context.Context, term string) ([]PendingLink, error)
	PendingForContent(ctx context.Context, contentType content.Type, contentID string) ([]PendingLink, error)
	PendingGroupedByTerm(ctx context.Context) ([]TermGroup, error)
	PendingWithContent(ctx context.Context, page, limit int) (Page[PendingWithContent], error)
	PendingCounts(ctx context.Context) (PendingCounts, error)
	DeletePendingByTerm(ctx context.Context, term string) (int64, error)
	DeletePendingLink(ctx context.Context, id string) error

	Resolve(ctx context.Context, term string) (*Resolution, error)
	ScanContent(ctx context.Context, input ScanInput) ([]Resolution, error)

	CreateContentLink(ctx context.Context, input CreateContentLinkInput) (*ContentLink, error)
	ContentLinksForContent(ctx context.Context, contentType content.Type, contentID string) ([]ContentLink, error)
	ContentLinksForEntry(ctx context.Context, entryID string) ([]ContentLink, error)
	DeleteContentLink(ctx context.Context, id string) error
	ContentOverview(ctx context.Context, contentType content.Type, contentID string) (*ContentOverview, error)
}

// TitleReader looks up the title of a content item, returning nil when it is unknown.
type TitleReader interface {
	Title(ctx context.Context, contentType content.Type, id string) (*string, error)
}

// ServiceDependencies lists the collaborators of the wiki service. Publisher may be
// nil, in which case no events are published.
type ServiceDependencies struct {
	Entries   EntryRepository
	Pending   PendingRepository
	Links     LinkRepository
	Titles    TitleReader
	Publisher events.Publisher
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
}

type service struct {
	entries   EntryRepository
	pending   PendingRepository
	links     LinkRepository
	titles    TitleReader
	publisher events.Publisher
	logger    *logrus.Logger
	sentryHub *sentry.Hub
	now       func() time.Time
	newID     func() string
}

var _ Service = (*service)(nil)

// NewService wires the wiki service with its dependencies.
func NewService(deps ServiceDependencies) (Service, error) {
	if deps.Entries == nil {
		return nil, eris.New("entry repository is required")
	}
	if deps.Pending == nil {
		return nil, eris.New("pending link repository is required")
	}
	if deps.Links == nil {
		return nil, eris.New("content link repository is required")
	}
	if deps.Titles == nil {
		return nil, eris.New("content title reader is required")
	}

	return &service{
		entries:   deps.Entries,
		pending:   deps.Pending,
		links:     deps.Links,
		titles:    deps.Titles,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		sentryHub: deps.SentryHub,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}, nil
}

func (s *service) CreateEntry(ctx context.Context, input CreateEntryInput) (*Entry, error) {
	input.Term = strings.TrimSpace(input.Term)
	input.Slug = strings.TrimSpace(input.Slug)
	input.Definition = strings.TrimSpace(input.Definition)

	if err := validateInput(input); err != nil {
		return nil, err
	}

	if IsPendingSlug(input.Slug) {
		return nil, badRequestf("slug %q uses the reserved %q prefix", input.Slug, pendingSlugPrefix)
	}

	aliases, err := cleanAliases(input.Term, input.Aliases)
	if err != nil {
		return nil, err
	}

	existing, err := s.entries.GetBySlug(ctx, input.Slug)
	if err != nil {
		return nil, s.internal(logrus.Fields{"slug": input.Slug}, err, "checking entry slug")
	}
	if existing != nil {
		return nil, conflictf("an entry with slug %q already exists", input.Slug)
	}

	if err := s.ensureUnclaimed(ctx, "", append([]string{input.Term}, aliases...)); err != nil {
		return nil, err
	}

	now := s.now()
	record := &EntryRecord{
		ID:         s.newID(),
		Term:       input.Term,
		Slug:       input.Slug,
		Definition: input.Definition,
		Content:    input.Content,
		Published:  input.Published,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	entry, err := s.entries.Create(ctx, record, aliases)
	if err != nil {
		return nil, s.internal(logrus.Fields{"slug": input.Slug}, err, "creating entry")
	}

	s.publish(ctx, NamesClaimed{EntryID: entry.ID, Slug: entry.Slug, Names: entry.Names(), Reason: ReasonEntryCreated})

	return entry, nil
}

func (s *service) GetEntryBySlug(ctx context.Context, slug string) (*Entry, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return nil, badRequestf("slug is required")
	}

	entry, err := s.entries.GetBySlug(ctx, trimmed)
	if err != nil {
		return nil, s.internal(logrus.Fields{"slug": trimmed}, err, "retrieving entry by slug")
	}
	if entry == nil {
		return nil, notFoundf("wiki entry %q not found", trimmed)
	}

	return entry, nil
}

func (s *service) GetEntryByID(ctx context.Context, id string) (*Entry, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, badRequestf("entry id is required")
	}

	entry, err := s.entries.GetByID(ctx, trimmed)
	if err != nil {
		return nil, s.internal(logrus.Fields{"entry_id": trimmed}, err, "retrieving entry by id")
	}
	if entry == nil {
		return nil, notFoundf("wiki entry %s not found", trimmed)
	}

	return entry, nil
}

// FindByTermOrAlias looks up the entry answering to term. Drafts count.
func (s *service) FindByTermOrAlias(ctx context.Context, term string) (*Entry, error) {
	key := NormalizeTerm(term)
	if key == "" {
		return nil, nil
	}

	entry, err := s.entries.FindByNameKey(ctx, key)
	if err != nil {
		return nil, s.internal(logrus.Fields{"term": term}, err, "looking up entry by term or alias")
	}

	return entry, nil
}

func (s *service) ListEntries(ctx context.Context, input ListEntriesInput) (Page[Entry], error) {
	page := NewPagination(input.Page, input.Limit)

	entries, total, err := s.entries.List(ctx, input.Published, page)
	if err != nil {
		return Page[Entry]{}, s.internal(nil, err, "listing entries")
	}

	return newPage(entries, total, page), nil
}

func (s *service) AddAlias(ctx context.Context, id, alias string) (*Entry, error) {
	trimmed := strings.TrimSpace(alias)
	if trimmed == "" {
		return nil, badRequestf("alias must not be empty")
	}
	if err := checkAliasLength(trimmed); err != nil {
		return nil, err
	}

	entry, err := s.GetEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := NormalizeTerm(trimmed)
	if NormalizeTerm(entry.Term) == key {
		return nil, conflictf("%q is already the term of entry %q", trimmed, entry.Slug)
	}
	for _, existing := range entry.Aliases {
		if NormalizeTerm(existing) == key {
			return nil, conflictf("alias %q already exists on entry %q", existing, entry.Slug)
		}
	}

	if err := s.ensureUnclaimed(ctx, entry.ID, []string{trimmed}); err != nil {
		return nil, err
	}

	updated, err := s.entries.Update(ctx, entry.ID, EntryChanges{
		Names:     append(entry.Names(), trimmed),
		UpdatedAt: s.now(),
	})
	if err != nil {
		return nil, s.internal(logrus.Fields{"entry_id": entry.ID, "alias": trimmed}, err, "adding alias")
	}
	if updated == nil {
		return nil, notFoundf("wiki entry %s not found", entry.ID)
	}

	s.publish(ctx, NamesClaimed{EntryID: updated.ID, Slug: updated.Slug, Names: []string{trimmed}, Reason: ReasonAliasAdded})

	return updated, nil
}

func (s *service) RemoveAlias(ctx context.Context, id, alias string) (*Entry, error) {
	trimmed := strings.TrimSpace(alias)
	if trimmed == "" {
		return nil, badRequestf("alias must not be empty")
	}

	entry, err := s.GetEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := NormalizeTerm(trimmed)
	remaining := make([]string, 0, len(entry.Aliases))
	for _, existing := range entry.Aliases {
		if NormalizeTerm(existing) != key {
			remaining = append(remaining, existing)
		}
	}

	if len(remaining) == len(entry.Aliases) {
		return entry, nil
	}

	updated, err := s.entries.Update(ctx, entry.ID, EntryChanges{
		Names:     append([]string{entry.Term}, remaining...),
		UpdatedAt: s.now(),
	})
	if err != nil {
		return nil, s.internal(logrus.Fields{"entry_id": entry.ID, "alias": trimmed}, err, "removing alias")
	}
	if updated == nil {
		return nil, notFoundf("wiki entry %s not found", entry.ID)
	}

	return updated, nil
}

func (s *service) UpdateEntry(ctx context.Context, id string, input UpdateEntryInput) (*Entry, error) {
	entry, err := s.GetEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	input.Term = trimmedPtr(input.Term)
	input.Slug = trimmedPtr(input.Slug)
	input.Definition = trimmedPtr(input.Definition)

	if err := validateInput(input); err != nil {
		return nil, err
	}

	columns := make(map[string]any)

	if input.Slug != nil && *input.Slug != entry.Slug {
		if IsPendingSlug(*input.Slug) {
			return nil, badRequestf("slug %q uses the reserved %q prefix", *input.Slug, pendingSlugPrefix)
		}

		existing, err := s.entries.GetBySlug(ctx, *input.Slug)
		if err != nil {
			return nil, s.internal(logrus.Fields{"slug": *input.Slug}, err, "checking entry slug")
		}
		if existing != nil && existing.ID != entry.ID {
			return nil, conflictf("an entry with slug %q already exists", *input.Slug)
		}
		columns["slug"] = *input.Slug
	}

	if input.Definition != nil {
		columns["definition"] = *input.Definition
	}
	if input.Content != nil {
		columns["content"] = *input.Content
	}
	if input.Published != nil {
		columns["published"] = *input.Published
	}

	var names, claimed []string
	if input.Term != nil || input.Aliases != nil {
		term := entry.Term
		if input.Term != nil {
			term = *input.Term
			columns["term"] = term
		}

		aliases := entry.Aliases
		if input.Aliases != nil {
			aliases = *input.Aliases
		}

		cleaned, err := cleanAliases(term, aliases)
		if err != nil {
			return nil, err
		}

		names = append([]string{term}, cleaned...)
		if err := s.ensureUnclaimed(ctx, entry.ID, names); err != nil {
			return nil, err
		}

		previous := mapset.NewThreadUnsafeSet[string]()
		for _, name := range entry.Names() {
			previous.Add(NormalizeTerm(name))
		}
		for _, name := range names {
			if !previous.Contains(NormalizeTerm(name)) {
				claimed = append(claimed, name)
			}
		}
	}

	updated, err := s.entries.Update(ctx, entry.ID, EntryChanges{Columns: columns, Names: names, UpdatedAt: s.now()})
	if err != nil {
		return nil, s.internal(logrus.Fields{"entry_id": entry.ID}, err, "updating entry")
	}
	if updated == nil {
		return nil, notFoundf("wiki entry %s not found", entry.ID)
	}

	if len(claimed) > 0 {
		s.publish(ctx, NamesClaimed{EntryID: updated.ID, Slug: updated.Slug, Names: claimed, Reason: ReasonEntryUpdated})
	}

	return updated, nil
}

// DeleteEntry removes the entry. Pending and content links are not touched.
func (s *service) DeleteEntry(ctx context.Context, id string) error {
	entry, err := s.GetEntryByID(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.entries.Delete(ctx, entry.ID)
	if err != nil {
		return s.internal(logrus.Fields{"entry_id": entry.ID}, err, "deleting entry")
	}
	if !deleted {
		return notFoundf("wiki entry %s not found", entry.ID)
	}

	s.publish(ctx, EntryDeleted{EntryID: entry.ID, Slug: entry.Slug})

	return nil
}

func (s *service) CreatePendingLink(ctx context.Context, input CreatePendingLinkInput) (*PendingLink, error) {
	input.Term = strings.TrimSpace(input.Term)
	input.ContentID = strings.TrimSpace(input.ContentID)

	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !input.ContentType.Valid() {
		return nil, badRequestf("content_type must be one of blog, education; got %q", input.ContentType)
	}

	existing, err := s.FindByTermOrAlias(ctx, input.Term)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, conflictf("%q already has a wiki entry: /wiki/%s", input.Term, existing.Slug)
	}

	record := &PendingRecord{
		ID:          s.newID(),
		Term:        input.Term,
		TermKey:     NormalizeTerm(input.Term),
		ContentType: input.ContentType,
		ContentID:   input.ContentID,
		Context:     input.Context,
		CreatedAt:   s.now(),
	}

	if err := s.pending.Create(ctx, record); err != nil {
		return nil, s.internal(logrus.Fields{"term": input.Term}, err, "creating pending link")
	}

	link := toPendingLink(*record)
	return &link, nil
}

func (s *service) PendingByTerm(ctx context.Context, term string) ([]PendingLink, error) {
	key := NormalizeTerm(term)
	if key == "" {
		return nil, badRequestf("term is required")
	}

	links, err := s.pending.ByTermKey(ctx, key)
	if err != nil {
		return nil, s.internal(logrus.Fields{"term": term}, err, "listing pending links by term")
	}

	return links, nil
}

func (s *service) PendingForContent(ctx context.Context, contentType content.Type, contentID string) ([]PendingLink, error) {
	if err := checkContentRef(contentType, contentID); err != nil {
		return nil, err
	}

	links, err := s.pending.ForContent(ctx, contentType, strings.TrimSpace(contentID))
	if err != nil {
		return nil, s.internal(logrus.Fields{"content_type": contentType, "content_id": contentID}, err, "listing pending links for content")
	}

	return links, nil
}

func (s *service) PendingGroupedByTerm(ctx context.Context) ([]TermGroup, error) {
	groups, err := s.pending.GroupedByTerm(ctx)
	if err != nil {
		return nil, s.internal(nil, err, "grouping pending links")
	}

	return groups, nil
}

func (s *service) PendingWithContent(ctx context.Context, page, limit int) (Page[PendingWithContent], error) {
	pagination := NewPagination(page, limit)

	items, total, err := s.pending.WithContent(ctx, pagination)
	if err != nil {
		return Page[PendingWithContent]{}, s.internal(nil, err, "listing pending links with content")
	}

	return newPage(items, total, pagination), nil
}

func (s *service) PendingCounts(ctx context.Context) (PendingCounts, error) {
	counts, err := s.pending.Counts(ctx)
	if err != nil {
		return PendingCounts{}, s.internal(nil, err, "counting pending links")
	}

	return counts, nil
}

func (s *service) DeletePendingByTerm(ctx context.Context, term string) (int64, error) {
	key := NormalizeTerm(term)
	if key == "" {
		return 0, badRequestf("term is required")
	}

	deleted, err := s.pending.DeleteByTermKey(ctx, key)
	if err != nil {
		return 0, s.internal(logrus.Fields{"term": term}, err, "deleting pending links by term")
	}

	return deleted, nil
}

func (s *service) DeletePendingLink(ctx context.Context, id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return badRequestf("pending link id is required")
	}

	deleted, err := s.pending.Delete(ctx, trimmed)
	if err != nil {
		return s.internal(logrus.Fields{"pending_id": trimmed}, err, "deleting pending link")
	}
	if !deleted {
		return notFoundf("pending link %s not found", trimmed)
	}

	return nil
}

// Resolve reports where a link to term points right now.
func (s *service) Resolve(ctx context.Context, term string) (*Resolution, error) {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return nil, badRequestf("term is required")
	}

	entry, err := s.FindByTermOrAlias(ctx, trimmed)
	if err != nil {
		return nil, err
	}

	if entry != nil {
		return &Resolution{
			Term:    trimmed,
			Status:  StatusResolved,
			Slug:    entry.Slug,
			Href:    wikiHref(entry.Slug),
			EntryID: entry.ID,
		}, nil
	}

	count, err := s.pending.CountByTermKey(ctx, NormalizeTerm(trimmed))
	if err != nil {
		return nil, s.internal(logrus.Fields{"term": trimmed}, err, "counting pending links for resolution")
	}

	slug := PendingSlug(trimmed)
	return &Resolution{
		Term:         trimmed,
		Status:       StatusPending,
		Slug:         slug,
		Href:         wikiHref(slug),
		PendingCount: count,
	}, nil
}

func (s *service) CreateContentLink(ctx context.Context, input CreateContentLinkInput) (*ContentLink, error) {
	input.EntryID = strings.TrimSpace(input.EntryID)
	input.ContentID = strings.TrimSpace(input.ContentID)
	input.AnchorText = strings.TrimSpace(input.AnchorText)

	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !input.ContentType.Valid() {
		return nil, badRequestf("content_type must be one of blog, education; got %q", input.ContentType)
	}

	entry, err := s.GetEntryByID(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}

	record := &ContentLinkRecord{
		ID:          s.newID(),
		EntryID:     entry.ID,
		ContentType: input.ContentType,
		ContentID:   input.ContentID,
		AnchorText:  input.AnchorText,
		CreatedAt:   s.now(),
	}

	if err := s.links.Create(ctx, record); err != nil {
		return nil, s.internal(logrus.Fields{"entry_id": entry.ID}, err, "creating content link")
	}

	return &ContentLink{
		ID:          record.ID,
		EntryID:     record.EntryID,
		ContentType: record.ContentType,
		ContentID:   record.ContentID,
		AnchorText:  record.AnchorText,
		CreatedAt:   record.CreatedAt,
		EntrySlug:   &entry.Slug,
		EntryTerm:   &entry.Term,
	}, nil
}

func (s *service) ContentLinksForContent(ctx context.Context, contentType content.Type, contentID string) ([]ContentLink, error) {
	if err := checkContentRef(contentType, contentID); err != nil {
		return nil, err
	}

	links, err := s.links.ForContent(ctx, contentType, strings.TrimSpace(contentID))
	if err != nil {
		return nil, s.internal(logrus.Fields{"content_type": contentType, "content_id": contentID}, err, "listing content links")
	}

	return links, nil
}

// ContentLinksForEntry lists links by entry id, including links whose entry was deleted.
func (s *service) ContentLinksForEntry(ctx context.Context, entryID string) ([]ContentLink, error) {
	trimmed := strings.TrimSpace(entryID)
	if trimmed == "" {
		return nil, badRequestf("entry id is required")
	}

	links, err := s.links.ForEntry(ctx, trimmed)
	if err != nil {
		return nil, s.internal(logrus.Fields{"entry_id": trimmed}, err, "listing content links for entry")
	}

	return links, nil
}

func (s *service) DeleteContentLink(ctx context.Context, id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return badRequestf("content link id is required")
	}

	deleted, err := s.links.Delete(ctx, trimmed)
	if err != nil {
		return s.internal(logrus.Fields{"link_id": trimmed}, err, "deleting content link")
	}
	if !deleted {
		return notFoundf("content link %s not found", trimmed)
	}

	return nil
}

func (s *service) ContentOverview(ctx context.Context, contentType content.Type, contentID string) (*ContentOverview, error) {
	if err := checkContentRef(contentType, contentID); err != nil {
		return nil, err
	}
	contentID = strings.TrimSpace(contentID)

	title, err := s.titles.Title(ctx, contentType, contentID)
	if err != nil {
		return nil, s.internal(logrus.Fields{"content_type": contentType, "content_id": contentID}, err, "reading content title")
	}

	pending, err := s.PendingForContent(ctx, contentType, contentID)
	if err != nil {
		return nil, err
	}

	links, err := s.ContentLinksForContent(ctx, contentType, contentID)
	if err != nil {
		return nil, err
	}

	return &ContentOverview{
		ContentType: contentType,
		ContentID:   contentID,
		Title:       title,
		Pending:     pending,
		Links:       links,
	}, nil
}

// ensureUnclaimed fails with ErrConflict when another entry answers to any of names.
func (s *service) ensureUnclaimed(ctx context.Context, entryID string, names []string) error {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, NormalizeTerm(name))
	}

	claims, err := s.entries.Claims(ctx, keys)
	if err != nil {
		return s.internal(nil, err, "checking name claims")
	}

	for _, claim := range claims {
		if claim.EntryID != entryID {
			return conflictf("%q is already used by entry %q", claim.Name, claim.EntrySlug)
		}
	}

	return nil
}

func (s *service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event)
}

// internal records and wraps storage failures. Categorised errors pass through.
func (s *service) internal(fields logrus.Fields, err error, message string) error {
	if Classify(err) != CategoryInternal {
		return err
	}

	s.recordError(fields, err, message)
	return eris.Wrap(err, message)
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("component", "wiki.service").WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}

// cleanAliases trims aliases and drops those that repeat the term or an earlier alias
// under normalisation, keeping the first spelling. Blank aliases are rejected.
func cleanAliases(term string, aliases []string) ([]string, error) {
	seen := mapset.NewThreadUnsafeSet[string](NormalizeTerm(term))
	cleaned := make([]string, 0, len(aliases))

	for _, alias := range aliases {
		trimmed := strings.TrimSpace(alias)
		if trimmed == "" {
			return nil, badRequestf("aliases must not be empty")
		}
		if err := checkAliasLength(trimmed); err != nil {
			return nil, err
		}
		if !seen.Add(NormalizeTerm(trimmed)) {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}

	return cleaned, nil
}

func checkAliasLength(alias string) error {
	if utf8.RuneCountInString(alias) > maxTermRunes {
		return badRequestf("alias must be at most %d characters", maxTermRunes)
	}
	return nil
}

func checkContentRef(contentType content.Type, contentID string) error {
	if !contentType.Valid() {
		return badRequestf("content_type must be one of blog, education; got %q", contentType)
	}
	if strings.TrimSpace(contentID) == "" {
		return badRequestf("content_id is required")
	}
	return nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func wikiHref(slug string) string {
	return "/wiki/" + slug
}
