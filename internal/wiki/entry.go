package wiki

import (
	"time"

	"wikilinks/app/internal/content"
)

// Name kinds stored in wiki_entry_names.
const (
	nameKindTerm  = "term"
	nameKindAlias = "alias"
)

// EntryRecord is the persisted form of a wiki entry.
type EntryRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Term       string    `gorm:"size:255;not null"`
	Slug       string    `gorm:"size:255;not null;uniqueIndex:idx_wiki_entries_slug"`
	Definition string    `gorm:"type:text;not null"`
	Content    string    `gorm:"type:text;not null"`
	Published  bool      `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName defines the table name for wiki entries.
func (EntryRecord) TableName() string {
	return "wiki_entries"
}

// NameRecord is one name an entry answers to: its term or one of its aliases.
// NameKey is unique across all entries.
type NameRecord struct {
	ID       uint   `gorm:"primaryKey"`
	EntryID  string `gorm:"size:36;not null;index:idx_wiki_entry_names_entry"`
	Kind     string `gorm:"size:16;not null"`
	Position int    `gorm:"not null"`
	Name     string `gorm:"size:255;not null"`
	NameKey  string `gorm:"size:255;not null;uniqueIndex:idx_wiki_entry_names_key"`
}

// TableName defines the table name for entry names.
func (NameRecord) TableName() string {
	return "wiki_entry_names"
}

// PendingRecord is the persisted form of a pending link.
type PendingRecord struct {
	ID          string       `gorm:"primaryKey;size:36"`
	Term        string       `gorm:"size:255;not null;uniqueIndex:idx_pending_wiki_links_reference,priority:1"`
	TermKey     string       `gorm:"size:255;not null;index:idx_pending_wiki_links_term_key"`
	ContentType content.Type `gorm:"size:32;not null;uniqueIndex:idx_pending_wiki_links_reference,priority:2;index:idx_pending_wiki_links_content,priority:1"`
	ContentID   string       `gorm:"size:64;not null;uniqueIndex:idx_pending_wiki_links_reference,priority:3;index:idx_pending_wiki_links_content,priority:2"`
	Context     *string      `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;index"`
}

// TableName defines the table name for pending links.
func (PendingRecord) TableName() string {
	return "pending_wiki_links"
}

// ContentLinkRecord is the persisted form of a resolved in-place link.
type ContentLinkRecord struct {
	ID          string       `gorm:"primaryKey;size:36"`
	EntryID     string       `gorm:"size:36;not null;index;uniqueIndex:idx_content_wiki_links_reference,priority:1"`
	ContentType content.Type `gorm:"size:32;not null;uniqueIndex:idx_content_wiki_links_reference,priority:2"`
	ContentID   string       `gorm:"size:64;not null;uniqueIndex:idx_content_wiki_links_reference,priority:3"`
	AnchorText  string       `gorm:"size:255;not null;uniqueIndex:idx_content_wiki_links_reference,priority:4"`
	CreatedAt   time.Time    `gorm:"not null"`
}

// TableName defines the table name for content links.
func (ContentLinkRecord) TableName() string {
	return "content_wiki_links"
}

// Entry is a canonical wiki entry together with its ordered aliases.
type Entry struct {
	ID         string    `json:"id"`
	Term       string    `json:"term"`
	Slug       string    `json:"slug"`
	Definition string    `json:"definition"`
	Content    string    `json:"content"`
	Aliases    []string  `json:"aliases"`
	Published  bool      `json:"published"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Names returns the term followed by every alias.
func (e *Entry) Names() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.Term)
	return append(names, e.Aliases...)
}

// PendingLink is a reference to a term that has no entry yet.
type PendingLink struct {
	ID          string       `json:"id"`
	Term        string       `json:"term"`
	ContentType content.Type `json:"content_type"`
	ContentID   string       `json:"content_id"`
	Context     *string      `json:"context,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// PendingWithContent is a pending link joined with the referencing content title.
// ContentTitle is nil when the content no longer exists.
type PendingWithContent struct {
	PendingLink
	ContentTitle *string `json:"content_title"`
}

// TermGroup aggregates pending links sharing the same literal term.
type TermGroup struct {
	Term         string    `json:"term"`
	Count        int64     `json:"count"`
	FirstCreated time.Time `json:"first_created"`
	LastCreated  time.Time `json:"last_created"`
}

// PendingCounts summarises the pending link table.
type PendingCounts struct {
	Total       int64 `json:"total"`
	UniqueTerms int64 `json:"unique_terms"`
}

// ContentLink is a resolved link from a content item to an entry. EntrySlug and
// EntryTerm are nil when the entry has since been deleted.
type ContentLink struct {
	ID          string       `json:"id"`
	EntryID     string       `json:"entry_id"`
	ContentType content.Type `json:"content_type"`
	ContentID   string       `json:"content_id"`
	AnchorText  string       `json:"anchor_text"`
	CreatedAt   time.Time    `json:"created_at"`
	EntrySlug   *string      `json:"entry_slug"`
	EntryTerm   *string      `json:"entry_term"`
}

// ContentOverview collects the wiki state of a single content item.
type ContentOverview struct {
	ContentType content.Type  `json:"content_type"`
	ContentID   string        `json:"content_id"`
	Title       *string       `json:"title"`
	Pending     []PendingLink `json:"pending"`
	Links       []ContentLink `json:"links"`
}

// Resolution statuses.
const (
	StatusResolved = "resolved"
	StatusPending  = "pending"
)

// Resolution answers what a link to Term would point at right now.
type Resolution struct {
	Term         string `json:"term"`
	Status       string `json:"status"`
	Slug         string `json:"slug"`
	Href         string `json:"href"`
	EntryID      string `json:"entry_id,omitempty"`
	PendingCount int64  `json:"pending_count"`
	Recorded     bool   `json:"recorded,omitempty"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Pagination is a normalised page request.
type Pagination struct {
	Page  int
	Limit int
}

// NewPagination clamps page and limit to their defaults and bounds.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Pagination{Page: page, Limit: limit}
}

// Offset is the number of rows skipped before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

func newPage[T any](items []T, total int64, p Pagination) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return Page[T]{Items: items, Total: total, Page: p.Page, Limit: p.Limit, TotalPages: totalPages}
}

// CreateEntryInput carries the fields of a new entry.
type CreateEntryInput struct {
	Term       string   `validate:"required,max=255"`
	Slug       string   `validate:"required,max=255"`
	Definition string   `validate:"required"`
	Content    string   `validate:"-"`
	Aliases    []string `validate:"dive,max=255"`
	Published  bool     `validate:"-"`
}

// UpdateEntryInput carries the fields to change. Nil fields are left untouched.
type UpdateEntryInput struct {
	Term       *string   `validate:"omitnil,min=1,max=255"`
	Slug       *string   `validate:"omitnil,min=1,max=255"`
	Definition *string   `validate:"omitnil,min=1"`
	Content    *string   `validate:"-"`
	Aliases    *[]string `validate:"-"`
	Published  *bool     `validate:"-"`
}

// ListEntriesInput filters and pages the entry listing.
type ListEntriesInput struct {
	Published *bool
	Page      int
	Limit     int
}

// CreatePendingLinkInput carries the fields of a new pending link.
type CreatePendingLinkInput struct {
	Term        string       `validate:"required,max=255"`
	ContentType content.Type `validate:"required"`
	ContentID   string       `validate:"required,max=64"`
	Context     *string      `validate:"-"`
}

// CreateContentLinkInput carries the fields of a new content link.
type CreateContentLinkInput struct {
	EntryID     string       `validate:"required"`
	ContentType content.Type `validate:"required"`
	ContentID   string       `validate:"required,max=64"`
	AnchorText  string       `validate:"required,max=255"`
}

// ScanInput is a content body to extract wiki references from.
type ScanInput struct {
	ContentType content.Type `validate:"required"`
	ContentID   string       `validate:"required,max=64"`
	Body        string       `validate:"-"`
}
