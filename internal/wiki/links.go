package wiki

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikilinks/app/internal/content"
	"wikilinks/app/internal/db"
)

// LinkRepository defines persistence operations for resolved content links.
type LinkRepository interface {
	Create(ctx context.Context, record *ContentLinkRecord) error
	ForContent(ctx context.Context, contentType content.Type, contentID string) ([]ContentLink, error)
	ForEntry(ctx context.Context, entryID string) ([]ContentLink, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// GormLinkRepository persists content links using a Gorm database connection.
type GormLinkRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewLinkRepository constructs a Gorm-backed content link repository.
func NewLinkRepository(gormDB *gorm.DB, logger *logrus.Logger) (*GormLinkRepository, error) {
	if gormDB == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormLinkRepository{db: gormDB, logger: logger}, nil
}

var _ LinkRepository = (*GormLinkRepository)(nil)

// Create inserts the link. The same entry, content item and anchor text fails with
// ErrConflict.
func (r *GormLinkRepository) Create(ctx context.Context, record *ContentLinkRecord) error {
	if record == nil {
		return eris.New("content link record is nil")
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return conflictf("%s %s already links %q to this entry", record.ContentType, record.ContentID, record.AnchorText)
		}
		r.logError(logrus.Fields{"entry_id": record.EntryID}, err, "creating content link")
		return eris.Wrap(err, "creating content link")
	}

	return nil
}

// ForContent returns the links of one content item, newest first.
func (r *GormLinkRepository) ForContent(ctx context.Context, contentType content.Type, contentID string) ([]ContentLink, error) {
	return r.list(ctx, "l.content_type = ? AND l.content_id = ?", contentType, contentID)
}

// ForEntry returns the links pointing at an entry id, newest first. The id need not
// belong to an existing entry.
func (r *GormLinkRepository) ForEntry(ctx context.Context, entryID string) ([]ContentLink, error) {
	return r.list(ctx, "l.entry_id = ?", entryID)
}

// Delete removes a link and reports whether it existed.
func (r *GormLinkRepository) Delete(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&ContentLinkRecord{})
	if result.Error != nil {
		r.logError(logrus.Fields{"link_id": id}, result.Error, "deleting content link")
		return false, eris.Wrapf(result.Error, "deleting content link: %s", id)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormLinkRepository) list(ctx context.Context, query string, args ...any) ([]ContentLink, error) {
	var links []ContentLink
	err := r.db.WithContext(ctx).
		Table("content_wiki_links AS l").
		Select("l.id, l.entry_id, l.content_type, l.content_id, l.anchor_text, l.created_at, e.slug AS entry_slug, e.term AS entry_term").
		Joins("LEFT JOIN wiki_entries e ON e.id = l.entry_id").
		Where(query, args...).
		Order("l.created_at DESC").
		Scan(&links).Error
	if err != nil {
		r.logError(nil, err, "listing content links")
		return nil, eris.Wrap(err, "listing content links")
	}

	if links == nil {
		links = []ContentLink{}
	}
	return links, nil
}

func (r *GormLinkRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("component", "wiki.links").WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
