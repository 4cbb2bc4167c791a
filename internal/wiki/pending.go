package wiki

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikilinks/app/internal/content"
	"wikilinks/app/internal/db"
)

// PendingRepository defines persistence operations for pending links. Term lookups
// take normalised keys; see NormalizeTerm.
type PendingRepository interface {
	Create(ctx context.Context, record *PendingRecord) error
	ByTermKey(ctx context.Context, key string) ([]PendingLink, error)
	ForContent(ctx context.Context, contentType content.Type, contentID string) ([]PendingLink, error)
	GroupedByTerm(ctx context.Context) ([]TermGroup, error)
	WithContent(ctx context.Context, page Pagination) ([]PendingWithContent, int64, error)
	Counts(ctx context.Context) (PendingCounts, error)
	CountByTermKey(ctx context.Context, key string) (int64, error)
	DistinctTermKeys(ctx context.Context) ([]string, error)
	DeleteByTermKey(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// GormPendingRepository persists pending links using a Gorm database connection.
type GormPendingRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewPendingRepository constructs a Gorm-backed pending link repository.
func NewPendingRepository(gormDB *gorm.DB, logger *logrus.Logger) (*GormPendingRepository, error) {
	if gormDB == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormPendingRepository{db: gormDB, logger: logger}, nil
}

var _ PendingRepository = (*GormPendingRepository)(nil)

// Create inserts the pending link. The same (term, content_type, content_id) triple
// fails with ErrConflict; the comparison on term is exact.
func (r *GormPendingRepository) Create(ctx context.Context, record *PendingRecord) error {
	if record == nil {
		return eris.New("pending record is nil")
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return conflictf("a pending link for %q on %s %s already exists", record.Term, record.ContentType, record.ContentID)
		}
		r.logError(logrus.Fields{"term": record.Term}, err, "creating pending link")
		return eris.Wrapf(err, "creating pending link: %s", record.Term)
	}

	return nil
}

// ByTermKey returns the pending links whose term normalises to key, newest first.
func (r *GormPendingRepository) ByTermKey(ctx context.Context, key string) ([]PendingLink, error) {
	var records []PendingRecord
	err := r.db.WithContext(ctx).
		Where("term_key = ?", key).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		r.logError(logrus.Fields{"term_key": key}, err, "listing pending links by term")
		return nil, eris.Wrapf(err, "listing pending links by term: %s", key)
	}

	return toPendingLinks(records), nil
}

// ForContent returns the pending links of one content item, newest first.
func (r *GormPendingRepository) ForContent(ctx context.Context, contentType content.Type, contentID string) ([]PendingLink, error) {
	var records []PendingRecord
	err := r.db.WithContext(ctx).
		Where("content_type = ? AND content_id = ?", contentType, contentID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		r.logError(logrus.Fields{"content_type": contentType, "content_id": contentID}, err, "listing pending links for content")
		return nil, eris.Wrap(err, "listing pending links for content")
	}

	return toPendingLinks(records), nil
}

// GroupedByTerm aggregates pending links by their literal term. Unlike every other
// lookup here it does not normalise, so "CMOS" and "cmos" form two groups.
// Groups are ordered by count, then by their most recent reference.
func (r *GormPendingRepository) GroupedByTerm(ctx context.Context) ([]TermGroup, error) {
	var records []PendingRecord
	if err := r.db.WithContext(ctx).Select("term", "created_at").Find(&records).Error; err != nil {
		r.logError(nil, err, "reading pending terms")
		return nil, eris.Wrap(err, "reading pending terms")
	}

	byTerm := make(map[string]*TermGroup)
	for _, record := range records {
		group, ok := byTerm[record.Term]
		if !ok {
			group = &TermGroup{Term: record.Term, FirstCreated: record.CreatedAt, LastCreated: record.CreatedAt}
			byTerm[record.Term] = group
		}
		group.Count++
		if record.CreatedAt.Before(group.FirstCreated) {
			group.FirstCreated = record.CreatedAt
		}
		if record.CreatedAt.After(group.LastCreated) {
			group.LastCreated = record.CreatedAt
		}
	}

	groups := make([]TermGroup, 0, len(byTerm))
	for _, group := range byTerm {
		groups = append(groups, *group)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		if !groups[i].LastCreated.Equal(groups[j].LastCreated) {
			return groups[i].LastCreated.After(groups[j].LastCreated)
		}
		return groups[i].Term < groups[j].Term
	})

	return groups, nil
}

type pendingWithContentRow struct {
	PendingRecord
	ContentTitle *string
}

// WithContent returns one page of pending links, newest first, each with the title of
// the referencing content item.
func (r *GormPendingRepository) WithContent(ctx context.Context, page Pagination) ([]PendingWithContent, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&PendingRecord{}).Count(&total).Error; err != nil {
		r.logError(nil, err, "counting pending links")
		return nil, 0, eris.Wrap(err, "counting pending links")
	}

	var rows []pendingWithContentRow
	err := r.db.WithContext(ctx).
		Table("pending_wiki_links AS p").
		Select("p.id, p.term, p.term_key, p.content_type, p.content_id, p.context, p.created_at, COALESCE(b.title, r.title) AS content_title").
		Joins("LEFT JOIN "+content.PostRecord{}.TableName()+" b ON p.content_type = ? AND b.id = p.content_id", content.TypeBlog).
		Joins("LEFT JOIN "+content.ResourceRecord{}.TableName()+" r ON p.content_type = ? AND r.id = p.content_id", content.TypeEducation).
		Order("p.created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Scan(&rows).Error
	if err != nil {
		r.logError(nil, err, "listing pending links with content")
		return nil, 0, eris.Wrap(err, "listing pending links with content")
	}

	items := make([]PendingWithContent, 0, len(rows))
	for _, row := range rows {
		items = append(items, PendingWithContent{PendingLink: toPendingLink(row.PendingRecord), ContentTitle: row.ContentTitle})
	}

	return items, total, nil
}

// Counts returns the number of pending links and of distinct normalised terms.
func (r *GormPendingRepository) Counts(ctx context.Context) (PendingCounts, error) {
	var counts PendingCounts
	if err := r.db.WithContext(ctx).Model(&PendingRecord{}).Count(&counts.Total).Error; err != nil {
		r.logError(nil, err, "counting pending links")
		return PendingCounts{}, eris.Wrap(err, "counting pending links")
	}

	if err := r.db.WithContext(ctx).Model(&PendingRecord{}).Distinct("term_key").Count(&counts.UniqueTerms).Error; err != nil {
		r.logError(nil, err, "counting pending terms")
		return PendingCounts{}, eris.Wrap(err, "counting pending terms")
	}

	return counts, nil
}

// CountByTermKey returns the number of pending links for a normalised term.
func (r *GormPendingRepository) CountByTermKey(ctx context.Context, key string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&PendingRecord{}).Where("term_key = ?", key).Count(&count).Error; err != nil {
		r.logError(logrus.Fields{"term_key": key}, err, "counting pending links by term")
		return 0, eris.Wrapf(err, "counting pending links by term: %s", key)
	}
	return count, nil
}

// DistinctTermKeys returns every normalised term with at least one pending link.
func (r *GormPendingRepository) DistinctTermKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := r.db.WithContext(ctx).Model(&PendingRecord{}).Distinct().Order("term_key ASC").Pluck("term_key", &keys).Error; err != nil {
		r.logError(nil, err, "listing pending term keys")
		return nil, eris.Wrap(err, "listing pending term keys")
	}
	return keys, nil
}

// DeleteByTermKey removes every pending link whose term normalises to key.
func (r *GormPendingRepository) DeleteByTermKey(ctx context.Context, key string) (int64, error) {
	result := r.db.WithContext(ctx).Where("term_key = ?", key).Delete(&PendingRecord{})
	if result.Error != nil {
		r.logError(logrus.Fields{"term_key": key}, result.Error, "deleting pending links by term")
		return 0, eris.Wrapf(result.Error, "deleting pending links by term: %s", key)
	}
	return result.RowsAffected, nil
}

// Delete removes a single pending link and reports whether it existed.
func (r *GormPendingRepository) Delete(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&PendingRecord{})
	if result.Error != nil {
		r.logError(logrus.Fields{"pending_id": id}, result.Error, "deleting pending link")
		return false, eris.Wrapf(result.Error, "deleting pending link: %s", id)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormPendingRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("component", "wiki.pending").WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}

func toPendingLink(record PendingRecord) PendingLink {
	return PendingLink{
		ID:          record.ID,
		Term:        record.Term,
		ContentType: record.ContentType,
		ContentID:   record.ContentID,
		Context:     record.Context,
		CreatedAt:   record.CreatedAt,
	}
}

func toPendingLinks(records []PendingRecord) []PendingLink {
	links := make([]PendingLink, 0, len(records))
	for _, record := range records {
		links = append(links, toPendingLink(record))
	}
	return links
}
