package wiki

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikilinks/app/internal/db"
)

// EntryRepository defines persistence operations for wiki entries and their names.
type EntryRepository interface {
	Create(ctx context.Context, record *EntryRecord, aliases []string) (*Entry, error)
	GetByID(ctx context.Context, id string) (*Entry, error)
	GetBySlug(ctx context.Context, slug string) (*Entry, error)
	FindByNameKey(ctx context.Context, key string) (*Entry, error)
	List(ctx context.Context, published *bool, page Pagination) ([]Entry, int64, error)
	Claims(ctx context.Context, keys []string) ([]NameClaim, error)
	ClaimedKeys(ctx context.Context, keys []string) ([]string, error)
	Update(ctx context.Context, id string, changes EntryChanges) (*Entry, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// NameClaim reports which entry answers to a normalised name.
type NameClaim struct {
	Name      string
	NameKey   string
	EntryID   string
	EntrySlug string
}

// EntryChanges lists the columns to update. Names, when set, replaces the term and
// alias rows of the entry; its first element is the term.
type EntryChanges struct {
	Columns   map[string]any
	Names     []string
	UpdatedAt time.Time
}

// GormEntryRepository persists entries using a Gorm database connection.
type GormEntryRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewEntryRepository constructs a Gorm-backed entry repository.
func NewEntryRepository(gormDB *gorm.DB, logger *logrus.Logger) (*GormEntryRepository, error) {
	if gormDB == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormEntryRepository{db: gormDB, logger: logger}, nil
}

var _ EntryRepository = (*GormEntryRepository)(nil)

// Create inserts the entry and its name rows in one transaction. A duplicate slug or
// an already claimed name fails with ErrConflict.
func (r *GormEntryRepository) Create(ctx context.Context, record *EntryRecord, aliases []string) (*Entry, error) {
	if record == nil {
		return nil, eris.New("entry record is nil")
	}

	names := nameRecords(record.ID, append([]string{record.Term}, aliases...))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return conflictf("an entry with slug %q already exists", record.Slug)
			}
			return eris.Wrapf(err, "inserting entry: %s", record.Slug)
		}

		if err := tx.Create(&names).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return conflictf("a name of entry %q is already used by another entry", record.Term)
			}
			return eris.Wrapf(err, "inserting names for entry: %s", record.Slug)
		}

		return nil
	})
	if err != nil {
		if Classify(err) == CategoryInternal {
			r.logError(logrus.Fields{"slug": record.Slug}, err, "creating entry")
		}
		return nil, err
	}

	entry := toEntry(*record, names)
	return &entry, nil
}

// GetByID returns the entry with the provided id or nil when not found.
func (r *GormEntryRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	return r.first(ctx, logrus.Fields{"entry_id": id}, "id = ?", strings.TrimSpace(id))
}

// GetBySlug returns the entry for the provided slug or nil when not found.
func (r *GormEntryRepository) GetBySlug(ctx context.Context, slug string) (*Entry, error) {
	return r.first(ctx, logrus.Fields{"slug": slug}, "slug = ?", strings.TrimSpace(slug))
}

// FindByNameKey returns the entry whose term or alias normalises to key, or nil.
func (r *GormEntryRepository) FindByNameKey(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, nil
	}

	var entryIDs []string
	err := r.db.WithContext(ctx).
		Model(&NameRecord{}).
		Where("name_key = ?", key).
		Limit(1).
		Pluck("entry_id", &entryIDs).Error
	if err != nil {
		r.logError(logrus.Fields{"name_key": key}, err, "looking up entry name")
		return nil, eris.Wrapf(err, "looking up entry name: %s", key)
	}

	if len(entryIDs) == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, entryIDs[0])
}

// List returns one page of entries ordered by term.
func (r *GormEntryRepository) List(ctx context.Context, published *bool, page Pagination) ([]Entry, int64, error) {
	filter := func(tx *gorm.DB) *gorm.DB {
		if published != nil {
			return tx.Where("published = ?", *published)
		}
		return tx
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&EntryRecord{}).Scopes(filter).Count(&total).Error; err != nil {
		r.logError(nil, err, "counting entries")
		return nil, 0, eris.Wrap(err, "counting entries")
	}

	var records []EntryRecord
	err := r.db.WithContext(ctx).
		Scopes(filter).
		Order("term ASC").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&records).Error
	if err != nil {
		r.logError(nil, err, "listing entries")
		return nil, 0, eris.Wrap(err, "listing entries")
	}

	entries, err := r.withAliases(ctx, records)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Claims returns the entries currently answering to any of keys.
func (r *GormEntryRepository) Claims(ctx context.Context, keys []string) ([]NameClaim, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var claims []NameClaim
	err := r.db.WithContext(ctx).
		Table("wiki_entry_names AS n").
		Select("n.name, n.name_key, n.entry_id, e.slug AS entry_slug").
		Joins("JOIN wiki_entries e ON e.id = n.entry_id").
		Where("n.name_key IN ?", keys).
		Scan(&claims).Error
	if err != nil {
		r.logError(nil, err, "reading name claims")
		return nil, eris.Wrap(err, "reading name claims")
	}

	return claims, nil
}

// ClaimedKeys returns the subset of keys that some entry answers to.
func (r *GormEntryRepository) ClaimedKeys(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var claimed []string
	err := r.db.WithContext(ctx).
		Model(&NameRecord{}).
		Where("name_key IN ?", keys).
		Pluck("name_key", &claimed).Error
	if err != nil {
		r.logError(nil, err, "reading claimed name keys")
		return nil, eris.Wrap(err, "reading claimed name keys")
	}

	return claimed, nil
}

// Update applies changes to the entry and returns the stored result, or nil when the
// entry does not exist.
func (r *GormEntryRepository) Update(ctx context.Context, id string, changes EntryChanges) (*Entry, error) {
	columns := make(map[string]any, len(changes.Columns)+1)
	for column, value := range changes.Columns {
		columns[column] = value
	}
	columns["updated_at"] = changes.UpdatedAt

	found := true
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&EntryRecord{}).Where("id = ?", id).Updates(columns)
		if result.Error != nil {
			if db.IsUniqueViolation(result.Error) {
				return conflictf("an entry with slug %v already exists", columns["slug"])
			}
			return eris.Wrapf(result.Error, "updating entry: %s", id)
		}
		if result.RowsAffected == 0 {
			found = false
			return nil
		}

		if changes.Names == nil {
			return nil
		}

		if err := tx.Where("entry_id = ?", id).Delete(&NameRecord{}).Error; err != nil {
			return eris.Wrapf(err, "clearing names of entry: %s", id)
		}

		names := nameRecords(id, changes.Names)
		if err := tx.Create(&names).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return conflictf("a name of this entry is already used by another entry")
			}
			return eris.Wrapf(err, "writing names of entry: %s", id)
		}

		return nil
	})
	if err != nil {
		if Classify(err) == CategoryInternal {
			r.logError(logrus.Fields{"entry_id": id}, err, "updating entry")
		}
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// Delete removes the entry and its names. Links referencing it are left in place.
func (r *GormEntryRepository) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", id).Delete(&NameRecord{}).Error; err != nil {
			return eris.Wrapf(err, "deleting names of entry: %s", id)
		}

		result := tx.Where("id = ?", id).Delete(&EntryRecord{})
		if result.Error != nil {
			return eris.Wrapf(result.Error, "deleting entry: %s", id)
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		r.logError(logrus.Fields{"entry_id": id}, err, "deleting entry")
		return false, err
	}

	return deleted, nil
}

func (r *GormEntryRepository) first(ctx context.Context, fields logrus.Fields, query string, arg string) (*Entry, error) {
	if arg == "" {
		return nil, nil
	}

	var records []EntryRecord
	if err := r.db.WithContext(ctx).Where(query, arg).Limit(1).Find(&records).Error; err != nil {
		r.logError(fields, err, "fetching entry")
		return nil, eris.Wrap(err, "fetching entry")
	}

	if len(records) == 0 {
		return nil, nil
	}

	entries, err := r.withAliases(ctx, records)
	if err != nil {
		return nil, err
	}

	return &entries[0], nil
}

func (r *GormEntryRepository) withAliases(ctx context.Context, records []EntryRecord) ([]Entry, error) {
	if len(records) == 0 {
		return []Entry{}, nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	var names []NameRecord
	err := r.db.WithContext(ctx).
		Where("entry_id IN ? AND kind = ?", ids, nameKindAlias).
		Order("position ASC").
		Find(&names).Error
	if err != nil {
		r.logError(nil, err, "loading entry aliases")
		return nil, eris.Wrap(err, "loading entry aliases")
	}

	byEntry := make(map[string][]NameRecord, len(records))
	for _, name := range names {
		byEntry[name.EntryID] = append(byEntry[name.EntryID], name)
	}

	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, toEntry(record, byEntry[record.ID]))
	}

	return entries, nil
}

func (r *GormEntryRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("component", "wiki.entries").WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}

// nameRecords builds the name rows of an entry. names[0] is the term.
func nameRecords(entryID string, names []string) []NameRecord {
	records := make([]NameRecord, 0, len(names))
	for i, name := range names {
		record := NameRecord{
			EntryID: entryID,
			Kind:    nameKindAlias,
			Name:    name,
			NameKey: NormalizeTerm(name),
		}
		if i == 0 {
			record.Kind = nameKindTerm
		} else {
			record.Position = i - 1
		}
		records = append(records, record)
	}
	return records
}

func toEntry(record EntryRecord, names []NameRecord) Entry {
	aliases := make([]string, 0, len(names))
	for _, name := range names {
		if name.Kind == nameKindAlias {
			aliases = append(aliases, name.Name)
		}
	}

	return Entry{
		ID:         record.ID,
		Term:       record.Term,
		Slug:       record.Slug,
		Definition: record.Definition,
		Content:    record.Content,
		Aliases:    aliases,
		Published:  record.Published,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}
