package content

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Type identifies the content collection that references wiki terms.
type Type string

const (
	TypeBlog      Type = "blog"
	TypeEducation Type = "education"
)

// Types lists every supported content collection.
var Types = []Type{TypeBlog, TypeEducation}

// Valid reports whether t names a known content collection.
func (t Type) Valid() bool {
	return t == TypeBlog || t == TypeEducation
}

// PostRecord is the slice of a blog post the wiki subsystem needs.
type PostRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"size:255;not null"`
	CreatedAt time.Time
}

// TableName defines the table name for blog posts.
func (PostRecord) TableName() string {
	return "blog_posts"
}

// ResourceRecord is the slice of an education resource the wiki subsystem needs.
type ResourceRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"size:255;not null"`
	CreatedAt time.Time
}

// TableName defines the table name for education resources.
func (ResourceRecord) TableName() string {
	return "education_resources"
}

// TableFor returns the table holding items of the given type.
func TableFor(t Type) (string, error) {
	switch t {
	case TypeBlog:
		return PostRecord{}.TableName(), nil
	case TypeEducation:
		return ResourceRecord{}.TableName(), nil
	default:
		return "", eris.Errorf("unknown content type: %s", t)
	}
}

// Migrate applies the content schema.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	if err := db.WithContext(ctx).AutoMigrate(&PostRecord{}, &ResourceRecord{}); err != nil {
		if logger != nil {
			logger.WithField("component", "content.migrate").WithField("error", err.Error()).Error("content schema migration failed")
		}
		return eris.Wrap(err, "auto migrating content schema")
	}

	return nil
}

// Repository reads and seeds content titles.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a Gorm-backed content repository.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}
	return &Repository{db: db}, nil
}

// Create stores a content item with the provided title and returns its id.
func (r *Repository) Create(ctx context.Context, t Type, title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", eris.New("content title is required")
	}

	id := uuid.NewString()
	var err error
	switch t {
	case TypeBlog:
		err = r.db.WithContext(ctx).Create(&PostRecord{ID: id, Title: trimmed}).Error
	case TypeEducation:
		err = r.db.WithContext(ctx).Create(&ResourceRecord{ID: id, Title: trimmed}).Error
	default:
		return "", eris.Errorf("unknown content type: %s", t)
	}
	if err != nil {
		return "", eris.Wrapf(err, "creating %s content", t)
	}

	return id, nil
}

// Title returns the title of a content item, or nil when it does not exist.
func (r *Repository) Title(ctx context.Context, t Type, id string) (*string, error) {
	table, err := TableFor(t)
	if err != nil {
		return nil, err
	}

	var titles []string
	if err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Limit(1).Pluck("title", &titles).Error; err != nil {
		return nil, eris.Wrapf(err, "reading %s title", t)
	}

	if len(titles) == 0 {
		return nil, nil
	}
	return &titles[0], nil
}

// Delete removes a content item. Missing items are ignored.
func (r *Repository) Delete(ctx context.Context, t Type, id string) error {
	var model any
	switch t {
	case TypeBlog:
		model = &PostRecord{}
	case TypeEducation:
		model = &ResourceRecord{}
	default:
		return eris.Errorf("unknown content type: %s", t)
	}

	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(model).Error; err != nil {
		return eris.Wrapf(err, "deleting %s content", t)
	}
	return nil
}
