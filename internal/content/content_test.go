package content

import (
	"context"
	"path/filepath"
	"testing"

	"wikilinks/app/internal/db"
	applog "wikilinks/app/internal/log"
)

func TestTypeValid(t *testing.T) {
	t.Parallel()

	if !TypeBlog.Valid() || !TypeEducation.Valid() {
		t.Fatalf("expected blog and education to be valid")
	}
	if Type("podcast").Valid() {
		t.Fatalf("expected unknown type to be invalid")
	}
	if _, err := TableFor(Type("podcast")); err == nil {
		t.Fatalf("expected TableFor to reject unknown type")
	}
}

func TestRepositoryTitleLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gormDB, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "content.db")})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gormDB) })

	if err := Migrate(ctx, gormDB, applog.Discard()); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	repo, err := NewRepository(gormDB)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}

	id, err := repo.Create(ctx, TypeEducation, "  Intro to FPGAs ")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	title, err := repo.Title(ctx, TypeEducation, id)
	if err != nil {
		t.Fatalf("Title returned error: %v", err)
	}
	if title == nil || *title != "Intro to FPGAs" {
		t.Fatalf("expected trimmed title, got %v", title)
	}

	missing, err := repo.Title(ctx, TypeBlog, id)
	if err != nil {
		t.Fatalf("Title returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil title for id in another collection, got %q", *missing)
	}

	if err := repo.Delete(ctx, TypeEducation, id); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	gone, err := repo.Title(ctx, TypeEducation, id)
	if err != nil {
		t.Fatalf("Title returned error: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected nil title after delete")
	}
}
