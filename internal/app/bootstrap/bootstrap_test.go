package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wikilinks/app/internal/config"
	applog "wikilinks/app/internal/log"
	"wikilinks/app/internal/wiki"
)

func testDependencies(t *testing.T) Dependencies {
	t.Helper()

	return Dependencies{
		Config: config.Config{
			DBDriver:    config.DriverSQLite,
			DBPath:      filepath.Join(t.TempDir(), "wiki.db"),
			Environment: "test",
			RateLimit: config.RateLimitConfig{
				Burst:             10,
				RequestsPerSecond: 10,
				ClientTTL:         time.Minute,
			},
			Cache: config.CacheConfig{Backend: config.CacheMemory, TTL: time.Minute},
		},
		Logger: applog.Discard(),
	}
}

func TestBuildWiresServer(t *testing.T) {
	t.Parallel()

	result, err := Build(context.Background(), testDependencies(t))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := result.Cleanup(); err != nil {
			t.Fatalf("Cleanup returned error: %v", err)
		}
	})

	if result.HTTPServer == nil || result.Scheduler == nil || result.Store.Service == nil {
		t.Fatalf("expected every component to be built, got %+v", result)
	}

	entry, err := result.Store.Service.CreateEntry(context.Background(), wiki.CreateEntryInput{Term: "Diode", Slug: "diode", Definition: "d"})
	if err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if entry.Slug != "diode" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestBuildRequiresIssuerWhenAuthEnabled(t *testing.T) {
	t.Parallel()

	deps := testDependencies(t)
	deps.Config.Auth.Enabled = true

	if _, err := Build(context.Background(), deps); err == nil {
		t.Fatalf("expected error when auth is enabled without an issuer")
	}
}

func TestBuildRejectsInvalidReconcileSchedule(t *testing.T) {
	t.Parallel()

	deps := testDependencies(t)
	deps.Config.ReconcileSchedule = "whenever"

	if _, err := Build(context.Background(), deps); err == nil {
		t.Fatalf("expected error for invalid reconcile schedule")
	}
}

func TestMigrateCreatesSchema(t *testing.T) {
	t.Parallel()

	deps := testDependencies(t)
	if err := Migrate(context.Background(), deps); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	store, err := OpenStore(context.Background(), deps)
	if err != nil {
		t.Fatalf("OpenStore returned error: %v", err)
	}
	defer store.Close()

	for _, table := range []string{"wiki_entries", "wiki_entry_names", "pending_wiki_links", "content_wiki_links", "blog_posts", "education_resources"} {
		if !store.Database.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}
