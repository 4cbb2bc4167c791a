package wiki

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikilinks/app/internal/content"
	"wikilinks/app/internal/db"
	"wikilinks/app/internal/events"
	applog "wikilinks/app/internal/log"
)

type testStore struct {
	db         *gorm.DB
	entries    *GormEntryRepository
	pending    *GormPendingRepository
	links      *GormLinkRepository
	content    *content.Repository
	bus        *events.Bus
	reconciler *Reconciler
	service    Service
}

func setupStore(t *testing.T) *testStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wiki.db")
	gormDB, err := db.Open(db.Options{Path: path})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}

	t.Cleanup(func() {
		if closeErr := db.Close(gormDB); closeErr != nil {
			t.Fatalf("closing database failed: %v", closeErr)
		}
	})

	logger := silentLogger()
	ctx := context.Background()

	if err := content.Migrate(ctx, gormDB, logger); err != nil {
		t.Fatalf("content.Migrate returned error: %v", err)
	}
	if err := Migrate(ctx, gormDB, logger); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	store := &testStore{db: gormDB}

	if store.entries, err = NewEntryRepository(gormDB, logger); err != nil {
		t.Fatalf("NewEntryRepository returned error: %v", err)
	}
	if store.pending, err = NewPendingRepository(gormDB, logger); err != nil {
		t.Fatalf("NewPendingRepository returned error: %v", err)
	}
	if store.links, err = NewLinkRepository(gormDB, logger); err != nil {
		t.Fatalf("NewLinkRepository returned error: %v", err)
	}
	if store.content, err = content.NewRepository(gormDB); err != nil {
		t.Fatalf("content.NewRepository returned error: %v", err)
	}

	store.bus = events.NewBus(logger, nil)

	if store.reconciler, err = NewReconciler(store.entries, store.pending, logger, nil); err != nil {
		t.Fatalf("NewReconciler returned error: %v", err)
	}
	store.reconciler.Register(store.bus)

	svc, err := NewService(ServiceDependencies{
		Entries:   store.entries,
		Pending:   store.pending,
		Links:     store.links,
		Titles:    store.content,
		Publisher: store.bus,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	svc.(*service).now = tickingClock()
	store.service = svc

	return store
}

func silentLogger() *logrus.Logger {
	return applog.Discard()
}

// tickingClock returns strictly increasing times so ordering by creation is stable.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func mustCreateEntry(t *testing.T, svc Service, input CreateEntryInput) *Entry {
	t.Helper()

	if input.Definition == "" {
		input.Definition = "definition of " + input.Term
	}

	entry, err := svc.CreateEntry(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateEntry(%q) returned error: %v", input.Term, err)
	}
	return entry
}

func mustCreatePending(t *testing.T, svc Service, term string, contentType content.Type, contentID string) *PendingLink {
	t.Helper()

	link, err := svc.CreatePendingLink(context.Background(), CreatePendingLinkInput{
		Term:        term,
		ContentType: contentType,
		ContentID:   contentID,
	})
	if err != nil {
		t.Fatalf("CreatePendingLink(%q) returned error: %v", term, err)
	}
	return link
}

func assertCategory(t *testing.T, err error, want Category) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := Classify(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}
