package wiki

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(ServiceDependencies{}); err == nil {
		t.Fatalf("expected error when repositories are missing")
	}
}

func TestCreateEntryAndLookup(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	if entry, err := store.service.FindByTermOrAlias(ctx, "FPGA"); err != nil || entry != nil {
		t.Fatalf("expected no entry before creation, got %#v (err %v)", entry, err)
	}

	created := mustCreateEntry(t, store.service, CreateEntryInput{
		Term:       " FPGA ",
		Slug:       "fpga",
		Definition: " Field programmable gate array ",
	})

	if created.Term != "FPGA" || created.Definition != "Field programmable gate array" {
		t.Fatalf("expected trimmed fields, got %#v", created)
	}
	if created.Content != "" || created.Published || len(created.Aliases) != 0 {
		t.Fatalf("expected defaults for optional fields, got %#v", created)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	bySlug, err := store.service.GetEntryBySlug(ctx, "fpga")
	if err != nil {
		t.Fatalf("GetEntryBySlug returned error: %v", err)
	}
	if bySlug.ID != created.ID {
		t.Fatalf("expected entry %s by slug, got %s", created.ID, bySlug.ID)
	}

	byTerm, err := store.service.FindByTermOrAlias(ctx, "fpga")
	if err != nil {
		t.Fatalf("FindByTermOrAlias returned error: %v", err)
	}
	if byTerm == nil || byTerm.ID != created.ID {
		t.Fatalf("expected lowercase lookup to find the entry, got %#v", byTerm)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	_, err := store.service.GetEntryBySlug(ctx, "missing")
	assertCategory(t, err, CategoryNotFound)

	_, err = store.service.GetEntryByID(ctx, "00000000-0000-0000-0000-000000000000")
	assertCategory(t, err, CategoryNotFound)

	if !eris.Is(err, ErrNotFound) {
		t.Fatalf("expected error to match ErrNotFound")
	}
}

func TestCreateEntryValidation(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	cases := []CreateEntryInput{
		{Slug: "missing-term", Definition: "d"},
		{Term: "Missing slug", Definition: "d"},
		{Term: "Missing definition", Slug: "missing-definition", Definition: "   "},
		{Term: "Blank alias", Slug: "blank-alias", Definition: "d", Aliases: []string{"ok", "  "}},
		{Term: "Reserved", Slug: "pending-reserved", Definition: "d"},
	}

	for _, input := range cases {
		_, err := store.service.CreateEntry(ctx, input)
		assertCategory(t, err, CategoryBadRequest)
	}
}

func TestCreateEntryDuplicateSlugConflicts(t *testing.T) {
	t.Parallel()

	store := setupStore(t)

	mustCreateEntry(t, store.service, CreateEntryInput{Term: "Alpha", Slug: "alpha"})

	_, err := store.service.CreateEntry(context.Background(), CreateEntryInput{Term: "Other", Slug: "alpha", Definition: "d"})
	assertCategory(t, err, CategoryConflict)
}

func TestCreateEntryClaimedNameConflicts(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	mustCreateEntry(t, store.service, CreateEntryInput{Term: "FPGA", Slug: "fpga", Aliases: []string{"Gate Array"}})

	_, err := store.service.CreateEntry(ctx, CreateEntryInput{Term: "fpga", Slug: "fpga-2", Definition: "d"})
	assertCategory(t, err, CategoryConflict)

	_, err = store.service.CreateEntry(ctx, CreateEntryInput{Term: "Other", Slug: "other", Definition: "d", Aliases: []string{"GATE ARRAY"}})
	assertCategory(t, err, CategoryConflict)

	if !strings.Contains(Message(err), "fpga") {
		t.Fatalf("expected conflict message to name the claiming entry, got %q", Message(err))
	}
}

func TestCreateEntryCollapsesDuplicateAliases(t *testing.T) {
	t.Parallel()

	store := setupStore(t)

	entry := mustCreateEntry(t, store.service, CreateEntryInput{
		Term:    "Integrated Circuit",
		Slug:    "integrated-circuit",
		Aliases: []string{"IC", " ic ", "Chip", "integrated circuit", "Microchip"},
	})

	want := []string{"IC", "Chip", "Microchip"}
	if strings.Join(entry.Aliases, ",") != strings.Join(want, ",") {
		t.Fatalf("expected aliases %v, got %v", want, entry.Aliases)
	}
}

func TestAliasLifecycle(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	entry := mustCreateEntry(t, store.service, CreateEntryInput{Term: "Application Specific Integrated Circuit", Slug: "asic"})

	updated, err := store.service.AddAlias(ctx, entry.ID, "ASIC")
	if err != nil {
		t.Fatalf("AddAlias returned error: %v", err)
	}
	if len(updated.Aliases) != 1 || updated.Aliases[0] != "ASIC" {
		t.Fatalf("expected alias to be appended, got %v", updated.Aliases)
	}
	if !updated.UpdatedAt.After(entry.UpdatedAt) {
		t.Fatalf("expected updated_at to advance")
	}

	for _, query := range []string{"asic", "ASIC", "  Asic "} {
		found, err := store.service.FindByTermOrAlias(ctx, query)
		if err != nil {
			t.Fatalf("FindByTermOrAlias returned error: %v", err)
		}
		if found == nil || found.ID != entry.ID {
			t.Fatalf("expected %q to resolve to the entry", query)
		}
	}

	if _, err := store.service.RemoveAlias(ctx, entry.ID, "asic"); err != nil {
		t.Fatalf("RemoveAlias returned error: %v", err)
	}

	found, err := store.service.FindByTermOrAlias(ctx, "ASIC")
	if err != nil {
		t.Fatalf("FindByTermOrAlias returned error: %v", err)
	}
	if found != nil {
		t.Fatalf("expected removed alias not to resolve, got %#v", found)
	}

	again, err := store.service.RemoveAlias(ctx, entry.ID, "ASIC")
	if err != nil {
		t.Fatalf("second RemoveAlias returned error: %v", err)
	}
	if len(again.Aliases) != 0 {
		t.Fatalf("expected no aliases after removal, got %v", again.Aliases)
	}
}

func TestAddAliasDuplicateOnEntryConflicts(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	entry := mustCreateEntry(t, store.service, CreateEntryInput{
		Term:    "Field Programmable Gate Array",
		Slug:    "field-programmable-gate-array",
		Aliases: []string{"fpga"},
	})

	_, err := store.service.AddAlias(ctx, entry.ID, "FPGA")
	assertCategory(t, err, CategoryConflict)

	stored, err := store.service.GetEntryByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntryByID returned error: %v", err)
	}
	if len(stored.Aliases) != 1 || stored.Aliases[0] != "fpga" {
		t.Fatalf("expected alias list to be unchanged, got %v", stored.Aliases)
	}
}

func TestAddAliasValidation(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	first := mustCreateEntry(t, store.service, CreateEntryInput{Term: "Transistor", Slug: "transistor"})
	second := mustCreateEntry(t, store.service, CreateEntryInput{Term: "Diode", Slug: "diode"})

	_, err := store.service.AddAlias(ctx, first.ID, "   ")
	assertCategory(t, err, CategoryBadRequest)

	_, err = store.service.AddAlias(ctx, first.ID, "diode")
	assertCategory(t, err, CategoryConflict)

	_, err = store.service.AddAlias(ctx, "missing", "anything")
	assertCategory(t, err, CategoryNotFound)

	_, err = store.service.AddAlias(ctx, second.ID, "DIODE")
	assertCategory(t, err, CategoryConflict)
}

func TestAliasLengthIsLimited(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	entry := mustCreateEntry(t, store.service, CreateEntryInput{Term: "Capacitor", Slug: "capacitor"})
	long := strings.Repeat("c", 256)

	_, err := store.service.AddAlias(ctx, entry.ID, long)
	assertCategory(t, err, CategoryBadRequest)

	aliases := []string{"cap", long}
	_, err = store.service.UpdateEntry(ctx, entry.ID, UpdateEntryInput{Aliases: &aliases})
	assertCategory(t, err, CategoryBadRequest)

	_, err = store.service.CreateEntry(ctx, CreateEntryInput{Term: "Inductor", Slug: "inductor", Aliases: []string{long}})
	assertCategory(t, err, CategoryBadRequest)

	stored, err := store.service.GetEntryByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntryByID returned error: %v", err)
	}
	if len(stored.Aliases) != 0 {
		t.Fatalf("expected no aliases after rejected changes, got %v", stored.Aliases)
	}

	if _, err := store.service.AddAlias(ctx, entry.ID, strings.Repeat("é", 255)); err != nil {
		t.Fatalf("expected a 255 character alias to be accepted, got %v", err)
	}
}

func TestUpdateEntry(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	entry := mustCreateEntry(t, store.service, CreateEntryInput{Term: "Resistor", Slug: "resistor", Aliases: []string{"R"}})
	mustCreateEntry(t, store.service, CreateEntryInput{Term: "Capacitor", Slug: "capacitor"})

	published := true
	definition := "Limits current"
	updated, err := store.service.UpdateEntry(ctx, entry.ID, UpdateEntryInput{Definition: &definition, Published: &published})
	if err != nil {
		t.Fatalf("UpdateEntry returned error: %v", err)
	}
	if updated.Definition != definition || !updated.Published {
		t.Fatalf("expected definition and published to change, got %#v", updated)
	}
	if updated.Term != "Resistor" || updated.Slug != "resistor" || len(updated.Aliases) != 1 {
		t.Fatalf("expected untouched fields to stay, got %#v", updated)
	}
	if !updated.UpdatedAt.After(entry.UpdatedAt) {
		t.Fatalf("expected updated_at to advance")
	}

	taken := "capacitor"
	_, err = store.service.UpdateEntry(ctx, entry.ID, UpdateEntryInput{Slug: &taken})
	assertCategory(t, err, CategoryConflict)

	claimed := []string{"Capacitor"}
	_, err = store.service.UpdateEntry(ctx, entry.ID, UpdateEntryInput{Aliases: &claimed})
	assertCategory(t, err, CategoryConflict)

	blank := "  "
	_, err = store.service.UpdateEntry(ctx, entry.ID, UpdateEntryInput{Term: &blank})
	assertCategory(t, err, CategoryBadRequest)

	_, err = store.service.UpdateEntry(ctx, "missing", UpdateEntryInput{Definition: &definition})
	assertCategory(t, err, CategoryNotFound)

	term := "Resistance element"
	renamed, err := store.service.UpdateEntry(ctx, entry.ID, UpdateEntryInput{Term: &term})
	if err != nil {
		t.Fatalf("UpdateEntry returned error: %v", err)
	}
	if renamed.Term != term || len(renamed.Aliases) != 1 || renamed.Aliases[0] != "R" {
		t.Fatalf("expected rename to keep aliases, got %#v", renamed)
	}

	if old, _ := store.service.FindByTermOrAlias(ctx, "Resistor"); old != nil {
		t.Fatalf("expected old term to stop resolving")
	}
	if current, _ := store.service.FindByTermOrAlias(ctx, "resistance ELEMENT"); current == nil || current.ID != entry.ID {
		t.Fatalf("expected new term to resolve")
	}
}

func TestListEntriesOrderingAndFilter(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	mustCreateEntry(t, store.service, CreateEntryInput{Term: "Zener diode", Slug: "zener-diode", Published: true})
	mustCreateEntry(t, store.service, CreateEntryInput{Term: "Amplifier", Slug: "amplifier"})
	mustCreateEntry(t, store.service, CreateEntryInput{Term: "Buffer", Slug: "buffer", Published: true})

	all, err := store.service.ListEntries(ctx, ListEntriesInput{})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}

	expectedOrder := []string{"Amplifier", "Buffer", "Zener diode"}
	if len(all.Items) != len(expectedOrder) || all.Total != 3 {
		t.Fatalf("expected %d entries, got %d (total %d)", len(expectedOrder), len(all.Items), all.Total)
	}
	for idx, term := range expectedOrder {
		if all.Items[idx].Term != term {
			t.Fatalf("expected term %q at index %d, got %q", term, idx, all.Items[idx].Term)
		}
	}
	if all.Page != 1 || all.Limit != defaultLimit || all.TotalPages != 1 {
		t.Fatalf("unexpected pagination %+v", all)
	}

	published := true
	onlyPublished, err := store.service.ListEntries(ctx, ListEntriesInput{Published: &published})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if onlyPublished.Total != 2 || onlyPublished.Items[0].Term != "Buffer" {
		t.Fatalf("expected two published entries starting with Buffer, got %+v", onlyPublished.Items)
	}

	paged, err := store.service.ListEntries(ctx, ListEntriesInput{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(paged.Items) != 1 || paged.Items[0].Term != "Zener diode" || paged.TotalPages != 2 {
		t.Fatalf("unexpected second page %+v", paged)
	}
}

func TestNewPaginationBounds(t *testing.T) {
	t.Parallel()

	if p := NewPagination(0, 0); p.Page != 1 || p.Limit != defaultLimit {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p := NewPagination(3, 1000); p.Limit != maxLimit || p.Offset() != 2*maxLimit {
		t.Fatalf("unexpected clamp %+v", p)
	}
}

// Scenario D: deleting an entry leaves its content links readable.
func TestDeleteEntryLeavesContentLinks(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	entry := mustCreateEntry(t, store.service, CreateEntryInput{Term: "Oscilloscope", Slug: "oscilloscope"})

	link, err := store.service.CreateContentLink(ctx, CreateContentLinkInput{
		EntryID:     entry.ID,
		ContentType: "blog",
		ContentID:   "post-1",
		AnchorText:  "scope",
	})
	if err != nil {
		t.Fatalf("CreateContentLink returned error: %v", err)
	}

	if err := store.service.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry returned error: %v", err)
	}

	links, err := store.service.ContentLinksForEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("ContentLinksForEntry returned error: %v", err)
	}
	if len(links) != 1 || links[0].ID != link.ID {
		t.Fatalf("expected dangling link to remain, got %+v", links)
	}
	if links[0].EntrySlug != nil || links[0].EntryTerm != nil {
		t.Fatalf("expected entry fields to be nil after deletion, got %+v", links[0])
	}

	byContent, err := store.service.ContentLinksForContent(ctx, "blog", "post-1")
	if err != nil {
		t.Fatalf("ContentLinksForContent returned error: %v", err)
	}
	if len(byContent) != 1 {
		t.Fatalf("expected link by content, got %d", len(byContent))
	}

	err = store.service.DeleteEntry(ctx, entry.ID)
	assertCategory(t, err, CategoryNotFound)

	if found, _ := store.service.FindByTermOrAlias(ctx, "oscilloscope"); found != nil {
		t.Fatalf("expected deleted entry not to resolve")
	}
}

func TestDeleteEntryFreesNames(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	entry := mustCreateEntry(t, store.service, CreateEntryInput{Term: "Relay", Slug: "relay", Aliases: []string{"Switch"}})
	if err := store.service.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry returned error: %v", err)
	}

	mustCreateEntry(t, store.service, CreateEntryInput{Term: "switch", Slug: "switch"})
}
