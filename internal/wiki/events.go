package wiki

// Event names published by the wiki service.
const (
	EventNamesClaimed = "wiki.names_claimed"
	EventEntryDeleted = "wiki.entry_deleted"
)

// Reasons carried by NamesClaimed.
const (
	ReasonEntryCreated = "entry_created"
	ReasonAliasAdded   = "alias_added"
	ReasonEntryUpdated = "entry_updated"
	ReasonSweep        = "sweep"
)

// NamesClaimed is published after an entry starts answering to new names, once the
// change has committed.
type NamesClaimed struct {
	EntryID string   `json:"entry_id"`
	Slug    string   `json:"slug"`
	Names   []string `json:"names"`
	Reason  string   `json:"reason"`
}

// EventName implements events.Event.
func (NamesClaimed) EventName() string { return EventNamesClaimed }

// EventKey implements events.Keyed.
func (e NamesClaimed) EventKey() string { return e.EntryID }

// EntryDeleted is published after an entry and its names have been removed.
type EntryDeleted struct {
	EntryID string `json:"entry_id"`
	Slug    string `json:"slug"`
}

// EventName implements events.Event.
func (EntryDeleted) EventName() string { return EventEntryDeleted }

// EventKey implements events.Keyed.
func (e EntryDeleted) EventKey() string { return e.EntryID }
