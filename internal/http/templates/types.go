package templates

// SiteName is shown in page titles and the shared layout.
const SiteName = "Wiki"

// EntryPageData holds a published entry for rendering.
type EntryPageData struct {
	Term        string
	Definition  string
	ContentHTML string
	Aliases     []string
	UpdatedAt   string
}

// PendingPageData describes a term that is referenced but not yet defined.
type PendingPageData struct {
	Term       string
	References int64
}

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	StatusLabel string
	Message     string
}
