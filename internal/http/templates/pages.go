package templates

import (
	"fmt"
	"strings"

	"github.com/a-h/templ"
)

func layout(title string, body ...templ.Component) templ.Component {
	parts := []templ.Component{
		RawHTML(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`),
		Text(title + " • " + SiteName),
		RawHTML(`</title></head><body><main class="wiki">`),
	}
	parts = append(parts, body...)
	parts = append(parts, RawHTML(`</main></body></html>`))
	return Join(parts...)
}

// EntryPage renders a published wiki entry.
func EntryPage(data EntryPageData) templ.Component {
	body := []templ.Component{
		RawHTML(`<article><h1>`), Text(data.Term), RawHTML(`</h1>`),
	}

	if len(data.Aliases) > 0 {
		body = append(body,
			RawHTML(`<p class="aliases">Also known as: `),
			Text(strings.Join(data.Aliases, ", ")),
			RawHTML(`</p>`),
		)
	}

	body = append(body, RawHTML(`<p class="definition">`), Text(data.Definition), RawHTML(`</p>`))

	if data.ContentHTML != "" {
		body = append(body, RawHTML(`<section class="content">`), RawHTML(data.ContentHTML), RawHTML(`</section>`))
	}

	if data.UpdatedAt != "" {
		body = append(body, RawHTML(`<footer>Last updated `), Text(data.UpdatedAt), RawHTML(`</footer>`))
	}

	body = append(body, RawHTML(`</article>`))
	return layout(data.Term, body...)
}

// PendingPage renders the placeholder for a referenced but undefined term.
func PendingPage(data PendingPageData) templ.Component {
	noun := "references"
	if data.References == 1 {
		noun = "reference"
	}

	return layout(data.Term,
		RawHTML(`<article class="pending"><h1>`), Text(data.Term), RawHTML(`</h1>`),
		RawHTML(`<p>This term has not been defined yet.</p>`),
		RawHTML(`<p class="references">`),
		Text(fmt.Sprintf("%d %s waiting for a definition.", data.References, noun)),
		RawHTML(`</p></article>`),
	)
}

// ErrorPage renders an HTML error view.
func ErrorPage(data ErrorPageData) templ.Component {
	return layout(data.StatusLabel,
		RawHTML(`<article class="error"><h1>`), Text(data.StatusLabel), RawHTML(`</h1><p>`),
		Text(data.Message),
		RawHTML(`</p></article>`),
	)
}
