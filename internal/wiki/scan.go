package wiki

import (
	"context"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	wikiTermAttribute = "data-wiki-term"
	maxContextRunes   = 200
	maxTermRunes      = 255
)

type reference struct {
	term    string
	context string
}

// ScanContent resolves every wiki reference in an HTML body and records a pending
// link for each term that has no entry. Resolutions come back in document order,
// one per distinct term.
func (s *service) ScanContent(ctx context.Context, input ScanInput) ([]Resolution, error) {
	input.ContentID = strings.TrimSpace(input.ContentID)

	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !input.ContentType.Valid() {
		return nil, badRequestf("content_type must be one of blog, education; got %q", input.ContentType)
	}

	refs, err := extractReferences(input.Body)
	if err != nil {
		return nil, badRequestf("content body could not be parsed: %v", err)
	}
	// Reject the whole body before anything is recorded.
	for i, ref := range refs {
		if utf8.RuneCountInString(ref.term) > maxTermRunes {
			return nil, badRequestf("wiki reference %d is longer than %d characters", i+1, maxTermRunes)
		}
	}

	resolutions := make([]Resolution, 0, len(refs))
	for _, ref := range refs {
		resolution, err := s.Resolve(ctx, ref.term)
		if err != nil {
			return nil, err
		}

		if resolution.Status == StatusPending {
			recorded, err := s.recordReference(ctx, input, ref)
			if err != nil {
				return nil, err
			}
			if recorded {
				resolution.PendingCount++
			}
			resolution.Recorded = true
		}

		resolutions = append(resolutions, *resolution)
	}

	return resolutions, nil
}

// recordReference stores a pending link for ref and reports whether a new row was
// written. An identical existing row counts as already recorded.
func (s *service) recordReference(ctx context.Context, input ScanInput, ref reference) (bool, error) {
	var snippet *string
	if ref.context != "" {
		snippet = &ref.context
	}

	_, err := s.CreatePendingLink(ctx, CreatePendingLinkInput{
		Term:        ref.term,
		ContentType: input.ContentType,
		ContentID:   input.ContentID,
		Context:     snippet,
	})
	if err == nil {
		return true, nil
	}

	if eris.Is(err, ErrConflict) {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"component":    "wiki.scan",
				"term":         ref.term,
				"content_type": input.ContentType,
				"content_id":   input.ContentID,
			}).Debug("pending link already recorded")
		}
		return false, nil
	}

	return false, err
}

// extractReferences walks body and returns the wiki references it tags, first
// spelling wins among terms that normalise alike.
func extractReferences(body string) ([]reference, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "parsing content body")
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var refs []reference

	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if term, ok := wikiTerm(node); ok {
				if key := NormalizeTerm(term); key != "" && seen.Add(key) {
					refs = append(refs, reference{term: term, context: referenceContext(node)})
				}
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return refs, nil
}

func wikiTerm(node *html.Node) (string, bool) {
	for _, attr := range node.Attr {
		if attr.Key != wikiTermAttribute {
			continue
		}
		term := strings.Join(strings.Fields(attr.Val), " ")
		if term == "" {
			term = strings.Join(strings.Fields(textContent(node)), " ")
		}
		return term, term != ""
	}
	return "", false
}

func referenceContext(node *html.Node) string {
	scope := node
	if node.Parent != nil && node.Parent.Type == html.ElementNode {
		scope = node.Parent
	}

	text := strings.Join(strings.Fields(textContent(scope)), " ")
	runes := []rune(text)
	if len(runes) > maxContextRunes {
		return strings.TrimSpace(string(runes[:maxContextRunes]))
	}
	return text
}

func textContent(node *html.Node) string {
	var builder strings.Builder

	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			builder.WriteString(n.Data)
			builder.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(node)

	return builder.String()
}
