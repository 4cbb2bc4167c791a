// Package cache stores rendered GET responses under structured keys and drops them
// by structured prefix.
package cache

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Key identifies a cached response.
type Key struct {
	Method string
	Path   string
	Query  string
}

// NewKey builds a key with a canonical path and a query sorted by parameter name.
func NewKey(method, path string, query url.Values) Key {
	return Key{
		Method: strings.ToUpper(method),
		Path:   cleanPath(path),
		Query:  query.Encode(),
	}
}

func (k Key) String() string {
	if k.Query == "" {
		return k.Method + " " + k.Path
	}
	return k.Method + " " + k.Path + "?" + k.Query
}

// Prefix selects every key with the same method whose path starts with the prefix
// path, compared segment by segment.
type Prefix struct {
	Method string
	Path   string
}

// NewPrefix builds a prefix with a canonical method and path.
func NewPrefix(method, path string) Prefix {
	return Prefix{Method: strings.ToUpper(method), Path: cleanPath(path)}
}

// Matches reports whether key falls under the prefix. "/api/wiki" matches
// "/api/wiki/entries" but not "/api/wikis".
func (p Prefix) Matches(key Key) bool {
	if !strings.EqualFold(p.Method, key.Method) {
		return false
	}

	prefix := segments(p.Path)
	path := segments(key.Path)
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}

func (p Prefix) String() string {
	return p.Method + " " + cleanPath(p.Path)
}

// Item is a cached response body.
type Item struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Cache stores items by key.
type Cache interface {
	Get(ctx context.Context, key Key) (Item, bool, error)
	Set(ctx context.Context, key Key, item Item) error
	Invalidate(ctx context.Context, prefix Prefix) (int, error)
}

// WikiReads is the prefix invalidated by every wiki mutation.
var WikiReads = Prefix{Method: http.MethodGet, Path: "/api/wiki"}

func cleanPath(path string) string {
	return "/" + strings.Join(segments(path), "/")
}

func segments(path string) []string {
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// prefixesOf lists every prefix a key falls under, from the root down.
func prefixesOf(key Key) []Prefix {
	parts := segments(key.Path)
	prefixes := make([]Prefix, 0, len(parts)+1)
	for i := 0; i <= len(parts); i++ {
		prefixes = append(prefixes, Prefix{Method: key.Method, Path: "/" + strings.Join(parts[:i], "/")})
	}
	return prefixes
}

// Nop never stores anything.
type Nop struct{}

var _ Cache = Nop{}

// Get always misses.
func (Nop) Get(context.Context, Key) (Item, bool, error) { return Item{}, false, nil }

// Set discards the item.
func (Nop) Set(context.Context, Key, Item) error { return nil }

// Invalidate removes nothing.
func (Nop) Invalidate(context.Context, Prefix) (int, error) { return 0, nil }
