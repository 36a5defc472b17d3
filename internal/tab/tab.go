package tab

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ID identifies a browser tab (the CDP target id for rod-backed tabs)
type ID string

// Info describes a resolved tab
type Info struct {
	ID    ID     `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ErrNoActiveTab is returned when no tab can be resolved
var ErrNoActiveTab = errors.New("no active tab")

// Resolver looks tabs up
type Resolver interface {
	// Active returns the currently active tab
	Active(ctx context.Context) (Info, error)

	// Lookup returns the tab with the given id
	Lookup(ctx context.Context, id ID) (Info, error)
}

// Resolve returns the tab for id, falling back to the active tab when id is empty
func Resolve(ctx context.Context, r Resolver, id ID) (Info, error) {
	if id == "" {
		return r.Active(ctx)
	}
	return r.Lookup(ctx, id)
}

// privilegedSchemes cannot host the in-page runtime
var privilegedSchemes = map[string]bool{
	"about":            true,
	"chrome":           true,
	"chrome-extension": true,
	"chrome-search":    true,
	"chrome-untrusted": true,
	"devtools":         true,
	"edge":             true,
	"brave":            true,
	"moz-extension":    true,
	"view-source":      true,
}

// InaccessibleError reports a tab whose URL cannot host the runtime
type InaccessibleError struct {
	URL    string
	Reason string
}

func (e *InaccessibleError) Error() string {
	return fmt.Sprintf("page not accessible: %s", e.Reason)
}

// CheckAccessible rejects internal browser pages and extension pages
func CheckAccessible(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return &InaccessibleError{URL: rawURL, Reason: "tab has no URL"}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &InaccessibleError{URL: rawURL, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if privilegedSchemes[scheme] {
		return &InaccessibleError{URL: rawURL, Reason: fmt.Sprintf("scheme '%s' is privileged", parsed.Scheme)}
	}
	return nil
}
