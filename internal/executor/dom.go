package executor

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/v0xg/pagepilot/internal/action"
)

// ErrNoResponse means the in-page runtime did not answer: it is missing,
// the execution context was destroyed, or the browser connection failed.
var ErrNoResponse = errors.New("no response from content script")

// State is the lifecycle of the in-page runtime
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
)

// StatusReady is the status field of a successful ping reply
const StatusReady = "ready"

// PingReply is what a live runtime answers to PING
type PingReply struct {
	Status string `json:"status"`
	State  State  `json:"state,omitempty"`
}

// Ready reports whether the reply came from an initialized runtime
func (r PingReply) Ready() bool {
	return r.Status == StatusReady
}

// Element describes a resolved DOM element. Ref is an opaque handle valid
// until the next navigation.
type Element struct {
	Ref      string `json:"ref"`
	Tag      string `json:"tag"`
	Type     string `json:"type,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Editable bool   `json:"editable"`
	Submit   bool   `json:"submit"`
	InForm   bool   `json:"inForm"`
}

// Metrics is one reading of the document scroll geometry
type Metrics struct {
	ScrollY          float64 `json:"scrollY"`
	ViewportHeight   float64 `json:"viewportHeight"`
	BodyScrollHeight float64 `json:"bodyScrollHeight"`
	BodyOffsetHeight float64 `json:"bodyOffsetHeight"`
	BodyClientHeight float64 `json:"bodyClientHeight"`
	DocScrollHeight  float64 `json:"docScrollHeight"`
	DocOffsetHeight  float64 `json:"docOffsetHeight"`
	DocClientHeight  float64 `json:"docClientHeight"`
}

// DocumentHeight is the largest of the body and documentElement heights
func (m Metrics) DocumentHeight() float64 {
	h := m.BodyScrollHeight
	for _, v := range []float64{m.BodyOffsetHeight, m.BodyClientHeight, m.DocScrollHeight, m.DocOffsetHeight, m.DocClientHeight} {
		h = math.Max(h, v)
	}
	return h
}

// MaxScroll is the largest reachable scrollY, never negative
func (m Metrics) MaxScroll() float64 {
	return math.Max(0, m.DocumentHeight()-m.ViewportHeight)
}

// DOM is the set of primitive operations the in-page runtime exposes.
// Implementations return an error wrapping ErrNoResponse when the runtime
// cannot be reached; any other error is a DOM-level failure.
type DOM interface {
	Metrics(ctx context.Context) (Metrics, error)
	ScrollTo(ctx context.Context, y float64) error

	// Resolve returns nil, nil when nothing matches
	Resolve(ctx context.Context, loc action.Locator) (*Element, error)

	// Focused returns nil, nil when no element other than the body has focus
	Focused(ctx context.Context) (*Element, error)

	ScrollIntoView(ctx context.Context, ref string) error
	Click(ctx context.Context, ref string) error
	SubmitForm(ctx context.Context, ref string) error

	// SetValue replaces the value of an editable element, fires input and
	// change, and returns the value read back
	SetValue(ctx context.Context, ref, text string) (string, error)

	// PressKey sends key-down and key-up for a canonical key name to the focused element
	PressKey(ctx context.Context, key string) error
}

var namedKeys = map[string]string{
	"enter":      "Enter",
	"return":     "Enter",
	"tab":        "Tab",
	"escape":     "Escape",
	"esc":        "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
	"space":      "Space",
}

// NormalizeKey maps a key name to its canonical form. Single characters pass through.
func NormalizeKey(key string) (string, bool) {
	if k, ok := namedKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return k, true
	}
	if len([]rune(key)) == 1 {
		return key, true
	}
	return "", false
}
