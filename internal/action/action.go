package action

import (
	"fmt"
	"strings"
)

// Kind discriminates the Action variants
type Kind string

const (
	KindClick    Kind = "click"
	KindType     Kind = "type"
	KindScroll   Kind = "scroll"
	KindKeyPress Kind = "keypress"
	KindWait     Kind = "wait"
	KindComplete Kind = "complete"
)

// Known reports whether k names a supported action
func (k Kind) Known() bool {
	switch k {
	case KindClick, KindType, KindScroll, KindKeyPress, KindWait, KindComplete:
		return true
	}
	return false
}

// Mutates reports whether a successful action of this kind gets enriched with page state
func (k Kind) Mutates() bool {
	return k == KindClick || k == KindType || k == KindWait
}

// Direction is the vertical scroll direction
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Locator identifies a target element either by selector or by a loose descriptor
type Locator struct {
	Selector    string `json:"selector,omitempty"`     // CSS selector
	ElementType string `json:"element_type,omitempty"` // button, link, input, select
	Text        string `json:"text_content,omitempty"` // visible text hint
}

// Empty reports whether the locator carries nothing resolvable
func (l Locator) Empty() bool {
	return strings.TrimSpace(l.Selector) == "" && strings.TrimSpace(l.Text) == ""
}

func (l Locator) String() string {
	switch {
	case l.Selector != "" && l.Text != "":
		return fmt.Sprintf("%s (%q)", l.Selector, l.Text)
	case l.Selector != "":
		return l.Selector
	case l.ElementType != "":
		return fmt.Sprintf("%s %q", l.ElementType, l.Text)
	default:
		return fmt.Sprintf("%q", l.Text)
	}
}

// Action is a single abstract UI action issued by the controller
type Action struct {
	Kind      Kind      `json:"action"`
	Target    *Locator  `json:"element_data,omitempty"` // click, type
	Text      string    `json:"text,omitempty"`         // type
	Direction Direction `json:"direction,omitempty"`    // scroll
	Pixels    int       `json:"pixels,omitempty"`       // scroll
	Key       string    `json:"key,omitempty"`          // keypress
	Duration  float64   `json:"duration,omitempty"`     // wait, in seconds
	Reason    string    `json:"reason,omitempty"`       // complete
}

// Click builds a click action for a selector
func Click(selector string) Action {
	return Action{Kind: KindClick, Target: &Locator{Selector: selector}}
}

// TypeText builds a type action; a nil target means the focused element
func TypeText(target *Locator, text string) Action {
	return Action{Kind: KindType, Target: target, Text: text}
}

// Scroll builds a scroll action
func Scroll(dir Direction, pixels int) Action {
	return Action{Kind: KindScroll, Direction: dir, Pixels: pixels}
}

// KeyPress builds a key press action
func KeyPress(key string) Action {
	return Action{Kind: KindKeyPress, Key: key}
}

// Wait builds a wait action
func Wait(seconds float64) Action {
	return Action{Kind: KindWait, Duration: seconds}
}

// Complete builds the terminal marker
func Complete(reason string) Action {
	return Action{Kind: KindComplete, Reason: reason}
}

// Validate checks the per-variant invariants
func (a Action) Validate() error {
	switch a.Kind {
	case KindClick:
		if a.Target == nil || a.Target.Empty() {
			return Errorf(ErrInvalidTarget, "click requires a selector or element description")
		}
	case KindType:
		// a nil target falls back to the focused element; text may be empty
	case KindScroll:
		if a.Direction != DirectionUp && a.Direction != DirectionDown {
			return Errorf(ErrInvalidTarget, "scroll direction must be up or down, got %q", a.Direction)
		}
		if a.Pixels <= 0 {
			return Errorf(ErrInvalidTarget, "scroll pixels must be positive, got %d", a.Pixels)
		}
	case KindKeyPress:
		if strings.TrimSpace(a.Key) == "" {
			return Errorf(ErrInvalidTarget, "keypress requires a key name")
		}
	case KindWait:
		if a.Duration < 0 {
			return Errorf(ErrInvalidTarget, "wait duration must not be negative, got %v", a.Duration)
		}
	case KindComplete:
	default:
		return Errorf(ErrUnknownActionKind, "unknown action kind %q", a.Kind)
	}
	return nil
}

// Describe renders a one-line human summary, used for logs and transcripts
func (a Action) Describe() string {
	switch a.Kind {
	case KindClick:
		return fmt.Sprintf("click %s", a.Target)
	case KindType:
		if a.Target == nil {
			return fmt.Sprintf("type %q into focused element", a.Text)
		}
		return fmt.Sprintf("type %q into %s", a.Text, a.Target)
	case KindScroll:
		return fmt.Sprintf("scroll %s by %d px", a.Direction, a.Pixels)
	case KindKeyPress:
		return fmt.Sprintf("press %s", a.Key)
	case KindWait:
		return fmt.Sprintf("wait %gs", a.Duration)
	case KindComplete:
		if a.Reason == "" {
			return "complete"
		}
		return "complete: " + a.Reason
	default:
		return string(a.Kind)
	}
}
