package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/v0xg/pagepilot/internal/action"
)

// Options configures execution behavior
type Options struct {
	ScrollSettle      time.Duration // wait after a smooth scroll before measuring
	ClickSettle       time.Duration // wait after scrolling a target into view
	BoundaryTolerance float64       // pixels within which a position counts as a boundary
	Sleep             func(time.Duration)
}

// ExactBoundaries is a BoundaryTolerance that only counts exact positions as
// boundaries. A zero tolerance selects the default.
const ExactBoundaries = -1

// DefaultOptions returns the production settle timings
func DefaultOptions() Options {
	return Options{
		ScrollSettle:      700 * time.Millisecond,
		ClickSettle:       300 * time.Millisecond,
		BoundaryTolerance: 2,
		Sleep:             time.Sleep,
	}
}

// Executor runs primitive actions against a single page
type Executor struct {
	dom  DOM
	opts Options
}

// New creates an Executor. Zero option fields take their defaults.
func New(dom DOM, opts Options) *Executor {
	def := DefaultOptions()
	if opts.ScrollSettle == 0 {
		opts.ScrollSettle = def.ScrollSettle
	}
	if opts.ClickSettle == 0 {
		opts.ClickSettle = def.ClickSettle
	}
	switch {
	case opts.BoundaryTolerance == 0:
		opts.BoundaryTolerance = def.BoundaryTolerance
	case opts.BoundaryTolerance < 0:
		opts.BoundaryTolerance = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = def.Sleep
	}
	return &Executor{dom: dom, opts: opts}
}

// Execute runs a single action. DOM failures come back as an unsuccessful
// Result; the returned error is non-nil only when the runtime stopped
// answering, and then wraps ErrNoResponse.
func (e *Executor) Execute(ctx context.Context, a action.Action) (action.Result, error) {
	var (
		res action.Result
		err error
	)

	switch a.Kind {
	case action.KindScroll:
		res, err = e.scroll(ctx, a)
	case action.KindClick:
		res, err = e.click(ctx, a)
	case action.KindType:
		res, err = e.typeText(ctx, a)
	case action.KindKeyPress:
		res, err = e.pressKey(ctx, a)
	case action.KindWait:
		res, err = e.wait(a)
	default:
		return action.Failed(action.ErrUnknownActionKind, fmt.Sprintf("%q is not a page action", a.Kind)), nil
	}

	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrNoResponse) {
		return action.Result{}, err
	}
	return action.FromError(err, action.ErrInvalidTarget), nil
}

// scroll moves the viewport by a signed amount, clamped to the document,
// and measures where it actually landed
func (e *Executor) scroll(ctx context.Context, a action.Action) (action.Result, error) {
	before, err := e.dom.Metrics(ctx)
	if err != nil {
		return action.Result{}, fmt.Errorf("failed to read scroll metrics: %w", err)
	}

	start := before.ScrollY
	maxScroll := before.MaxScroll()
	requested := float64(a.Pixels)
	if a.Direction == action.DirectionUp {
		requested = -requested
	}

	details := action.Details{
		action.DetailStartPosition:   start,
		action.DetailRequestedChange: requested,
		action.DetailMaxScroll:       maxScroll,
		action.DetailViewportHeight:  before.ViewportHeight,
		action.DetailDocumentHeight:  before.DocumentHeight(),
	}

	atTop := e.atTop(start)
	atBottom := e.atBottom(start, maxScroll)
	if (a.Direction == action.DirectionUp && atTop) || (a.Direction == action.DirectionDown && atBottom) {
		return action.Succeeded("", details.With(action.Details{
			action.DetailScrolled:     false,
			action.DetailEndPosition:  start,
			action.DetailActualChange: 0.0,
			action.DetailIsAtTop:      atTop,
			action.DetailIsAtBottom:   atBottom,
		})), nil
	}

	target := clamp(start+requested, 0, maxScroll)
	if err := e.dom.ScrollTo(ctx, target); err != nil {
		return action.Result{}, fmt.Errorf("failed to scroll to %.0f: %w", target, err)
	}
	e.opts.Sleep(e.opts.ScrollSettle)

	after, err := e.dom.Metrics(ctx)
	if err != nil {
		return action.Result{}, fmt.Errorf("failed to measure scroll: %w", err)
	}

	end := after.ScrollY
	actual := end - start
	endMax := after.MaxScroll()

	return action.Succeeded("", details.With(action.Details{
		action.DetailScrolled:       math.Abs(actual) > 0,
		action.DetailEndPosition:    end,
		action.DetailActualChange:   actual,
		action.DetailIsAtTop:        e.atTop(end),
		action.DetailIsAtBottom:     e.atBottom(end, endMax),
		action.DetailMaxScroll:      endMax,
		action.DetailDocumentHeight: after.DocumentHeight(),
	})), nil
}

func (e *Executor) atTop(y float64) bool {
	return y <= e.opts.BoundaryTolerance
}

func (e *Executor) atBottom(y, maxScroll float64) bool {
	return y >= maxScroll-e.opts.BoundaryTolerance
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func (e *Executor) click(ctx context.Context, a action.Action) (action.Result, error) {
	if a.Target == nil || a.Target.Empty() {
		return action.Failed(action.ErrInvalidTarget, "click requires a selector or element description"), nil
	}

	el, err := e.dom.Resolve(ctx, *a.Target)
	if err != nil {
		return action.Result{}, fmt.Errorf("failed to resolve %s: %w", a.Target, err)
	}
	if el == nil {
		return action.Failed(action.ErrElementNotFound, fmt.Sprintf("no element matches %s", a.Target)), nil
	}

	if err := e.dom.ScrollIntoView(ctx, el.Ref); err != nil {
		return action.Result{}, fmt.Errorf("failed to scroll %s into view: %w", el.Tag, err)
	}
	e.opts.Sleep(e.opts.ClickSettle)

	// Submit controls submit their form directly; a synthetic click on them
	// is not reliably honoured by every page.
	submitted := false
	if el.Submit && el.InForm {
		if err := e.dom.SubmitForm(ctx, el.Ref); err != nil {
			return action.Result{}, fmt.Errorf("failed to submit form: %w", err)
		}
		submitted = true
	} else if err := e.dom.Click(ctx, el.Ref); err != nil {
		return action.Result{}, fmt.Errorf("click failed: %w", err)
	}

	msg := fmt.Sprintf("clicked %s", describe(el))
	if submitted {
		msg = fmt.Sprintf("submitted form via %s", describe(el))
	}
	return action.Succeeded(msg, action.Details{
		action.DetailElement:   *el,
		action.DetailSubmitted: submitted,
	}), nil
}

func (e *Executor) typeText(ctx context.Context, a action.Action) (action.Result, error) {
	var (
		el  *Element
		err error
	)
	if a.Target != nil && !a.Target.Empty() {
		el, err = e.dom.Resolve(ctx, *a.Target)
		if err != nil {
			return action.Result{}, fmt.Errorf("failed to resolve %s: %w", a.Target, err)
		}
		if el == nil {
			return action.Failed(action.ErrElementNotFound, fmt.Sprintf("no element matches %s", a.Target)), nil
		}
	} else {
		el, err = e.dom.Focused(ctx)
		if err != nil {
			return action.Result{}, fmt.Errorf("failed to read focused element: %w", err)
		}
		if el == nil {
			return action.Failed(action.ErrElementNotFound, "no target given and no element has focus"), nil
		}
	}

	if !el.Editable {
		return action.Failed(action.ErrInvalidTarget, fmt.Sprintf("%s does not accept text input", describe(el))), nil
	}

	value, err := e.dom.SetValue(ctx, el.Ref, a.Text)
	if err != nil {
		return action.Result{}, fmt.Errorf("failed to set value: %w", err)
	}

	return action.Succeeded(fmt.Sprintf("typed %q into %s", a.Text, describe(el)), action.Details{
		action.DetailElement: *el,
		action.DetailText:    value,
	}), nil
}

func (e *Executor) pressKey(ctx context.Context, a action.Action) (action.Result, error) {
	key, ok := NormalizeKey(a.Key)
	if !ok {
		return action.Failed(action.ErrInvalidTarget, fmt.Sprintf("unknown key %q (use Enter, Tab, Escape, ArrowDown, etc.)", a.Key)), nil
	}

	el, err := e.dom.Focused(ctx)
	if err != nil {
		return action.Result{}, fmt.Errorf("failed to read focused element: %w", err)
	}
	if el == nil {
		return action.Failed(action.ErrInvalidTarget, fmt.Sprintf("cannot press %s: no element has focus", key)), nil
	}

	if err := e.dom.PressKey(ctx, key); err != nil {
		return action.Result{}, fmt.Errorf("press failed: %w", err)
	}

	return action.Succeeded(fmt.Sprintf("pressed %s on %s", key, describe(el)), action.Details{
		action.DetailKey:     key,
		action.DetailElement: *el,
	}), nil
}

func (e *Executor) wait(a action.Action) (action.Result, error) {
	e.opts.Sleep(time.Duration(a.Duration * float64(time.Second)))
	return action.Succeeded(fmt.Sprintf("waited %gs", a.Duration), action.Details{
		action.DetailWaited: a.Duration,
	}), nil
}

func describe(el *Element) string {
	switch {
	case el.Selector != "":
		return el.Selector
	case el.Text != "":
		return fmt.Sprintf("%s %q", el.Tag, truncate(el.Text, 30))
	default:
		return el.Tag
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
