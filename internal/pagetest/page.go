// Package pagetest provides an in-memory page backend for tests. Pages hold
// a goquery document plus simulated scroll geometry, focus, and a flag for
// whether the in-page runtime is currently injected.
package pagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/executor"
)

// Geometry is the simulated scroll state of a page
type Geometry struct {
	ScrollY        float64
	ViewportHeight float64
	DocumentHeight float64
}

// Page is a fake browser tab
type Page struct {
	mu sync.Mutex

	URL   string
	Title string

	doc      *goquery.Document
	geometry Geometry
	refs     map[string]*goquery.Selection
	nextRef  int
	focused  string
	runtime  bool

	// ScrollLimit caps how far ScrollTo moves per call; zero means unlimited
	ScrollLimit float64

	// OnClick runs after a click is recorded, e.g. to simulate navigation
	OnClick func(p *Page, el *goquery.Selection)

	clicks  []string
	submits []string
	keys    []string
	events  []string
}

// NewPage parses markup into a page. The runtime starts uninjected.
func NewPage(url, markup string, g Geometry) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &Page{
		URL:      url,
		Title:    strings.TrimSpace(doc.Find("title").Text()),
		doc:      doc,
		geometry: g,
		refs:     map[string]*goquery.Selection{},
	}, nil
}

// MustPage is NewPage that panics on error
func MustPage(url, markup string, g Geometry) *Page {
	p, err := NewPage(url, markup, g)
	if err != nil {
		panic(err)
	}
	return p
}

// Reload simulates a navigation: the runtime, refs and focus are destroyed
func (p *Page) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runtime = false
	p.refs = map[string]*goquery.Selection{}
	p.focused = ""
}

// SetRuntime marks the runtime present or absent without counting an injection
func (p *Page) SetRuntime(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runtime = ready
}

// HasRuntime reports whether the runtime is injected
func (p *Page) HasRuntime() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runtime
}

// Geometry returns the current scroll state
func (p *Page) Geometry() Geometry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.geometry
}

// Focus gives focus to the first element matching selector
func (p *Page) Focus(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("no element matches %s", selector)
	}
	p.focused = p.refFor(sel)
	return nil
}

// Value returns the value attribute (or text for textareas) of the first match
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector).First()
	if goquery.NodeName(sel) == "textarea" {
		return sel.Text()
	}
	v, _ := sel.Attr("value")
	return v
}

// Clicks returns the refs clicked so far
func (p *Page) Clicks() []string { return p.snapshot(&p.clicks) }

// Submits returns the refs whose forms were submitted
func (p *Page) Submits() []string { return p.snapshot(&p.submits) }

// Keys returns the keys pressed so far
func (p *Page) Keys() []string { return p.snapshot(&p.keys) }

// Events returns the dispatched DOM events as "<event>:<ref>"
func (p *Page) Events() []string { return p.snapshot(&p.events) }

func (p *Page) snapshot(s *[]string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(*s))
	copy(out, *s)
	return out
}

// HTML serializes the live document element
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return goquery.OuterHtml(p.doc.Find("html").First())
}

func (p *Page) checkRuntime() error {
	if !p.runtime {
		return fmt.Errorf("runtime not injected in %s: %w", p.URL, executor.ErrNoResponse)
	}
	return nil
}

func (p *Page) maxScroll() float64 {
	m := p.geometry.DocumentHeight - p.geometry.ViewportHeight
	if m < 0 {
		return 0
	}
	return m
}

// Metrics implements executor.DOM
func (p *Page) Metrics(ctx context.Context) (executor.Metrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkRuntime(); err != nil {
		return executor.Metrics{}, err
	}
	g := p.geometry
	return executor.Metrics{
		ScrollY:          g.ScrollY,
		ViewportHeight:   g.ViewportHeight,
		BodyScrollHeight: g.DocumentHeight,
		BodyOffsetHeight: g.DocumentHeight,
		DocClientHeight:  g.ViewportHeight,
	}, nil
}

// ScrollTo implements executor.DOM, clamping like a browser does
func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkRuntime(); err != nil {
		return err
	}
	if p.ScrollLimit > 0 {
		if y > p.geometry.ScrollY+p.ScrollLimit {
			y = p.geometry.ScrollY + p.ScrollLimit
		}
		if y < p.geometry.ScrollY-p.ScrollLimit {
			y = p.geometry.ScrollY - p.ScrollLimit
		}
	}
	if y < 0 {
		y = 0
	}
	if m := p.maxScroll(); y > m {
		y = m
	}
	p.geometry.ScrollY = y
	return nil
}

var candidates = map[string]string{
	"button": `button, [role="button"], input[type="submit"], input[type="button"]`,
	"link":   `a`,
	"input":  `input, textarea`,
	"select": `select`,
}

const anyCandidate = `button, [role="button"], input, textarea, select, a`

// Resolve implements executor.DOM
func (p *Page) Resolve(ctx context.Context, loc action.Locator) (*executor.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkRuntime(); err != nil {
		return nil, err
	}

	if loc.Selector != "" {
		// goquery matches nothing for an invalid selector
		if sel := p.doc.Find(loc.Selector).First(); sel.Length() > 0 {
			el := p.describe(sel)
			el.Selector = loc.Selector
			return el, nil
		}
	}

	hint := strings.ToLower(strings.TrimSpace(loc.Text))
	if hint == "" {
		return nil, nil
	}
	query, ok := candidates[strings.ToLower(loc.ElementType)]
	if !ok {
		query = anyCandidate
	}

	var found *goquery.Selection
	p.doc.Find(query).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, label := range labels(s) {
			if strings.Contains(strings.ToLower(label), hint) {
				found = s
				return false
			}
		}
		return true
	})
	if found == nil {
		return nil, nil
	}
	return p.describe(found), nil
}

func labels(s *goquery.Selection) []string {
	out := []string{strings.TrimSpace(s.Text())}
	for _, attr := range []string{"value", "placeholder", "aria-label"} {
		if v, ok := s.Attr(attr); ok {
			out = append(out, v)
		}
	}
	return out
}

// Focused implements executor.DOM
func (p *Page) Focused(ctx context.Context) (*executor.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkRuntime(); err != nil {
		return nil, err
	}
	if p.focused == "" {
		return nil, nil
	}
	return p.describe(p.refs[p.focused]), nil
}

// ScrollIntoView implements executor.DOM
func (p *Page) ScrollIntoView(ctx context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.lookup(ref)
	return err
}

// Click implements executor.DOM. Editable targets take focus.
func (p *Page) Click(ctx context.Context, ref string) error {
	p.mu.Lock()
	sel, err := p.lookup(ref)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, ref)
	if editable(sel) {
		p.focused = ref
	}
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, sel)
	}
	return nil
}

// SubmitForm implements executor.DOM
func (p *Page) SubmitForm(ctx context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.lookup(ref)
	if err != nil {
		return err
	}
	if sel.Closest("form").Length() == 0 {
		return action.Errorf(action.ErrInvalidTarget, "element is not inside a form")
	}
	p.submits = append(p.submits, ref)
	return nil
}

// SetValue implements executor.DOM
func (p *Page) SetValue(ctx context.Context, ref, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.lookup(ref)
	if err != nil {
		return "", err
	}
	if !editable(sel) {
		return "", action.Errorf(action.ErrInvalidTarget, "%s is not editable", goquery.NodeName(sel))
	}

	if goquery.NodeName(sel) == "textarea" {
		sel.SetText(text)
	} else {
		sel.SetAttr("value", text)
	}
	p.focused = ref
	p.events = append(p.events, "input:"+ref, "change:"+ref)
	return text, nil
}

// PressKey implements executor.DOM
func (p *Page) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkRuntime(); err != nil {
		return err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, "keydown:"+key, "keyup:"+key)
	return nil
}

func (p *Page) lookup(ref string) (*goquery.Selection, error) {
	if err := p.checkRuntime(); err != nil {
		return nil, err
	}
	sel, ok := p.refs[ref]
	if !ok {
		return nil, action.Errorf(action.ErrElementNotFound, "element %s is no longer attached", ref)
	}
	return sel, nil
}

func (p *Page) refFor(sel *goquery.Selection) string {
	for ref, s := range p.refs {
		if s.IsSelection(sel) {
			return ref
		}
	}
	p.nextRef++
	ref := fmt.Sprintf("e%d", p.nextRef)
	p.refs[ref] = sel
	return ref
}

var textTypes = map[string]bool{
	"": true, "text": true, "email": true, "password": true, "search": true,
	"tel": true, "url": true, "number": true,
}

func editable(sel *goquery.Selection) bool {
	switch goquery.NodeName(sel) {
	case "textarea":
		return true
	case "input":
		t, _ := sel.Attr("type")
		return textTypes[strings.ToLower(t)]
	}
	ce, ok := sel.Attr("contenteditable")
	return ok && ce != "false"
}

func submits(sel *goquery.Selection) bool {
	t, hasType := sel.Attr("type")
	switch goquery.NodeName(sel) {
	case "input":
		return strings.EqualFold(t, "submit")
	case "button":
		return !hasType || strings.EqualFold(t, "submit")
	}
	return false
}

func (p *Page) describe(sel *goquery.Selection) *executor.Element {
	typ, _ := sel.Attr("type")
	el := &executor.Element{
		Ref:      p.refFor(sel),
		Tag:      goquery.NodeName(sel),
		Type:     strings.ToLower(typ),
		Text:     strings.TrimSpace(sel.Text()),
		Editable: editable(sel),
		InForm:   sel.Closest("form").Length() > 0,
	}
	el.Submit = submits(sel) && el.InForm
	if id, ok := sel.Attr("id"); ok && id != "" {
		el.Selector = "#" + id
	}
	return el
}
