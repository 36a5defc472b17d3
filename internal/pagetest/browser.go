package pagetest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/tab"
)

// Browser is a fake multi-tab browser. It resolves tabs, carries actions to
// pages the way the rod transport does, and captures page state.
type Browser struct {
	mu     sync.Mutex
	pages  map[tab.ID]*Page
	order  []tab.ID
	active tab.ID

	// InjectErr makes every injection fail
	InjectErr error
	// InjectNoop counts injections without installing the runtime
	InjectNoop bool
	// ScreenshotErr and HTMLErr make captures fail
	ScreenshotErr error
	HTMLErr       error
	// ScreenshotSize is the width and height of generated screenshots
	ScreenshotSize image.Point

	pings       int
	injections  int
	executions  int
	screenshots int
	sleeps      []time.Duration
}

// NewBrowser creates an empty browser with 1280x720 screenshots
func NewBrowser() *Browser {
	return &Browser{
		pages:          map[tab.ID]*Page{},
		ScreenshotSize: image.Pt(1280, 720),
	}
}

// Add registers a page under id and makes it the active tab
func (b *Browser) Add(id tab.ID, p *Page) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pages[id]; !ok {
		b.order = append(b.order, id)
	}
	b.pages[id] = p
	b.active = id
	return p
}

// Activate switches the active tab
func (b *Browser) Activate(id tab.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = id
}

// Page returns the page registered under id
func (b *Browser) Page(id tab.ID) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages[id]
}

func (b *Browser) page(id tab.ID) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pages[id]
	if !ok {
		return nil, fmt.Errorf("tab %s: %w", id, tab.ErrNoActiveTab)
	}
	return p, nil
}

// Active implements tab.Resolver
func (b *Browser) Active(ctx context.Context) (tab.Info, error) {
	b.mu.Lock()
	id := b.active
	b.mu.Unlock()
	if id == "" {
		return tab.Info{}, tab.ErrNoActiveTab
	}
	return b.Lookup(ctx, id)
}

// Lookup implements tab.Resolver
func (b *Browser) Lookup(ctx context.Context, id tab.ID) (tab.Info, error) {
	p, err := b.page(id)
	if err != nil {
		return tab.Info{}, err
	}
	return tab.Info{ID: id, URL: p.URL, Title: p.Title}, nil
}

// Ping answers like the runtime would
func (b *Browser) Ping(ctx context.Context, id tab.ID) error {
	b.mu.Lock()
	b.pings++
	b.mu.Unlock()

	p, err := b.page(id)
	if err != nil {
		return err
	}
	if !p.HasRuntime() {
		return fmt.Errorf("ping %s: %w", id, executor.ErrNoResponse)
	}
	return nil
}

// Inject installs the runtime into the page
func (b *Browser) Inject(ctx context.Context, id tab.ID) error {
	b.mu.Lock()
	b.injections++
	injectErr, noop := b.InjectErr, b.InjectNoop
	b.mu.Unlock()

	p, err := b.page(id)
	if err != nil {
		return err
	}
	if injectErr != nil {
		return injectErr
	}
	if !noop {
		p.SetRuntime(true)
	}
	return nil
}

// Execute runs a through an executor bound to the page
func (b *Browser) Execute(ctx context.Context, id tab.ID, a action.Action) (action.Result, error) {
	b.mu.Lock()
	b.executions++
	b.mu.Unlock()

	p, err := b.page(id)
	if err != nil {
		return action.Result{}, err
	}
	if !p.HasRuntime() {
		return action.Result{}, fmt.Errorf("execute on %s: %w", id, executor.ErrNoResponse)
	}
	return executor.New(p, executor.Options{Sleep: b.sleep}).Execute(ctx, a)
}

func (b *Browser) sleep(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sleeps = append(b.sleeps, d)
}

// Screenshot renders a solid PNG of ScreenshotSize
func (b *Browser) Screenshot(ctx context.Context, id tab.ID) ([]byte, error) {
	b.mu.Lock()
	b.screenshots++
	shotErr, size := b.ScreenshotErr, b.ScreenshotSize
	b.mu.Unlock()

	if _, err := b.page(id); err != nil {
		return nil, err
	}
	if shotErr != nil {
		return nil, shotErr
	}

	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			img.Set(x, y, color.RGBA{R: 32, G: 96, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HTML serializes the page's document element
func (b *Browser) HTML(ctx context.Context, id tab.ID) (string, error) {
	b.mu.Lock()
	htmlErr := b.HTMLErr
	b.mu.Unlock()

	p, err := b.page(id)
	if err != nil {
		return "", err
	}
	if htmlErr != nil {
		return "", htmlErr
	}
	return p.HTML()
}

// Pings returns the number of liveness probes received
func (b *Browser) Pings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pings
}

// Injections returns the number of injection attempts
func (b *Browser) Injections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.injections
}

// Executions returns the number of actions forwarded
func (b *Browser) Executions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executions
}

// Screenshots returns the number of screenshot calls
func (b *Browser) Screenshots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.screenshots
}

// Sleeps returns the settle and wait delays requested by executors
func (b *Browser) Sleeps() []time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]time.Duration, len(b.sleeps))
	copy(out, b.sleeps)
	return out
}

// FormPage is a small login form used across tests
const FormPage = `<html><head><title>Sign in</title></head><body>
<form id="login" action="/session">
  <input id="email" name="email" type="email" placeholder="Email">
  <input id="password" name="password" type="password">
  <input id="remember" type="checkbox">
  <textarea id="notes"></textarea>
  <button id="go">Sign in</button>
</form>
<a id="signup" href="/signup" title="Sign up">Create an account</a>
<button id="menu" type="button" aria-label="Open menu">&#9776;</button>
<div id="plain">Just text</div>
</body></html>`
