// Package browser drives Chromium through go-rod: it owns the tabs, injects
// the in-page runtime and carries executor primitives over CDP.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/tab"
)

// Options configures the browser
type Options struct {
	Width      int
	Height     int
	Headless   bool
	Stealth    bool
	NoSandbox  bool
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
	ControlURL string // connect to a running browser instead of launching one
	Timeout    time.Duration

	// ActionTimeout bounds waiting for a click target to become interactable
	ActionTimeout time.Duration

	// Executor configures the settle timings of actions run in tabs
	Executor executor.Options
}

// Browser wraps the Rod browser and the tabs it manages
type Browser struct {
	browser *rod.Browser
	opts    Options
	log     logger.Logger

	mu     sync.Mutex
	pages  map[tab.ID]*rod.Page
	active tab.ID
}

// Launch starts (or connects to) a browser
func Launch(ctx context.Context, opts Options, log logger.Logger) (*Browser, error) {
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 720
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = defaultActionTimeout
	}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).Headless(opts.Headless).Set("disable-dev-shm-usage")
		if path, found := launcher.LookPath(); found {
			l = l.Bin(path)
		}
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		if opts.Stealth {
			l = l.Set("disable-blink-features", "AutomationControlled")
		}
		if opts.NoSandbox {
			l = l.Set("no-sandbox")
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).NoDefaultDevice()
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", controlURL, err)
	}
	log.Info(ctx, "browser connected", map[string]interface{}{"control_url": controlURL, "headless": opts.Headless})

	return &Browser{
		browser: b,
		opts:    opts,
		log:     log,
		pages:   map[tab.ID]*rod.Page{},
	}, nil
}

// Close cleans up browser resources
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pages {
		_ = p.Close()
	}
	b.pages = map[tab.ID]*rod.Page{}
	if b.opts.ControlURL == "" {
		_ = b.browser.Close()
	}
}

// Open creates a tab, navigates it to url and makes it the active tab
func (b *Browser) Open(ctx context.Context, url string) (tab.Info, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.opts.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return tab.Info{}, fmt.Errorf("failed to create tab: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = page.Close()
		return tab.Info{}, fmt.Errorf("failed to set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		_ = page.Close()
		return tab.Info{}, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.log.Warn(ctx, "page load did not settle", map[string]interface{}{"url": url, "error": err.Error()})
	}

	// Don't hang on persistent connections (WebSockets, polling, etc.)
	page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()

	id := tab.ID(page.TargetID)
	b.mu.Lock()
	b.pages[id] = page
	b.active = id
	b.mu.Unlock()

	return b.Lookup(ctx, id)
}

// Activate brings id to the front and makes it the active tab
func (b *Browser) Activate(ctx context.Context, id tab.ID) error {
	page, err := b.page(id)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("failed to activate tab %s: %w", id, err)
	}
	b.mu.Lock()
	b.active = id
	b.mu.Unlock()
	return nil
}

// Active implements tab.Resolver. Without an opened tab the first page
// target of the browser is used.
func (b *Browser) Active(ctx context.Context) (tab.Info, error) {
	b.mu.Lock()
	id := b.active
	b.mu.Unlock()
	if id != "" {
		return b.Lookup(ctx, id)
	}

	pages, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return tab.Info{}, fmt.Errorf("failed to list tabs: %w", err)
	}
	if len(pages) == 0 {
		return tab.Info{}, tab.ErrNoActiveTab
	}
	return b.Lookup(ctx, tab.ID(pages.First().TargetID))
}

// Lookup implements tab.Resolver
func (b *Browser) Lookup(ctx context.Context, id tab.ID) (tab.Info, error) {
	page, err := b.page(id)
	if err != nil {
		return tab.Info{}, err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return tab.Info{}, fmt.Errorf("tab %s is gone: %w", id, tab.ErrNoActiveTab)
	}
	return tab.Info{ID: id, URL: info.URL, Title: info.Title}, nil
}

// page returns the rod page for id, adopting targets opened outside this Browser
func (b *Browser) page(id tab.ID) (*rod.Page, error) {
	b.mu.Lock()
	p, ok := b.pages[id]
	b.mu.Unlock()
	if ok {
		return p, nil
	}

	pages, err := b.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	for _, candidate := range pages {
		if tab.ID(candidate.TargetID) == id {
			b.mu.Lock()
			b.pages[id] = candidate
			b.mu.Unlock()
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("tab %s: %w", id, tab.ErrNoActiveTab)
}
