package dispatcher

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/pagestate"
	"github.com/v0xg/pagepilot/internal/pagetest"
	"github.com/v0xg/pagepilot/internal/tab"
)

var tall = pagetest.Geometry{ViewportHeight: 720, DocumentHeight: 2720}

type fixture struct {
	d           *Dispatcher
	browser     *pagetest.Browser
	page        *pagetest.Page
	log         *logger.TestLogger
	sleeps      []time.Duration
	transitions []Transition
}

func newFixture(t *testing.T, url string, g pagetest.Geometry) *fixture {
	t.Helper()
	f := &fixture{
		browser: pagetest.NewBrowser(),
		log:     logger.NewTestLogger(),
	}
	f.browser.ScreenshotSize = image.Pt(16, 9)
	f.page = f.browser.Add("t1", pagetest.MustPage(url, pagetest.FormPage, g))

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	provider := pagestate.NewProvider(f.browser, pagestate.Options{Now: func() time.Time { return now }}, f.log)
	f.d = New(f.browser, f.browser, provider, Options{
		Sleep:       func(d time.Duration) { f.sleeps = append(f.sleeps, d) },
		OnReadiness: func(tr Transition) { f.transitions = append(f.transitions, tr) },
	}, f.log)
	return f
}

func TestDispatch_Scroll(t *testing.T) {
	tests := []struct {
		name     string
		start    float64
		action   action.Action
		message  string
		scrolled bool
		actual   float64
		atTop    bool
		atBottom bool
	}{
		{
			name:     "down with room",
			start:    0,
			action:   action.Scroll(action.DirectionDown, 100),
			message:  "scrolled down by 100 px",
			scrolled: true,
			actual:   100,
		},
		{
			name:    "up at top",
			start:   0,
			action:  action.Scroll(action.DirectionUp, 100),
			message: "already at top",
			atTop:   true,
		},
		{
			name:     "down at bottom",
			start:    2000,
			action:   action.Scroll(action.DirectionDown, 100),
			message:  "already at bottom",
			atBottom: true,
		},
		{
			name:     "down reaching bottom",
			start:    1800,
			action:   action.Scroll(action.DirectionDown, 500),
			message:  "already at bottom",
			scrolled: true,
			actual:   200,
			atBottom: true,
		},
		{
			name:     "up reaching top",
			start:    50,
			action:   action.Scroll(action.DirectionUp, 100),
			message:  "already at top",
			scrolled: true,
			actual:   -50,
			atTop:    true,
		},
		{
			name:     "up by some",
			start:    900,
			action:   action.Scroll(action.DirectionUp, 300),
			message:  "scrolled up by 300 px",
			scrolled: true,
			actual:   -300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tall
			g.ScrollY = tt.start
			f := newFixture(t, "https://example.test/feed", g)

			res := f.d.Dispatch(context.Background(), tt.action, "t1")
			require.True(t, res.Success, res.Message)
			assert.Equal(t, tt.message, res.Message)
			assert.Equal(t, tt.scrolled, res.Details.Bool(action.DetailScrolled))
			assert.Equal(t, tt.actual, res.Details.Float(action.DetailActualChange))
			assert.Equal(t, tt.atTop, res.Details.Bool(action.DetailIsAtTop))
			assert.Equal(t, tt.atBottom, res.Details.Bool(action.DetailIsAtBottom))

			// scroll results are not enriched with page state
			assert.False(t, res.Details.Has(action.DetailHTML))
			assert.Equal(t, 0, f.browser.Screenshots())
		})
	}
}

func TestClassifyScroll(t *testing.T) {
	tests := []struct {
		name    string
		dir     action.Direction
		details action.Details
		want    string
	}{
		{"up at top", action.DirectionUp, action.Details{action.DetailActualChange: 0.0, action.DetailIsAtTop: true}, "already at top"},
		{"down at bottom", action.DirectionDown, action.Details{action.DetailActualChange: 0.0, action.DetailIsAtBottom: true}, "already at bottom"},
		{"up flagged only at bottom", action.DirectionUp, action.Details{action.DetailActualChange: 0.0, action.DetailIsAtBottom: true}, "no scroll possible"},
		{"stuck mid page", action.DirectionDown, action.Details{action.DetailActualChange: 0.0}, "no scroll possible"},
		{"moved", action.DirectionDown, action.Details{action.DetailActualChange: 99.6}, "scrolled down by 100 px"},
		{"moved up onto top", action.DirectionUp, action.Details{action.DetailActualChange: -40.0, action.DetailIsAtTop: true}, "already at top"},
		{"moved down onto bottom", action.DirectionDown, action.Details{action.DetailActualChange: 40.0, action.DetailIsAtBottom: true}, "already at bottom"},
		{"moved down from top", action.DirectionDown, action.Details{action.DetailActualChange: 40.0, action.DetailIsAtTop: true}, "scrolled down by 40 px"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyScroll(tt.dir, tt.details))
		})
	}
}

func TestDispatch_ReadyExecutorIsNotReinjected(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)
	f.page.SetRuntime(true)

	res := f.d.Dispatch(context.Background(), action.Scroll(action.DirectionDown, 100), "t1")
	require.True(t, res.Success)

	assert.Equal(t, 1, f.browser.Pings())
	assert.Equal(t, 0, f.browser.Injections())
	assert.Empty(t, f.sleeps)
	assert.Equal(t, ReadinessReady, f.d.Readiness("t1"))
}

func TestDispatch_PingDoesNotTouchThePage(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)
	f.page.SetRuntime(true)
	before := f.page.Geometry()

	require.NoError(t, f.browser.Ping(context.Background(), "t1"))
	assert.Equal(t, before, f.page.Geometry())
	assert.Empty(t, f.page.Events())
	assert.Empty(t, f.page.Clicks())
}

func TestDispatch_InjectsOnceWhenProbeFails(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)

	res := f.d.Dispatch(context.Background(), action.Scroll(action.DirectionDown, 100), "t1")
	require.True(t, res.Success)

	assert.Equal(t, 1, f.browser.Pings(), "no second probe after injection")
	assert.Equal(t, 1, f.browser.Injections())
	assert.Equal(t, 1, f.browser.Executions())
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, f.sleeps)
	assert.Contains(t, f.log.Messages("info"), "executor not responding, injecting")

	assert.Equal(t, []Transition{
		{Tab: "t1", From: ReadinessUnknown, To: ReadinessProbing},
		{Tab: "t1", From: ReadinessProbing, To: ReadinessReady},
	}, f.transitions)
}

func TestDispatch_ReinjectsAfterNavigation(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)
	ctx := context.Background()

	require.True(t, f.d.Dispatch(ctx, action.Scroll(action.DirectionDown, 100), "t1").Success)
	f.page.Reload()
	require.True(t, f.d.Dispatch(ctx, action.Scroll(action.DirectionDown, 100), "t1").Success)

	assert.Equal(t, 2, f.browser.Pings())
	assert.Equal(t, 2, f.browser.Injections())
}

func TestDispatch_UnreachableAfterInjection(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)
	f.browser.InjectNoop = true

	res := f.d.Dispatch(context.Background(), action.Click("#go"), "t1")
	assert.False(t, res.Success)
	assert.Equal(t, action.ErrExecutorUnreachable, res.Error)
	assert.Equal(t, "no response from content script", res.Message)

	assert.Equal(t, 1, f.browser.Injections())
	assert.Equal(t, 1, f.browser.Pings())
	assert.Equal(t, ReadinessUnreachable, f.d.Readiness("t1"))
}

func TestDispatch_InjectionFailed(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)
	f.browser.InjectErr = errors.New("cannot access contents of the page")

	res := f.d.Dispatch(context.Background(), action.Click("#go"), "t1")
	assert.False(t, res.Success)
	assert.Equal(t, action.ErrInjectionFailed, res.Error)
	assert.Contains(t, res.Message, "cannot access contents")
	assert.Equal(t, 0, f.browser.Executions())
	assert.Equal(t, ReadinessUnreachable, f.d.Readiness("t1"))
}

func TestDispatch_TabChecks(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		tabID   tab.ID
		errKind action.ErrorKind
	}{
		{"privileged page", "chrome://settings", "t1", action.ErrInaccessiblePage},
		{"extension page", "chrome-extension://abc/popup.html", "", action.ErrInaccessiblePage},
		{"unknown tab", "https://example.test", "t9", action.ErrNoActiveTab},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.url, tall)

			res := f.d.Dispatch(context.Background(), action.Click("#go"), tt.tabID)
			assert.False(t, res.Success)
			assert.Equal(t, tt.errKind, res.Error)
			assert.Equal(t, 0, f.browser.Pings(), "no DOM work before the tab is accepted")
		})
	}
}

func TestDispatch_NoActiveTab(t *testing.T) {
	b := pagetest.NewBrowser()
	log := logger.NewTestLogger()
	d := New(b, b, pagestate.NewProvider(b, pagestate.Options{}, log), Options{Sleep: func(time.Duration) {}}, log)

	res := d.Dispatch(context.Background(), action.Wait(0), "")
	assert.False(t, res.Success)
	assert.Equal(t, action.ErrNoActiveTab, res.Error)
}

func TestDispatch_ClickMissing(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)

	res := f.d.Dispatch(context.Background(), action.Click("#missing"), "t1")
	assert.False(t, res.Success)
	assert.Equal(t, action.ErrElementNotFound, res.Error)
	assert.Equal(t, 0, f.browser.Screenshots(), "failed actions are not enriched")
}

func TestDispatch_TypeIsEnriched(t *testing.T) {
	f := newFixture(t, "https://example.test/login", tall)

	res := f.d.Dispatch(context.Background(), action.TypeText(&action.Locator{Selector: "#email"}, "hello"), "")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "hello", res.Details.String(action.DetailText))
	assert.Contains(t, res.Details.String(action.DetailHTML), `value="hello"`)
	assert.True(t, strings.HasPrefix(res.Details.String(action.DetailScreenshot), "data:image/png;base64,"))
}

func TestDispatch_SecondCaptureIsRateLimited(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)
	ctx := context.Background()

	first := f.d.Dispatch(ctx, action.Wait(0.5), "t1")
	second := f.d.Dispatch(ctx, action.Wait(0.5), "t1")

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.True(t, first.Details.Has(action.DetailScreenshot))
	assert.False(t, second.Details.Has(action.DetailScreenshot))
	assert.NotEmpty(t, second.Details.String(action.DetailHTML))
}

func TestDispatch_CaptureFailureAfterSuccess(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)
	f.browser.HTMLErr = errors.New("target closed")

	res := f.d.Dispatch(context.Background(), action.Click("#menu"), "t1")
	assert.False(t, res.Success)
	assert.Equal(t, action.ErrCaptureError, res.Error)
	assert.Contains(t, res.Message, "action succeeded, capture failed")
	assert.True(t, res.Details.Bool(action.DetailActionSucceeded))
	assert.Len(t, f.page.Clicks(), 1)
}

func TestDispatch_Complete(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)

	res := f.d.Dispatch(context.Background(), action.Complete("found the pricing page"), "t1")
	assert.True(t, res.Success)
	assert.Equal(t, "found the pricing page", res.Details.String(action.DetailReason))
	assert.Equal(t, 0, f.browser.Pings())
}

func TestDispatch_InvalidAction(t *testing.T) {
	f := newFixture(t, "https://example.test", tall)

	res := f.d.Dispatch(context.Background(), action.Scroll(action.DirectionDown, 0), "t1")
	assert.False(t, res.Success)
	assert.Equal(t, action.ErrInvalidTarget, res.Error)
	assert.Equal(t, 0, f.browser.Pings())
}

// ctxCapturer fails when its context was cancelled
type ctxCapturer struct{}

func (ctxCapturer) Capture(ctx context.Context, id tab.ID) (pagestate.PageState, error) {
	if err := ctx.Err(); err != nil {
		return pagestate.PageState{}, err
	}
	return pagestate.PageState{HTML: "<html></html>"}, nil
}

func TestDispatch_StopDoesNotAbortForwardedAction(t *testing.T) {
	b := pagetest.NewBrowser()
	page := b.Add("t1", pagetest.MustPage("https://example.test", pagetest.FormPage, tall))
	page.SetRuntime(true)
	d := New(b, b, ctxCapturer{}, Options{Sleep: func(time.Duration) {}}, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	page.OnClick = func(*pagetest.Page, *goquery.Selection) { cancel() }

	res := d.Dispatch(ctx, action.Click("#menu"), "t1")
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, "<html></html>", res.Details.String(action.DetailHTML))
}
