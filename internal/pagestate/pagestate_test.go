package pagestate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/pagetest"
	"github.com/v0xg/pagepilot/internal/tab"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
}

func setup(t *testing.T, opts Options) (*Provider, *pagetest.Browser) {
	t.Helper()
	b := pagetest.NewBrowser()
	b.ScreenshotSize = image.Pt(64, 36)
	b.Add("t1", pagetest.MustPage("https://example.test", pagetest.FormPage, pagetest.Geometry{}))
	return NewProvider(b, opts, logger.NewTestLogger()), b
}

func TestRateLimiter(t *testing.T) {
	clock := newClock()
	rl := NewRateLimiter(time.Second, clock.Now)

	_, ok := rl.Acquire()
	assert.True(t, ok, "first acquire")

	clock.Advance(500 * time.Millisecond)
	_, ok = rl.Acquire()
	assert.False(t, ok, "within interval")

	clock.Advance(500 * time.Millisecond)
	ticket, ok := rl.Acquire()
	assert.True(t, ok, "after interval")

	ticket.Release()
	_, ok = rl.Acquire()
	assert.True(t, ok, "released slot is reusable")
}

func TestCapture_RateLimitsScreenshots(t *testing.T) {
	clock := newClock()
	p, b := setup(t, Options{MinInterval: time.Second, Now: clock.Now})
	ctx := context.Background()

	first, err := p.Capture(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, first.Screenshot)
	assert.Contains(t, first.HTML, "<form")

	clock.Advance(200 * time.Millisecond)
	second, err := p.Capture(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, second.Screenshot)
	assert.NotEmpty(t, second.HTML)
	assert.Equal(t, 1, b.Screenshots())

	clock.Advance(time.Second)
	third, err := p.Capture(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, third.Screenshot)
}

func TestCapture_FailedScreenshotDoesNotConsumeSlot(t *testing.T) {
	clock := newClock()
	p, b := setup(t, Options{Now: clock.Now})
	ctx := context.Background()

	b.ScreenshotErr = errors.New("capture API busy")
	_, err := p.Capture(ctx, "t1")
	require.Error(t, err)
	assert.Equal(t, action.ErrCaptureError, action.KindOf(err))

	b.ScreenshotErr = nil
	state, err := p.Capture(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, state.Screenshot)
}

func TestCapture_HTMLFailure(t *testing.T) {
	p, b := setup(t, Options{})
	b.HTMLErr = errors.New("execution context destroyed")

	_, err := p.Capture(context.Background(), "t1")
	require.Error(t, err)
	assert.Equal(t, action.ErrCaptureError, action.KindOf(err))
	assert.Contains(t, err.Error(), "execution context destroyed")
}

func TestCapture_Downscales(t *testing.T) {
	var observed []byte
	p, _ := setup(t, Options{MaxWidth: 32, OnScreenshot: func(id tab.ID, shot []byte) { observed = shot }})

	state, err := p.Capture(context.Background(), "t1")
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(state.Screenshot))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 18, cfg.Height)
	assert.Equal(t, state.Screenshot, observed)
}

func TestPageState_JSON(t *testing.T) {
	state := PageState{Screenshot: []byte{0x89, 'P', 'N', 'G'}, HTML: "<html></html>"}

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"screenshot":"data:image/png;base64,`))

	var back PageState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, state, back)

	data, err = json.Marshal(PageState{HTML: "<html></html>"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"screenshot":null,"html":"<html></html>"}`, string(data))
}

func TestPageState_Details(t *testing.T) {
	d := PageState{HTML: "<p>"}.Details()
	assert.True(t, d.Has(action.DetailHTML))
	assert.False(t, d.Has(action.DetailScreenshot))

	d = PageState{Screenshot: []byte("x"), HTML: "<p>"}.Details()
	assert.Equal(t, "data:image/png;base64,eA==", d.String(action.DetailScreenshot))
}
