// Package pagestate captures screenshots and DOM snapshots of a tab.
package pagestate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/tab"
)

const dataURLPrefix = "data:image/png;base64,"

// Capturer reads raw state from a tab
type Capturer interface {
	// Screenshot returns a PNG of the visible viewport
	Screenshot(ctx context.Context, id tab.ID) ([]byte, error)

	// HTML returns the serialized document element
	HTML(ctx context.Context, id tab.ID) (string, error)
}

// PageState is a snapshot of a tab. Screenshot is nil when rate limited.
type PageState struct {
	Screenshot []byte
	HTML       string
}

// DataURL renders the screenshot as a PNG data URL, or "" when absent
func (s PageState) DataURL() string {
	if s.Screenshot == nil {
		return ""
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(s.Screenshot)
}

// Details returns the state as result details: a data URL (or nil) and the html
func (s PageState) Details() action.Details {
	var shot interface{}
	if s.Screenshot != nil {
		shot = s.DataURL()
	}
	return action.Details{
		action.DetailScreenshot: shot,
		action.DetailHTML:       s.HTML,
	}
}

type wireState struct {
	Screenshot *string `json:"screenshot"`
	HTML       string  `json:"html"`
}

func (s PageState) MarshalJSON() ([]byte, error) {
	w := wireState{HTML: s.HTML}
	if s.Screenshot != nil {
		u := s.DataURL()
		w.Screenshot = &u
	}
	return json.Marshal(w)
}

func (s *PageState) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.HTML = w.HTML
	s.Screenshot = nil
	if w.Screenshot != nil && *w.Screenshot != "" {
		shot, err := DecodeDataURL(*w.Screenshot)
		if err != nil {
			return err
		}
		s.Screenshot = shot
	}
	return nil
}

// DecodeDataURL parses a PNG data URL. A bare base64 payload is accepted too.
func DecodeDataURL(u string) ([]byte, error) {
	payload := strings.TrimPrefix(u, dataURLPrefix)
	if strings.HasPrefix(payload, "data:") {
		return nil, fmt.Errorf("unsupported data URL: %.40s", u)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid screenshot payload: %w", err)
	}
	return data, nil
}

// Options configures a Provider
type Options struct {
	MinInterval time.Duration // minimum time between screenshots
	MaxWidth    int           // wider screenshots are downscaled; 0 keeps the original size
	Now         func() time.Time

	// OnScreenshot observes every screenshot that is returned
	OnScreenshot func(id tab.ID, png []byte)
}

// Provider captures PageState with a process-wide screenshot rate limit
type Provider struct {
	capturer Capturer
	limiter  *RateLimiter
	opts     Options
	log      logger.Logger
}

// NewProvider creates a Provider
func NewProvider(c Capturer, opts Options, log logger.Logger) *Provider {
	if opts.MinInterval == 0 {
		opts.MinInterval = time.Second
	}
	return &Provider{
		capturer: c,
		limiter:  NewRateLimiter(opts.MinInterval, opts.Now),
		opts:     opts,
		log:      log,
	}
}

// WithLimiter swaps the rate limiter, mainly for tests
func (p *Provider) WithLimiter(l *RateLimiter) *Provider {
	p.limiter = l
	return p
}

// Capture snapshots the tab. When rate limited the screenshot is nil but
// the html is still read. Failures are classified as CaptureError.
func (p *Provider) Capture(ctx context.Context, id tab.ID) (PageState, error) {
	var state PageState

	if ticket, ok := p.limiter.Acquire(); ok {
		shot, err := p.capturer.Screenshot(ctx, id)
		if err != nil {
			ticket.Release()
			metricCaptures.WithLabelValues("error").Inc()
			return PageState{}, action.Errorf(action.ErrCaptureError, "screenshot failed: %v", err)
		}
		state.Screenshot = p.downscale(ctx, shot)
	} else {
		metricScreenshotsSkipped.Inc()
		p.log.Debug(ctx, "screenshot skipped by rate limit", map[string]interface{}{"tab_id": id})
	}

	html, err := p.capturer.HTML(ctx, id)
	if err != nil {
		metricCaptures.WithLabelValues("error").Inc()
		return PageState{}, action.Errorf(action.ErrCaptureError, "reading DOM failed: %v", err)
	}
	state.HTML = html

	if state.Screenshot != nil && p.opts.OnScreenshot != nil {
		p.opts.OnScreenshot(id, state.Screenshot)
	}
	metricCaptures.WithLabelValues("ok").Inc()
	return state, nil
}

// downscale shrinks screenshots wider than MaxWidth, keeping the aspect ratio.
// Undecodable images are passed through untouched.
func (p *Provider) downscale(ctx context.Context, shot []byte) []byte {
	if p.opts.MaxWidth <= 0 {
		return shot
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(shot))
	if err != nil || cfg.Width <= p.opts.MaxWidth {
		return shot
	}

	img, _, err := image.Decode(bytes.NewReader(shot))
	if err != nil {
		p.log.Warn(ctx, "failed to decode screenshot", map[string]interface{}{"error": err.Error()})
		return shot
	}
	resized := resize.Resize(uint(p.opts.MaxWidth), 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		p.log.Warn(ctx, "failed to encode screenshot", map[string]interface{}{"error": err.Error()})
		return shot
	}
	return buf.Bytes()
}
