package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/ysmood/gson"
)

//go:embed runtime.js
var runtimeJS string

const (
	pingJS = `() => window.__pagepilot ? window.__pagepilot.ping() : { status: "missing" }`
	callJS = `(method, ...args) => {
		const rt = window.__pagepilot;
		if (!rt) return { ok: false, missing: true };
		return rt.call(method, args);
	}`
	lookupJS = `(ref) => window.__pagepilot.lookup(ref)`
	htmlJS   = `() => document.documentElement.outerHTML`
)

// noResponse marks err as a transport failure
func noResponse(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, executor.ErrNoResponse)
}

// defaultActionTimeout bounds waiting for an element to become clickable
const defaultActionTimeout = 5 * time.Second

// pageDOM implements executor.DOM on top of the injected runtime
type pageDOM struct {
	page    *rod.Page
	timeout time.Duration
}

// call invokes a runtime primitive. A missing runtime or a failed
// evaluation is a transport failure; a primitive that threw is a DOM error.
func (d *pageDOM) call(ctx context.Context, method string, args ...interface{}) (gson.JSON, error) {
	res, err := d.page.Context(ctx).Eval(callJS, append([]interface{}{method}, args...)...)
	if err != nil {
		return gson.JSON{}, noResponse(method, err)
	}

	v := res.Value
	if v.Get("missing").Bool() {
		return gson.JSON{}, noResponse(method, errors.New("runtime not injected"))
	}
	if !v.Get("ok").Bool() {
		kind := action.ErrorKind(v.Get("kind").Str())
		if kind == "" {
			kind = action.ErrInvalidTarget
		}
		return gson.JSON{}, action.Errorf(kind, "%s", v.Get("error").Str())
	}
	return v.Get("value"), nil
}

func decode(v gson.JSON, out interface{}) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (d *pageDOM) element(v gson.JSON, err error) (*executor.Element, error) {
	if err != nil {
		return nil, err
	}
	if v.Nil() {
		return nil, nil
	}
	var el executor.Element
	if err := decode(v, &el); err != nil {
		return nil, fmt.Errorf("invalid element descriptor: %w", err)
	}
	return &el, nil
}

func (d *pageDOM) Metrics(ctx context.Context) (executor.Metrics, error) {
	v, err := d.call(ctx, "metrics")
	if err != nil {
		return executor.Metrics{}, err
	}
	var m executor.Metrics
	if err := decode(v, &m); err != nil {
		return executor.Metrics{}, fmt.Errorf("invalid metrics: %w", err)
	}
	return m, nil
}

func (d *pageDOM) ScrollTo(ctx context.Context, y float64) error {
	_, err := d.call(ctx, "scrollTo", y)
	return err
}

func (d *pageDOM) Resolve(ctx context.Context, loc action.Locator) (*executor.Element, error) {
	return d.element(d.call(ctx, "resolve", loc))
}

func (d *pageDOM) Focused(ctx context.Context) (*executor.Element, error) {
	return d.element(d.call(ctx, "focused"))
}

// rodElement turns a runtime ref into a rod element for trusted input
func (d *pageDOM) rodElement(ctx context.Context, ref string) (*rod.Element, error) {
	el, err := d.page.Context(ctx).ElementByJS(rod.Eval(lookupJS, ref))
	if err != nil {
		var notElement *rod.ExpectElementError
		if errors.As(err, &notElement) {
			return nil, action.Errorf(action.ErrElementNotFound, "element %s is no longer attached", ref)
		}
		return nil, noResponse("lookup", err)
	}
	return el, nil
}

func (d *pageDOM) ScrollIntoView(ctx context.Context, ref string) error {
	el, err := d.rodElement(ctx, ref)
	if err != nil {
		return err
	}
	return el.ScrollIntoView()
}

// Click clicks ref with trusted input. rod waits while the element is
// covered, so the wait is bounded and a covered element is reported.
func (d *pageDOM) Click(ctx context.Context, ref string) error {
	el, err := d.rodElement(ctx, ref)
	if err != nil {
		return err
	}
	timeout := d.timeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}

	bounded := el.Timeout(timeout)
	err = bounded.Click(proto.InputMouseButtonLeft, 1)
	bounded.CancelTimeout()
	if err == nil {
		return nil
	}

	var check error
	if errors.Is(err, context.DeadlineExceeded) {
		probe := el.Timeout(time.Second)
		_, check = probe.Interactable()
		probe.CancelTimeout()
	}
	return clickFailure(err, check, timeout)
}

// clickFailure classifies a failed click. check is the result of a final
// interactability check made after a timeout, nil otherwise.
func clickFailure(err, check error, timeout time.Duration) error {
	for _, e := range []error{check, err} {
		var covered *rod.CoveredError
		if errors.As(e, &covered) {
			by := "another element"
			if covered.Element != nil {
				by = covered.String()
			}
			return action.Errorf(action.ErrInvalidTarget, "element is covered by %s", by)
		}
	}
	var notInteractable *rod.NotInteractableError
	if errors.As(err, &notInteractable) || errors.As(check, &notInteractable) {
		return action.Errorf(action.ErrInvalidTarget, "element is not clickable: it has no pointer events or visible shape")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return action.Errorf(action.ErrInvalidTarget, "element did not become clickable within %s", timeout)
	}
	return err
}

func (d *pageDOM) SubmitForm(ctx context.Context, ref string) error {
	_, err := d.call(ctx, "submit", ref)
	return err
}

func (d *pageDOM) SetValue(ctx context.Context, ref, text string) (string, error) {
	v, err := d.call(ctx, "setValue", ref, text)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

// PressKey presses a named key or character. Characters rod has no key for
// are inserted as text into the focused element.
func (d *pageDOM) PressKey(ctx context.Context, key string) error {
	page := d.page.Context(ctx)
	if k, ok := rodKey(key); ok {
		return page.Keyboard.Type(k)
	}
	if len([]rune(key)) == 1 {
		return page.InsertText(key)
	}
	return action.Errorf(action.ErrInvalidTarget, "unknown key %q", key)
}
