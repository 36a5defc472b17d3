// Package dispatcher carries actions from the relay to the executor of a tab.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/pagestate"
	"github.com/v0xg/pagepilot/internal/tab"
)

// unreachableMessage is reported whenever the executor does not answer
const unreachableMessage = "no response from content script"

// Transport talks to the executor inside a tab
type Transport interface {
	// Ping returns nil if a ready executor answered
	Ping(ctx context.Context, id tab.ID) error

	// Inject installs the executor into the tab
	Inject(ctx context.Context, id tab.ID) error

	// Execute forwards a single action and returns the executor's result
	Execute(ctx context.Context, id tab.ID, a action.Action) (action.Result, error)
}

// StateCapturer snapshots page state for enrichment
type StateCapturer interface {
	Capture(ctx context.Context, id tab.ID) (pagestate.PageState, error)
}

// Options configures a Dispatcher
type Options struct {
	PingTimeout  time.Duration // bound on the liveness probe
	InjectSettle time.Duration // wait after injecting before forwarding
	Sleep        func(time.Duration)

	// OnReadiness observes readiness transitions
	OnReadiness func(Transition)
}

// Dispatcher verifies, probes, injects, forwards and enriches
type Dispatcher struct {
	tabs      tab.Resolver
	transport Transport
	state     StateCapturer
	opts      Options
	readiness *readinessTable
	log       logger.Logger
}

// New creates a Dispatcher
func New(tabs tab.Resolver, transport Transport, state StateCapturer, opts Options, log logger.Logger) *Dispatcher {
	if opts.PingTimeout == 0 {
		opts.PingTimeout = time.Second
	}
	if opts.InjectSettle == 0 {
		opts.InjectSettle = 100 * time.Millisecond
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Dispatcher{
		tabs:      tabs,
		transport: transport,
		state:     state,
		opts:      opts,
		readiness: newReadinessTable(opts.OnReadiness),
		log:       log,
	}
}

// Readiness returns the state derived by the most recent dispatch to id
func (d *Dispatcher) Readiness(id tab.ID) Readiness {
	return d.readiness.get(id)
}

// Dispatch runs a on the tab id (the active tab when id is empty). It never
// returns an error: every failure is a Result with success false.
func (d *Dispatcher) Dispatch(ctx context.Context, a action.Action, id tab.ID) action.Result {
	log := d.log.WithFields(map[string]interface{}{"action": string(a.Kind), "tab_id": string(id)})

	if a.Kind == action.KindComplete {
		recordDispatch(string(a.Kind), "complete")
		return action.Succeeded("task complete", action.Details{action.DetailReason: a.Reason})
	}
	if err := a.Validate(); err != nil {
		recordDispatch(string(a.Kind), "rejected")
		return action.FromError(err, action.ErrInvalidTarget)
	}

	info, err := d.resolve(ctx, id)
	if err != nil {
		log.Warn(ctx, "tab rejected", map[string]interface{}{"error": err.Error()})
		recordDispatch(string(a.Kind), "rejected")
		return action.FromError(err, action.ErrNoActiveTab)
	}
	log = log.WithField("tab_id", string(info.ID))

	if err := d.ensureExecutor(ctx, info.ID, log); err != nil {
		recordDispatch(string(a.Kind), "injection_failed")
		return action.FromError(err, action.ErrInjectionFailed)
	}

	// once forwarded, an action runs to completion even if the task is stopped
	ctx = context.WithoutCancel(ctx)

	log.Debug(ctx, "forwarding action", map[string]interface{}{"summary": a.Describe()})
	res, err := d.transport.Execute(ctx, info.ID, a)
	if err != nil {
		d.readiness.set(info.ID, ReadinessUnreachable)
		log.Warn(ctx, "executor did not respond", map[string]interface{}{"error": err.Error()})
		recordDispatch(string(a.Kind), "unreachable")
		return action.Failed(action.ErrExecutorUnreachable, unreachableMessage)
	}

	res = d.postProcess(ctx, info.ID, a, res, log)
	recordDispatch(string(a.Kind), outcome(res))
	return res
}

func (d *Dispatcher) resolve(ctx context.Context, id tab.ID) (tab.Info, error) {
	info, err := tab.Resolve(ctx, d.tabs, id)
	if err != nil {
		return tab.Info{}, action.Errorf(action.ErrNoActiveTab, "no tab to act on: %v", err)
	}
	if err := tab.CheckAccessible(info.URL); err != nil {
		return tab.Info{}, action.Errorf(action.ErrInaccessiblePage, "%v", err)
	}
	return info, nil
}

// ensureExecutor probes once and injects at most once. After an injection
// the executor is assumed ready without a second probe.
func (d *Dispatcher) ensureExecutor(ctx context.Context, id tab.ID, log logger.Logger) error {
	d.readiness.set(id, ReadinessUnknown)
	d.readiness.set(id, ReadinessProbing)

	pingCtx, cancel := context.WithTimeout(ctx, d.opts.PingTimeout)
	err := d.transport.Ping(pingCtx, id)
	cancel()
	if err == nil {
		d.readiness.set(id, ReadinessReady)
		return nil
	}

	log.Info(ctx, "executor not responding, injecting", map[string]interface{}{"error": err.Error()})
	if err := d.transport.Inject(ctx, id); err != nil {
		recordInjection(false)
		d.readiness.set(id, ReadinessUnreachable)
		log.Error(ctx, "injection failed", map[string]interface{}{"error": err.Error()})
		return action.Errorf(action.ErrInjectionFailed, "could not inject executor: %v", err)
	}
	recordInjection(true)

	d.opts.Sleep(d.opts.InjectSettle)
	d.readiness.set(id, ReadinessReady)
	return nil
}

func (d *Dispatcher) postProcess(ctx context.Context, id tab.ID, a action.Action, res action.Result, log logger.Logger) action.Result {
	if a.Kind == action.KindScroll && res.Success {
		res.Message = classifyScroll(a.Direction, res.Details)
		return res
	}
	if !res.Success || !a.Kind.Mutates() {
		return res
	}

	state, err := d.state.Capture(ctx, id)
	if err != nil {
		log.Warn(ctx, "action succeeded but capture failed", map[string]interface{}{"error": err.Error()})
		return action.Result{
			Success: false,
			Error:   action.ErrCaptureError,
			Message: fmt.Sprintf("action succeeded, capture failed: %v", captureReason(err)),
			Details: res.Details.With(action.Details{action.DetailActionSucceeded: true}),
		}
	}
	return res.WithDetails(state.Details())
}

func captureReason(err error) string {
	var ae *action.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// classifyScroll describes a measured scroll. The boundary in the scroll
// direction takes precedence over the distance moved.
func classifyScroll(dir action.Direction, d action.Details) string {
	actual := d.Float(action.DetailActualChange)
	switch {
	case dir == action.DirectionUp && d.Bool(action.DetailIsAtTop):
		return "already at top"
	case dir == action.DirectionDown && d.Bool(action.DetailIsAtBottom):
		return "already at bottom"
	case actual == 0:
		return "no scroll possible"
	}
	return fmt.Sprintf("scrolled %s by %d px", dir, int(math.Round(math.Abs(actual))))
}

func outcome(res action.Result) string {
	if res.Success {
		return "success"
	}
	return string(res.Error)
}
