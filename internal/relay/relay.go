// Package relay connects the remote controller to the dispatcher: it runs
// the controller task loop, answers relay requests and reports events.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/pagestate"
	"github.com/v0xg/pagepilot/internal/tab"
)

// ErrTaskRunning is returned when a task is started while another one runs
var ErrTaskRunning = errors.New("a task is already running")

// Dispatcher executes actions on a tab
type Dispatcher interface {
	Dispatch(ctx context.Context, a action.Action, id tab.ID) action.Result
}

// StateProvider captures page state
type StateProvider interface {
	Capture(ctx context.Context, id tab.ID) (pagestate.PageState, error)
}

// Relay forwards controller directives and relay requests to the dispatcher
type Relay struct {
	tabs       tab.Resolver
	dispatcher Dispatcher
	state      StateProvider
	dialer     Dialer
	log        logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	stopped  bool
	ctrl     Controller
	current  *TaskStatus
	handlers []func(Event)
}

// New creates a Relay. dialer may be nil when only Handle is used.
func New(tabs tab.Resolver, d Dispatcher, state StateProvider, dialer Dialer, log logger.Logger) *Relay {
	return &Relay{
		tabs:       tabs,
		dispatcher: d,
		state:      state,
		dialer:     dialer,
		log:        log,
		now:        time.Now,
	}
}

// OnEvent registers a handler for task events. Handlers run synchronously.
func (r *Relay) OnEvent(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

func (r *Relay) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.mu.Lock()
	handlers := append([]func(Event){}, r.handlers...)
	if r.current != nil && e.TaskID == r.current.ID {
		r.current.Events++
	}
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// Handle answers a single relay request
func (r *Relay) Handle(ctx context.Context, req Request) Response {
	log := r.log.WithFields(map[string]interface{}{"type": req.Type, "tab_id": string(req.TabID)})

	switch req.Type {
	case TypeGetPageState:
		info, err := tab.Resolve(ctx, r.tabs, req.TabID)
		if err != nil {
			return failure(action.ErrNoActiveTab, err.Error())
		}
		state, err := r.state.Capture(ctx, info.ID)
		if err != nil {
			log.Warn(ctx, "page state capture failed", map[string]interface{}{"error": err.Error()})
			res := action.FromError(err, action.ErrCaptureError)
			return failure(res.Error, res.Message)
		}
		return Response{Success: true, State: &state}

	case TypeExecuteAction:
		if r.isStopped() {
			return failure(action.ErrTaskStopped, "task was stopped")
		}
		a, err := action.Decode(req.Action)
		if err != nil {
			log.Warn(ctx, "rejected action", map[string]interface{}{"error": err.Error()})
			res := action.FromError(err, action.ErrUnknownActionKind)
			return failure(res.Error, res.Message)
		}
		res := r.dispatcher.Dispatch(ctx, a, req.TabID)
		log.Info(ctx, "action dispatched", map[string]interface{}{
			"action":  a.Describe(),
			"success": res.Success,
			"result":  redact(res),
		})
		return Response{Success: res.Success, Result: &res, Error: res.Error, Message: res.Message}

	case TypeStopTask:
		r.Stop()
		return Response{Success: true, Message: "task stopped"}
	}

	return failure(action.ErrUnknownActionKind, "unknown request type "+req.Type)
}

// Stop prevents further dispatches and tears down the controller connection.
// An action already forwarded runs to completion.
func (r *Relay) Stop() {
	r.mu.Lock()
	r.stopped = true
	ctrl := r.ctrl
	r.ctrl = nil
	r.mu.Unlock()

	if ctrl != nil {
		if err := ctrl.Close(); err != nil {
			r.log.Debug(context.Background(), "closing controller connection", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (r *Relay) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Current returns a snapshot of the running or last finished task
func (r *Relay) Current() (TaskStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return TaskStatus{}, false
	}
	return *r.current, true
}
