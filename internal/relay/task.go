package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/logger"
	"github.com/v0xg/pagepilot/internal/tab"
)

// Controller is the bidirectional channel to the remote controller
type Controller interface {
	Send(ctx context.Context, v interface{}) error
	Receive(ctx context.Context) (Directive, error)
	Close() error
}

// Dialer opens controller connections
type Dialer interface {
	Dial(ctx context.Context) (Controller, error)
}

// Status is the lifecycle of a task
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Task is a goal to pursue on a tab (the active tab when TabID is empty)
type Task struct {
	Goal  string `json:"goal"`
	TabID tab.ID `json:"tabId,omitempty"`
}

// TaskStatus describes the running or last finished task
type TaskStatus struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	TabID     tab.ID    `json:"tabId"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Steps     int       `json:"steps"`
	Events    int       `json:"events"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

// Begin registers a new running task. It fails if another task is running.
func (r *Relay) Begin(task Task) (TaskStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.Status == StatusRunning {
		return TaskStatus{}, ErrTaskRunning
	}
	r.stopped = false
	r.current = &TaskStatus{
		ID:        uuid.NewString(),
		Goal:      task.Goal,
		TabID:     task.TabID,
		Status:    StatusRunning,
		StartedAt: r.now(),
	}
	return *r.current, nil
}

// RunTask sends the goal with the initial page state to the controller and
// executes its directives until it completes, fails or is stopped.
func (r *Relay) RunTask(ctx context.Context, task Task) (TaskStatus, error) {
	st, err := r.Begin(task)
	if err != nil {
		return TaskStatus{}, err
	}
	return r.Run(ctx, st)
}

// Run executes a task registered with Begin
func (r *Relay) Run(ctx context.Context, st TaskStatus) (TaskStatus, error) {
	log := r.log.WithFields(map[string]interface{}{"task_id": st.ID})
	status, msg, err := r.run(ctx, st, log)
	if err != nil {
		msg = err.Error()
		r.emit(Event{TaskID: st.ID, Kind: EventError, Message: msg})
	}
	final := r.finish(st.ID, status, msg)
	log.Info(ctx, "task finished", map[string]interface{}{"status": string(status), "message": msg, "steps": final.Steps})
	return final, err
}

func (r *Relay) run(ctx context.Context, st TaskStatus, log logger.Logger) (Status, string, error) {
	if r.dialer == nil {
		return StatusFailed, "", errors.New("no controller configured")
	}

	info, err := tab.Resolve(ctx, r.tabs, st.TabID)
	if err != nil {
		return StatusFailed, "", fmt.Errorf("no tab to run the task on: %w", err)
	}
	state, err := r.state.Capture(ctx, info.ID)
	if err != nil {
		return StatusFailed, "", fmt.Errorf("failed to capture initial page state: %w", err)
	}

	ctrl, err := r.dialer.Dial(ctx)
	if err != nil {
		return StatusFailed, "", fmt.Errorf("failed to reach controller: %w", err)
	}
	if !r.attach(ctrl) {
		_ = ctrl.Close()
		return StatusStopped, "stopped before start", nil
	}
	defer r.detach(ctrl)

	goal := Goal{
		Goal:       st.Goal,
		Screenshot: screenshotOf(state),
		HTML:       state.HTML,
		SessionID:  r.now().Unix(),
	}
	log.Info(ctx, "sending goal", redact(goal))
	if err := ctrl.Send(ctx, goal); err != nil {
		return StatusFailed, "", fmt.Errorf("failed to send goal: %w", err)
	}

	for {
		if r.isStopped() {
			return StatusStopped, "task stopped", nil
		}

		d, err := ctrl.Receive(ctx)
		if err != nil {
			if r.isStopped() || ctx.Err() != nil {
				return StatusStopped, "task stopped", nil
			}
			return StatusFailed, "", fmt.Errorf("controller connection lost: %w", err)
		}
		log.Debug(ctx, "directive received", redact(d))

		switch d.Type {
		case DirectiveAction:
			done, reason, err := r.step(ctx, st.ID, info.ID, ctrl, d, log)
			if err != nil {
				return StatusFailed, "", err
			}
			if done {
				r.emit(Event{TaskID: st.ID, Kind: EventComplete, Message: reason})
				return StatusCompleted, reason, nil
			}

		case DirectiveMessage:
			r.emit(Event{TaskID: st.ID, Kind: EventMessage, Message: d.Text()})

		case DirectiveComplete:
			msg := d.Text()
			if d.Message != "" {
				msg = d.Message
			}
			r.emit(Event{TaskID: st.ID, Kind: EventComplete, Message: msg})
			return StatusCompleted, msg, nil

		case DirectiveError:
			r.emit(Event{TaskID: st.ID, Kind: EventError, Message: d.Text()})
			return StatusFailed, d.Text(), nil

		case DirectiveTest:

		default:
			r.emit(Event{TaskID: st.ID, Kind: EventError, Message: "unknown directive " + d.Type})
		}
	}
}

// step runs one action directive and acknowledges it. It reports done when
// the directive was the terminal Complete action.
func (r *Relay) step(ctx context.Context, taskID string, id tab.ID, ctrl Controller, d Directive, log logger.Logger) (bool, string, error) {
	a, err := action.Decode(d.Data)
	if err != nil {
		res := action.FromError(err, action.ErrUnknownActionKind)
		r.emit(Event{TaskID: taskID, Kind: EventError, Message: res.Message, Result: &res})
		return false, "", r.acknowledge(ctx, id, ctrl, res, log)
	}
	if a.Kind == action.KindComplete {
		return true, a.Reason, nil
	}
	if r.isStopped() {
		return false, "", nil
	}

	r.emit(Event{TaskID: taskID, Kind: EventAction, Message: a.Describe(), Action: &a})
	res := r.dispatcher.Dispatch(ctx, a, id)
	r.countStep(taskID)

	kind := EventResult
	if !res.Success {
		kind = EventError
	}
	r.emit(Event{TaskID: taskID, Kind: kind, Message: res.Message, Action: &a, Result: &res})

	return false, "", r.acknowledge(ctx, id, ctrl, res, log)
}

// acknowledge sends the result back with page state, capturing fresh state
// when the result was not enriched
func (r *Relay) acknowledge(ctx context.Context, id tab.ID, ctrl Controller, res action.Result, log logger.Logger) error {
	data := &AckData{Result: &res}
	if res.Details.Has(action.DetailHTML) {
		data.HTML = res.Details.String(action.DetailHTML)
		if shot := res.Details.String(action.DetailScreenshot); shot != "" {
			data.Screenshot = &shot
		}
	} else if state, err := r.state.Capture(ctx, id); err == nil {
		data.HTML = state.HTML
		data.Screenshot = screenshotOf(state)
	} else {
		log.Warn(ctx, "could not capture state for acknowledgement", map[string]interface{}{"error": err.Error()})
	}

	ack := Ack{Success: res.Success, Data: data}
	if !res.Success {
		ack.Error = describeFailure(res)
	}
	log.Debug(ctx, "sending acknowledgement", redact(ack))
	if err := ctrl.Send(ctx, ack); err != nil {
		if r.isStopped() {
			return nil
		}
		return fmt.Errorf("failed to acknowledge action: %w", err)
	}
	return nil
}

func describeFailure(res action.Result) string {
	switch {
	case res.Error != "" && res.Message != "":
		return fmt.Sprintf("%s: %s", res.Error, res.Message)
	case res.Error != "":
		return string(res.Error)
	case res.Message != "":
		return res.Message
	}
	return "action failed"
}

func (r *Relay) attach(ctrl Controller) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.ctrl = ctrl
	return true
}

func (r *Relay) detach(ctrl Controller) {
	r.mu.Lock()
	owned := r.ctrl == ctrl
	if owned {
		r.ctrl = nil
	}
	r.mu.Unlock()
	if owned {
		_ = ctrl.Close()
	}
}

func (r *Relay) countStep(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.ID == taskID {
		r.current.Steps++
	}
}

func (r *Relay) finish(taskID string, status Status, msg string) TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.ID != taskID {
		return TaskStatus{ID: taskID, Status: status, Message: msg}
	}
	r.current.Status = status
	r.current.Message = msg
	r.current.EndedAt = r.now()
	return *r.current
}

// CheckConnection verifies the controller answers a test message
func (r *Relay) CheckConnection(ctx context.Context) error {
	if r.dialer == nil {
		return errors.New("no controller configured")
	}
	ctrl, err := r.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach controller: %w", err)
	}
	defer ctrl.Close()

	if err := ctrl.Send(ctx, testMessage{Type: DirectiveTest}); err != nil {
		return fmt.Errorf("failed to send test message: %w", err)
	}
	d, err := ctrl.Receive(ctx)
	if err != nil {
		return fmt.Errorf("no answer to test message: %w", err)
	}
	if d.Type != DirectiveTest {
		return fmt.Errorf("unexpected answer to test message: %s %s", d.Type, d.Text())
	}
	r.log.Info(ctx, "controller connection ok", map[string]interface{}{"reply": d.Text()})
	return nil
}
