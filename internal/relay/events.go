package relay

import (
	"time"

	"github.com/v0xg/pagepilot/internal/action"
)

// EventKind classifies task events
type EventKind string

const (
	EventMessage  EventKind = "message"
	EventAction   EventKind = "action"
	EventResult   EventKind = "result"
	EventError    EventKind = "error"
	EventComplete EventKind = "complete"
)

// Event is something a UI may want to render while a task runs
type Event struct {
	TaskID  string         `json:"taskId"`
	Kind    EventKind      `json:"kind"`
	Message string         `json:"message,omitempty"`
	Action  *action.Action `json:"action,omitempty"`
	Result  *action.Result `json:"result,omitempty"`
	Time    time.Time      `json:"time"`
}
