package relay

import (
	"encoding/json"

	"github.com/v0xg/pagepilot/internal/action"
	"github.com/v0xg/pagepilot/internal/pagestate"
	"github.com/v0xg/pagepilot/internal/tab"
)

// Request types accepted by Handle
const (
	TypeGetPageState  = "GET_PAGE_STATE"
	TypeExecuteAction = "EXECUTE_ACTION"
	TypeStopTask      = "STOP_TASK"
)

// Request is a message from the relay's callers to the dispatcher
type Request struct {
	Type   string          `json:"type"`
	TabID  tab.ID          `json:"tabId,omitempty"`
	Action json.RawMessage `json:"action,omitempty"`
}

// Response answers a Request
type Response struct {
	Success bool                 `json:"success"`
	Result  *action.Result       `json:"result,omitempty"`
	State   *pagestate.PageState `json:"state,omitempty"`
	Error   action.ErrorKind     `json:"error,omitempty"`
	Message string               `json:"message,omitempty"`
}

func failure(kind action.ErrorKind, msg string) Response {
	return Response{Success: false, Error: kind, Message: msg}
}

// Directive types sent by the controller
const (
	DirectiveAction   = "action"
	DirectiveMessage  = "message"
	DirectiveComplete = "complete"
	DirectiveError    = "error"
	DirectiveTest     = "test"
)

// Directive is an outbound controller message
type Directive struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Text returns the data as text: strings are unquoted, other values are returned raw,
// and a directive without data falls back to its message
func (d Directive) Text() string {
	if len(d.Data) == 0 {
		return d.Message
	}
	var s string
	if err := json.Unmarshal(d.Data, &s); err == nil {
		return s
	}
	return string(d.Data)
}

// Goal starts a task on the controller
type Goal struct {
	Goal       string  `json:"goal"`
	Screenshot *string `json:"screenshot"`
	HTML       string  `json:"html"`
	SessionID  int64   `json:"session_id"`
}

// AckData carries page state and the dispatch result back to the controller
type AckData struct {
	Screenshot *string        `json:"screenshot"`
	HTML       string         `json:"html"`
	Result     *action.Result `json:"result,omitempty"`
}

// Ack reports the outcome of an action directive
type Ack struct {
	Success bool     `json:"success"`
	Data    *AckData `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type testMessage struct {
	Type string `json:"type"`
}

func screenshotOf(s pagestate.PageState) *string {
	if s.Screenshot == nil {
		return nil
	}
	u := s.DataURL()
	return &u
}
