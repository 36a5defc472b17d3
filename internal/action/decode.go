package action

import (
	"strings"

	"github.com/tidwall/gjson"
)

// maxEnvelopeDepth bounds how many wrappers Decode peels off
const maxEnvelopeDepth = 4

var kindAliases = map[string]Kind{
	"click":     KindClick,
	"type":      KindType,
	"scroll":    KindScroll,
	"keypress":  KindKeyPress,
	"key_press": KindKeyPress,
	"press":     KindKeyPress,
	"wait":      KindWait,
	"complete":  KindComplete,
}

// Decode normalises every known envelope shape into an Action:
//
//	{"action":"click", ...}                      flat
//	{"tool":"executor","input":{...}}            tool envelope
//	{"type":"action","data":{...}}               controller directive
//	{"type":"EXECUTE_ACTION","action":{...}}     relay request
//	{"name":"executor","input":{...}}            named tool call
//
// Free-text actions such as "[scroll down by 100]" are rejected with ErrUnknownActionKind.
func Decode(raw []byte) (Action, error) {
	if !gjson.ValidBytes(raw) {
		return Action{}, Errorf(ErrUnknownActionKind, "action payload is not valid JSON")
	}
	cur := gjson.ParseBytes(raw)
	if !cur.IsObject() {
		return Action{}, Errorf(ErrUnknownActionKind, "action must be a structured object, got %s", describeJSON(cur))
	}

	for depth := 0; depth < maxEnvelopeDepth; depth++ {
		next, ok, err := unwrap(cur)
		if err != nil {
			return Action{}, err
		}
		if !ok {
			break
		}
		cur = next
	}

	kind, err := kindOf(cur)
	if err != nil {
		return Action{}, err
	}

	a := Action{Kind: kind}
	switch kind {
	case KindClick, KindType:
		a.Target = locatorOf(cur)
		if kind == KindType {
			a.Text = firstString(cur, "text", "value")
		}
	case KindScroll:
		a.Direction = Direction(strings.ToLower(cur.Get("direction").String()))
		a.Pixels = int(cur.Get("pixels").Int())
	case KindKeyPress:
		a.Key = cur.Get("key").String()
	case KindWait:
		a.Duration = cur.Get("duration").Float()
	case KindComplete:
		a.Reason = firstString(cur, "reason", "message")
	}

	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// unwrap peels one envelope layer off cur
func unwrap(cur gjson.Result) (gjson.Result, bool, error) {
	if tool := cur.Get("tool"); tool.Exists() {
		input := cur.Get("input")
		if !input.IsObject() {
			return cur, false, Errorf(ErrUnknownActionKind, "tool envelope without structured input")
		}
		if name := strings.ToLower(tool.String()); name != "" && name != "executor" {
			return cur, false, Errorf(ErrUnknownActionKind, "unsupported tool %q", tool.String())
		}
		return input, true, nil
	}
	if inner := cur.Get("action"); inner.IsObject() {
		return inner, true, nil
	}
	if input := cur.Get("input"); input.IsObject() && cur.Get("name").Exists() {
		return input, true, nil
	}
	if data := cur.Get("data"); data.IsObject() {
		if t := cur.Get("type").String(); t == "" || strings.EqualFold(t, "action") {
			return data, true, nil
		}
	}
	return cur, false, nil
}

func kindOf(cur gjson.Result) (Kind, error) {
	field := cur.Get("action")
	if !field.Exists() {
		field = cur.Get("type")
	}
	if !field.Exists() {
		return "", Errorf(ErrUnknownActionKind, "action kind missing")
	}
	if field.Type != gjson.String {
		return "", Errorf(ErrUnknownActionKind, "action kind must be a string, got %s", describeJSON(field))
	}
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(field.String()))]
	if !ok {
		return "", Errorf(ErrUnknownActionKind, "unknown action kind %q", field.String())
	}
	return kind, nil
}

func locatorOf(cur gjson.Result) *Locator {
	loc := Locator{
		Selector:    cur.Get("selector").String(),
		ElementType: cur.Get("element_type").String(),
	}
	if ed := cur.Get("element_data"); ed.IsObject() {
		if s := ed.Get("selector").String(); s != "" {
			loc.Selector = s
		}
		if t := ed.Get("element_type").String(); t != "" {
			loc.ElementType = t
		}
		loc.Text = firstString(ed, "text_content", "text")
	}
	if loc.Selector == "" && loc.Text == "" {
		return nil
	}
	return &loc
}

func firstString(cur gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := cur.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func describeJSON(r gjson.Result) string {
	switch {
	case r.Type == gjson.String:
		return "string " + truncate(r.String(), 40)
	case r.IsArray():
		return "array"
	case r.Type == gjson.Number:
		return "number"
	case r.Type == gjson.True, r.Type == gjson.False:
		return "boolean"
	case r.Type == gjson.Null:
		return "null"
	}
	return r.Type.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
