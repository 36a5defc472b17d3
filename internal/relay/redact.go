package relay

import (
	"encoding/json"
)

const redacted = "[REDACTED]"

var bulkyKeys = map[string]bool{"html": true, "screenshot": true, "page_state": true}

// redact renders v for logging with page payloads replaced at any depth
func redact(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{"unserializable": err.Error()}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"value": string(raw)}
	}
	scrub(m)
	return m
}

func scrub(m map[string]interface{}) {
	for k, v := range m {
		if bulkyKeys[k] && v != nil {
			m[k] = redacted
			continue
		}
		if inner, ok := v.(map[string]interface{}); ok {
			scrub(inner)
		}
	}
}
