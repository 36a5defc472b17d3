package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogrusLogger(&buf, "debug", FormatJSON).WithField("tab_id", "t1")

	log.Info(context.Background(), "dispatching action", map[string]interface{}{"kind": "scroll"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatching action", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "t1", entry["tab_id"])
	assert.Equal(t, "scroll", entry["kind"])
}

func TestLogrusLogger_LevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := newLogrusLogger(&buf, "not-a-level", FormatText)

	log.Debug(context.Background(), "hidden", nil)
	assert.Empty(t, buf.String())

	log.Info(context.Background(), "shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestTestLogger_SharesSink(t *testing.T) {
	root := NewTestLogger()
	child := root.WithField("task_id", "abc")

	child.Warn(context.Background(), "capture skipped", map[string]interface{}{"reason": "rate limited"})
	root.Error(context.Background(), "boom", nil)

	entries := root.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0].Fields["task_id"])
	assert.Equal(t, "rate limited", entries[0].Fields["reason"])
	assert.Equal(t, []string{"boom"}, root.Messages("error"))

	root.Reset()
	assert.Empty(t, root.Entries())
}
