package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, nil)
	router := NewServer(context.Background(), f.relay, f.log).Router()

	rec := doRequest(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Messages(t *testing.T) {
	f := newFixture(t, nil)
	router := NewServer(context.Background(), f.relay, f.log).Router()

	rec := doRequest(t, router, http.MethodPost, "/api/messages", `{"type":"EXECUTE_ACTION","action":{"action":"type","selector":"#email","text":"a@b.test"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "a@b.test", resp.Result.Details.String("text"))
	assert.Equal(t, "a@b.test", f.page.Value("#email"))

	rec = doRequest(t, router, http.MethodPost, "/api/messages", `{"type":"GET_PAGE_STATE"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = Response{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.State)
	assert.Contains(t, resp.State.HTML, `value="a@b.test"`)

	rec = doRequest(t, router, http.MethodPost, "/api/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, f.log.Messages("error"), "failed to parse JSON")
}

func TestServer_TaskLifecycle(t *testing.T) {
	ctrl := newFakeController()
	f := newFixture(t, fakeDialer{ctrl: ctrl})
	router := NewServer(context.Background(), f.relay, f.log).Router()

	rec := doRequest(t, router, http.MethodGet, "/api/tasks/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/tasks", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"goal is required"}`, rec.Body.String())

	rec = doRequest(t, router, http.MethodPost, "/api/tasks", `{"goal":"wait for instructions"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, StatusRunning, started.Status)

	rec = doRequest(t, router, http.MethodPost, "/api/tasks", `{"goal":"another"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/tasks/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"task stopped"}`, rec.Body.String())

	assert.Eventually(t, func() bool {
		st, ok := f.relay.Current()
		return ok && st.Status == StatusStopped
	}, 2*time.Second, 10*time.Millisecond)

	rec = doRequest(t, router, http.MethodGet, "/api/tasks/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var current TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, started.ID, current.ID)
	assert.Equal(t, StatusStopped, current.Status)
}

func TestServer_TaskCompletes(t *testing.T) {
	ctrl := newFakeController(
		actionDirective(`{"action":"click","selector":"#signup"}`),
		Directive{Type: DirectiveComplete, Message: "Opened sign up"},
	)
	f := newFixture(t, fakeDialer{ctrl: ctrl})
	router := NewServer(context.Background(), f.relay, f.log).Router()

	rec := doRequest(t, router, http.MethodPost, "/api/tasks", `{"goal":"open sign up","tabId":"t1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Eventually(t, func() bool {
		st, ok := f.relay.Current()
		return ok && st.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	st, _ := f.relay.Current()
	assert.Equal(t, "Opened sign up", st.Message)
	assert.Equal(t, 1, st.Steps)
	assert.Equal(t, []string{"e1"}, f.page.Clicks())
}
