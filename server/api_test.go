package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, engines map[string]*Engine) (*APIServer, *httptest.Server) {
	t.Helper()
	s, err := NewAPIServer(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	for name, e := range engines {
		s.RegisterEngine(name, e)
	}

	ts := httptest.NewServer(s.mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestAPIRunAndStatus(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)
	_, ts := newTestAPI(t, map[string]*Engine{"phone": e})

	resp := postJSON(t, ts.URL+"/run", map[string]any{"task": "say hi", "wait": true})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "finished", result["status"])
	assert.Equal(t, "all good", result["message"])

	st, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer st.Body.Close()

	var statuses []EngineStatus
	require.NoError(t, json.NewDecoder(st.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "phone", statuses[0].Name)
	assert.Equal(t, 1, statuses[0].Steps)
}

func TestAPIRunRequiresTask(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)
	_, ts := newTestAPI(t, map[string]*Engine{"phone": e})

	resp := postJSON(t, ts.URL+"/run", map[string]any{"device": "phone"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIRunUnknownDevice(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)
	_, ts := newTestAPI(t, map[string]*Engine{"phone": e})

	resp := postJSON(t, ts.URL+"/run", map[string]any{"device": "tablet", "task": "x"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIRunAmbiguousDevice(t *testing.T) {
	a := newTestEngine(stubModel{reply: finishReply}, nil)
	b := newTestEngine(stubModel{reply: finishReply}, nil)
	_, ts := newTestAPI(t, map[string]*Engine{"a": a, "b": b})

	// With two devices an empty device name cannot be resolved.
	resp := postJSON(t, ts.URL+"/run", map[string]any{"task": "x"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIBusyConflict(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)
	_, ts := newTestAPI(t, map[string]*Engine{"phone": e})

	e.taskMu.Lock()
	defer e.taskMu.Unlock()

	resp := postJSON(t, ts.URL+"/run", map[string]any{"task": "x", "wait": true})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "already running")
}

func TestAPITasksHistory(t *testing.T) {
	history := &memStore{}
	e := newTestEngine(stubModel{reply: finishReply}, history)
	s, ts := newTestAPI(t, map[string]*Engine{"phone": e})
	s.SetHistory(history)

	resp := postJSON(t, ts.URL+"/run", map[string]any{"task": "first", "wait": true})
	resp.Body.Close()

	list, err := http.Get(ts.URL + "/tasks?device=phone")
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)

	var records []map[string]any
	require.NoError(t, json.NewDecoder(list.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "first", records[0]["task"])
}

func TestAPICronEndpoints(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)
	s, ts := newTestAPI(t, map[string]*Engine{"phone": e})

	cs := NewCronScheduler(newTestCronStore(t))
	cs.RegisterEngine("phone", e)
	s.SetCronScheduler(cs)

	resp := postJSON(t, ts.URL+"/cron/add", map[string]string{
		"device":    "phone",
		"cron_expr": "0 8 * * *",
		"task":      "morning routine",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job CronJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.NotEmpty(t, job.ID)
	assert.True(t, job.Enabled)

	list, err := http.Get(ts.URL + "/cron/list?device=phone")
	require.NoError(t, err)
	defer list.Body.Close()

	var jobs []CronJob
	require.NoError(t, json.NewDecoder(list.Body).Decode(&jobs))
	require.Len(t, jobs, 1)

	del := postJSON(t, ts.URL+"/cron/del", map[string]string{"id": job.ID})
	del.Body.Close()
	assert.Equal(t, http.StatusOK, del.StatusCode)
}

func TestAPIDualUnavailableWithoutOrchestrator(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)
	_, ts := newTestAPI(t, map[string]*Engine{"phone": e})

	resp := postJSON(t, ts.URL+"/dual/analyze", map[string]string{"device": "phone", "task": "x"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
