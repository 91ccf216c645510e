package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsgist/internal/editor"
	"github.com/GriffinCanCode/jsgist/internal/gist"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsgist/internal/logstream"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/runner"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
	"github.com/GriffinCanCode/jsgist/internal/shared/id"
	"github.com/GriffinCanCode/jsgist/internal/transport/inproc"
)

type stubLoader struct {
	res gist.Result
	err error
}

func (s *stubLoader) Load(context.Context, string) (gist.Result, error) {
	return s.res, s.err
}

type fixture struct {
	router  *gin.Engine
	manager *editor.Manager
}

func newFixture(t *testing.T, loader editor.Loader, limit int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := runner.Config{Timeout: 2 * time.Second, Loader: runner.EmbeddedLoader{}}
	metrics := monitoring.NewMetrics()
	manager := editor.NewManager(editor.ManagerConfig{
		Target: protocol.Target{RunnerURL: "https://runner.example/r.html", ScriptURL: "embed:"},
		Launcher: func(d sandbox.Dispatcher) sandbox.Launcher {
			return inproc.NewLauncher(d, cfg, nil)
		},
		Loader:  loader,
		Limit:   limit,
		Metrics: metrics,
	})
	t.Cleanup(manager.CloseAll)

	h := NewHandlers(manager, metrics, nil)
	router := gin.New()
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/jsgist-runner.js", RunnerScript())
	router.GET("/metrics", h.Metrics())
	router.GET("/metrics/json", h.MetricsJSON)
	router.POST("/workspaces", h.CreateWorkspace)
	router.GET("/workspaces", h.ListWorkspaces)
	router.GET("/workspaces/:id", h.GetWorkspace)
	router.POST("/workspaces/:id/run", h.Run)
	router.POST("/workspaces/:id/stop", h.Stop)
	router.POST("/workspaces/:id/load", h.Load)
	router.POST("/workspaces/:id/fork", h.Fork)
	router.GET("/workspaces/:id/logs", h.Logs)
	router.DELETE("/workspaces/:id/logs", h.ClearLogs)
	router.DELETE("/workspaces/:id", h.DeleteWorkspace)

	return &fixture{router: router, manager: manager}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) create(t *testing.T) string {
	t.Helper()
	w := f.do(http.MethodPost, "/workspaces", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var info editor.Info
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &info))
	return info.ID
}

func (f *fixture) logs(t *testing.T, wid string) []logstream.Entry {
	t.Helper()
	w := f.do(http.MethodGet, "/workspaces/"+wid+"/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []logstream.Entry `json:"entries"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	return body.Entries
}

func gistJSON(name, js string) string {
	out, _ := sonic.MarshalString(protocol.Gist{Name: name, Files: []protocol.File{{Name: "index.js", Content: js}}})
	return out
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.create(t)

	w := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"online"`)

	w = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"workspaces":1`)
}

func TestRunAndReadLogs(t *testing.T) {
	f := newFixture(t, nil, 0)
	wid := f.create(t)

	w := f.do(http.MethodPost, "/workspaces/"+wid+"/run", gistJSON("demo", `console.log("hi"); console.log("hi")`))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"demo"`)

	assert.Eventually(t, func() bool {
		entries := f.logs(t, wid)
		return len(entries) == 2 && entries[0].Msg == "hi"
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(http.MethodDelete, "/workspaces/"+wid+"/logs", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.logs(t, wid))
}

func TestRunWithoutBodyReusesGist(t *testing.T) {
	f := newFixture(t, nil, 0)
	wid := f.create(t)

	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/workspaces/"+wid+"/run", gistJSON("again", `console.info("x")`)).Code)
	w := f.do(http.MethodPost, "/workspaces/"+wid+"/run", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"again"`)
}

func TestStopAndDelete(t *testing.T) {
	f := newFixture(t, nil, 0)
	wid := f.create(t)

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/workspaces/"+wid+"/stop", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/workspaces/"+wid, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/workspaces/"+wid, "").Code)
	assert.Zero(t, f.manager.Count())
}

func TestWorkspaceLookupErrors(t *testing.T) {
	f := newFixture(t, nil, 0)
	wid := f.create(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed id", http.MethodGet, "/workspaces/nope", "", http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/workspaces/" + id.NewWorkspaceID().String(), "", http.StatusNotFound},
		{"invalid gist", http.MethodPost, "/workspaces/" + wid + "/run", `{"files":"nope"}`, http.StatusBadRequest},
		{"oversized gist", http.MethodPost, "/workspaces/" + wid + "/run", `{"name":"` + strings.Repeat("x", MaxGistSize) + `"}`, http.StatusRequestEntityTooLarge},
		{"load without src", http.MethodPost, "/workspaces/" + wid + "/load", `{}`, http.StatusBadRequest},
		{"load without loader", http.MethodPost, "/workspaces/" + wid + "/load", `{"src":"abc"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		loader *stubLoader
		status int
	}{
		{"loaded", &stubLoader{res: gist.Result{Gist: protocol.Gist{Name: "remote"}}}, http.StatusAccepted},
		{"not found", &stubLoader{err: gist.ErrNotFound}, http.StatusNotFound},
		{"bad source", &stubLoader{err: gist.ErrInvalidSource}, http.StatusBadRequest},
		{"upstream", &stubLoader{err: &gist.StatusError{URL: "https://api.example", Status: 403}}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.loader, 0)
			wid := f.create(t)

			w := f.do(http.MethodPost, "/workspaces/"+wid+"/load", `{"src":"aa5a315d61ae9438b18d"}`)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusAccepted {
				assert.Contains(t, w.Body.String(), `"name":"remote"`)
			}
		})
	}
}

func TestForkAndList(t *testing.T) {
	f := newFixture(t, nil, 0)
	wid := f.create(t)
	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/workspaces/"+wid+"/run", gistJSON("orig", `console.log(1)`)).Code)

	w := f.do(http.MethodPost, "/workspaces/"+wid+"/fork", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var forked editor.Info
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &forked))
	assert.NotEqual(t, wid, forked.ID)

	assert.Eventually(t, func() bool {
		res := f.do(http.MethodGet, "/workspaces/"+forked.ID, "")
		return strings.Contains(res.Body.String(), `"name":"orig"`)
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(http.MethodGet, "/workspaces", "")
	assert.Contains(t, w.Body.String(), `"count":2`)
}

func TestWorkspaceLimit(t *testing.T) {
	f := newFixture(t, nil, 1)
	f.create(t)

	w := f.do(http.MethodPost, "/workspaces", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunnerScript(t *testing.T) {
	f := newFixture(t, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/jsgist-runner.js", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, runner.Prelude(), body)

	plain := f.do(http.MethodGet, "/jsgist-runner.js", "")
	assert.Empty(t, plain.Header().Get("Content-Encoding"))
	assert.Equal(t, runner.Prelude(), plain.Body.Bytes())
}

func TestMetricsEndpoints(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.create(t)

	w := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jsgist_workspaces 1")

	w = f.do(http.MethodGet, "/metrics/json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uptimeSeconds"`)
}
