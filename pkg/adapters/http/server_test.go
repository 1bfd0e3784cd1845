package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/markup"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/plugin"
)

const app = `
variables: {count: 0}
controls:
  - {id: label, kind: Label, properties: {Text: "{Binding count}"}}
plugins:
  - {builtin: math}
handlers:
  increment:
    - {op: Increment, Variable: count}
    - {op: CacheSet, Key: last, Value: "{count}"}
`

func newEngine(t *testing.T, opts ...weft.Option) *weft.Engine {
	t.Helper()
	doc, err := markup.Parse([]byte(app))
	require.NoError(t, err)
	eng := weft.New(opts...)
	require.NoError(t, eng.Load(context.Background(), doc))
	return eng
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_ReadEndpoints(t *testing.T) {
	h := NewHandler(t.Context(), newEngine(t))

	w := serve(t, h, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, w))

	assert.Equal(t, []string{"label"}, decode[[]string](t, serve(t, h, "GET", "/controls", "")))
	assert.Equal(t, []string{"increment"}, decode[[]string](t, serve(t, h, "GET", "/handlers", "")))

	plugins := decode[[]plugin.Info](t, serve(t, h, "GET", "/plugins", ""))
	require.Len(t, plugins, 1)
	assert.Equal(t, "math", plugins[0].Name)

	bindings := decode[[]domain.Binding](t, serve(t, h, "GET", "/bindings", ""))
	require.Len(t, bindings, 1)
	assert.Equal(t, "label", bindings[0].TargetID)

	info := decode[map[string]string](t, serve(t, h, "GET", "/info", ""))
	assert.Equal(t, strings.TrimSpace(weft.Version), info["version"])
}

func TestServer_ExecuteAndState(t *testing.T) {
	eng := newEngine(t)
	h := NewHandler(t.Context(), eng)

	w := serve(t, h, "POST", "/handlers/increment/execute", "")
	require.Equal(t, http.StatusOK, w.Code)

	st := decode[map[string]any](t, serve(t, h, "GET", "/state", ""))
	assert.Equal(t, float64(1), st["count"])

	w = serve(t, h, "POST", "/handlers/ghost/execute", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, h, "PUT", "/state/count", `{"value": 41}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(41), eng.StateSnapshot()["count"])

	w = serve(t, h, "PUT", "/state/count", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Cache(t *testing.T) {
	eng := newEngine(t)
	h := NewHandler(t.Context(), eng)
	eng.ExecuteHandlerByName(t.Context(), "increment")

	stats := decode[cache.Stats](t, serve(t, h, "GET", "/cache/stats", ""))
	assert.Equal(t, 1, stats.TotalEntries)

	assert.Equal(t, http.StatusNoContent, serve(t, h, "DELETE", "/cache", "").Code)
	assert.Equal(t, 0, eng.CacheStats().TotalEntries)
}

func TestServer_PluginEvents(t *testing.T) {
	h := NewHandler(t.Context(), newEngine(t))

	w := serve(t, h, "POST", "/plugins/math/events/tick", `{"n": 1}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, h, "POST", "/plugins/*/events/tick", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, w)["failures"])

	w = serve(t, h, "POST", "/plugins/ghost/events/tick", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	eng := newEngine(t, weft.WithHooks(m.Hooks()))
	h := NewHandler(t.Context(), eng, WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	serve(t, h, "POST", "/handlers/increment/execute", "")

	w := serve(t, h, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `weft_handler_runs_total{handler="increment"} 1`)
}

func TestServer_Graph(t *testing.T) {
	eng := newEngine(t)
	h := NewHandler(t.Context(), eng)
	eng.ExecuteHandlerByName(t.Context(), "increment")

	w := serve(t, h, "GET", "/graph?highlight=increment", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	body := w.Body.String()
	assert.Contains(t, body, `v_count(["count = 1"])`)
	assert.Contains(t, body, "h_increment --> v_count")
	assert.Contains(t, body, "class h_increment active;")

	w = serve(t, NewHandler(t.Context(), weft.New()), "GET", "/graph", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	h := NewHandler(t.Context(), newEngine(t))
	w := serve(t, h, "OPTIONS", "/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func TestSubscribeEvents_StreamsWatchedChanges(t *testing.T) {
	eng := newEngine(t)
	srv := NewHandler(t.Context(), eng)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}
	req := httptest.NewRequest("GET", "/events?watch=count", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		srv.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return strings.Contains(rec.body(), "event: ping") },
		2*time.Second, 10*time.Millisecond)

	eng.SetVariable(ctx, "other", "ignored")
	eng.SetVariable(ctx, "count", int64(5))

	require.Eventually(t, func() bool { return strings.Contains(rec.body(), `"name":"count"`) },
		2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, rec.body(), `"value":5`)
	assert.NotContains(t, rec.body(), "other")
}
