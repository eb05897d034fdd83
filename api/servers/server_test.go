package servers

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-agent-registry/api"
	"github.com/ruteri/tee-agent-registry/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func testConfig() *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthAndDrain(t *testing.T) {
	srv := New(testConfig(), nil, pingHandler{})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/livez").Code)
	assert.Equal(t, "pong", get(t, h, "/api/ping").Body.String())

	rr := get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rr.Body.String())

	assert.JSONEq(t, `{"status":"draining"}`, get(t, h, "/drain").Body.String())
	assert.False(t, srv.IsReady())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)
	assert.JSONEq(t, `{"status":"already draining"}`, get(t, h, "/drain").Body.String())

	assert.JSONEq(t, `{"status":"ready"}`, get(t, h, "/undrain").Body.String())
	assert.True(t, srv.IsReady())
	assert.JSONEq(t, `{"status":"already ready"}`, get(t, h, "/undrain").Body.String())
}

func TestPprofMount(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, http.StatusNotFound, get(t, New(cfg, nil).Handler(), "/debug/pprof/").Code)

	cfg.EnablePprof = true
	assert.Equal(t, http.StatusOK, get(t, New(cfg, nil).Handler(), "/debug/pprof/").Code)
}

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.ListenAddr = freeAddr(t)
	cfg.MetricsAddr = freeAddr(t)

	metricsSrv, err := metrics.New("servers_test", cfg.MetricsAddr)
	require.NoError(t, err)
	srv := New(cfg, metricsSrv, pingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	srv.Run(groupCtx, group)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.ListenAddr + "/livez")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.MetricsAddr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, group.Wait())
}
