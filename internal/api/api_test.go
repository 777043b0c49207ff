package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzyy94/cs108ctl/internal/config"
	"github.com/mzyy94/cs108ctl/internal/reader"
	"github.com/mzyy94/cs108ctl/internal/sim"
	"github.com/mzyy94/cs108ctl/internal/transport"
)

type testEnv struct {
	srv   *httptest.Server
	rd    *reader.Reader
	store *config.Store
}

func newEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	host, far := transport.NewPipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sim.New(sim.DefaultConfig()).Run(ctx, far)
	}()

	rd := reader.New(host, reader.Options{ID: "dock-1"})
	if opts.Settings == nil {
		opts.Settings = config.NewMemoryStore(rd.Settings())
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "CS108"
	}
	srv := httptest.NewServer(NewHandler(rd, opts))
	t.Cleanup(func() {
		srv.Close()
		rd.Close()
		cancel()
		<-done
	})
	return &testEnv{srv: srv, rd: rd, store: opts.Settings}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(data) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	}
	return resp.StatusCode, out
}

func (e *testEnv) waitMode(t *testing.T, mode reader.Mode, state reader.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.rd.Mode() == mode && e.rd.State() == state
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatus_Disconnected(t *testing.T) {
	e := newEnv(t, Options{})
	code, body := e.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "dock-1", body["id"])
	assert.Equal(t, "CS108", body["name"])
	assert.Equal(t, "DISCONNECTED", body["state"])
	assert.Equal(t, "IDLE", body["mode"])
	assert.NotContains(t, body, "battery")
	assert.NotContains(t, body, "session")
}

func TestCommands_ModeAndScan(t *testing.T) {
	e := newEnv(t, Options{})

	code, body := e.do(t, http.MethodPut, "/api/mode", `{"mode":"INVENTORY"}`)
	assert.Equal(t, http.StatusConflict, code, "mode before connect: %v", body)

	code, body = e.do(t, http.MethodPost, "/api/connect", "")
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, "CONNECTED", body["state"])

	code, _ = e.do(t, http.MethodPut, "/api/mode", `{"mode":"inventory"}`)
	require.Equal(t, http.StatusAccepted, code)
	e.waitMode(t, reader.ModeInventory, reader.StateConnected)

	code, body = e.do(t, http.MethodPost, "/api/scan/start", "")
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, "SCANNING", body["state"])

	_, body = e.do(t, http.MethodGet, "/api/status", "")
	session, ok := body["session"].(map[string]any)
	require.True(t, ok, "status: %v", body)
	assert.Equal(t, "api", session["source"])
	assert.Equal(t, "INVENTORY", session["mode"])

	code, _ = e.do(t, http.MethodPost, "/api/scan/stop", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/api/scan/stop", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = e.do(t, http.MethodPost, "/api/disconnect", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "DISCONNECTED", body["state"])
}

func TestMode_BadRequests(t *testing.T) {
	e := newEnv(t, Options{})
	code, _ := e.do(t, http.MethodPost, "/api/connect", "")
	require.Equal(t, http.StatusOK, code)

	for _, body := range []string{`{"mode":"SCAN"}`, `not json`, `{"mode":"LOCATE","targetEpc":"XYZ"}`} {
		code, resp := e.do(t, http.MethodPut, "/api/mode", body)
		assert.Equal(t, http.StatusBadRequest, code, "body %s", body)
		assert.NotEmpty(t, resp["error"])
	}
}

func TestLocate_TargetPersisted(t *testing.T) {
	e := newEnv(t, Options{})
	code, _ := e.do(t, http.MethodPost, "/api/connect", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodPut, "/api/mode", `{"mode":"LOCATE","targetEpc":"e28011606000002095","startScanning":true}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "E28011606000002095", e.store.Get().TargetEPC)
	e.waitMode(t, reader.ModeLocate, reader.StateScanning)

	require.Eventually(t, func() bool {
		_, body := e.do(t, http.MethodGet, "/api/locate", "")
		m, _ := body["matched"].(float64)
		return m > 0 && body["targetEpc"] == "E28011606000002095" && body["latest"] == float64(-40)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSettings(t *testing.T) {
	e := newEnv(t, Options{})

	code, body := e.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(reader.DefaultPower), body["power"])

	code, _ = e.do(t, http.MethodPut, "/api/settings", `{"power":40}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.do(t, http.MethodPut, "/api/settings", `{"power":20,"targetEpc":"e2801160"}`)
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, float64(20), body["power"])
	assert.Equal(t, "E2801160", body["targetEpc"])
	assert.Equal(t, 20, e.store.Get().Power)
	assert.Equal(t, 20, e.rd.Settings().Power)
}

func TestEvents_WebSocket(t *testing.T) {
	e := newEnv(t, Options{})
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/events?types=battery_update"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	code, _ := e.do(t, http.MethodPost, "/api/connect", "")
	require.Equal(t, http.StatusOK, code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			Percentage int `json:"percentage"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "BATTERY_UPDATE", msg.Type)
	assert.Equal(t, 66, msg.Data.Percentage)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, Options{RateLimit: 2})
	for i := 0; i < 2; i++ {
		code, _ := e.do(t, http.MethodPost, "/api/scan/stop", "")
		assert.Equal(t, http.StatusConflict, code)
	}
	code, body := e.do(t, http.MethodPost, "/api/scan/stop", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", body["error"])

	// Reads are not limited.
	code, _ = e.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetrics(t *testing.T) {
	e := newEnv(t, Options{})
	code, _ := e.do(t, http.MethodPost, "/api/connect", "")
	require.Equal(t, http.StatusOK, code)

	resp, err := http.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cs108_events_total")
	assert.Contains(t, string(data), "cs108_frames_sent_total")
}
