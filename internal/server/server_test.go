package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/notify"
	"github.com/GriffinCanCode/eyeguard/internal/orchestrator"
	"github.com/GriffinCanCode/eyeguard/internal/overlay"
)

// mockService for testing.
type mockService struct {
	mu       sync.Mutex
	state    string
	startErr error
	starts   int
	stops    int
}

func newMockService() *mockService {
	return &mockService{state: "stopped"}
}

func (m *mockService) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.state = "starting"
	return nil
}

func (m *mockService) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.state = "stopped"
}

func (m *mockService) Status() orchestrator.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return orchestrator.Status{State: m.state, Threshold: 0.6}
}

func newTestServer(t *testing.T) (*httptest.Server, *mockService, *Hub) {
	t.Helper()
	svc := newMockService()
	hub := NewHub()
	ts := httptest.NewServer(New(svc, hub).Handler())
	t.Cleanup(ts.Close)
	return ts, svc, hub
}

func dial(t *testing.T, ts *httptest.Server, hub *Hub, want int) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	require.Eventually(t, func() bool { return hub.Clients() == want }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestHandleStatus(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st orchestrator.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "stopped", st.State)
	assert.Equal(t, 0.6, st.Threshold)
}

func TestHandleStartStop(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/service/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/service/stop", "application/json", nil)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", body["status"])

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, 1, svc.starts)
	assert.Equal(t, 1, svc.stops)
}

func TestHandleStartError(t *testing.T) {
	ts, svc, _ := newTestServer(t)
	svc.startErr = apperrors.New(apperrors.Unavailable, "detector unavailable")

	resp, err := http.Post(ts.URL+"/api/service/start", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, apperrors.Unavailable.String(), body["code"])
	assert.Contains(t, body["error"], "detector unavailable")
}

func TestWrongMethod(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/service/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	ts, _, hub := newTestServer(t)
	dial(t, ts, hub, 1)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 1, body["displays"])
}

func TestHubAddWithoutDisplay(t *testing.T) {
	hub := NewHub()

	_, err := hub.Add(overlay.FullScreenLayout(), overlay.DefaultContent())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.OverlayCreateFailed))
	assert.Zero(t, hub.Shown())
}

func TestHubRemoveUnknown(t *testing.T) {
	hub := NewHub()
	err := hub.Remove("nope")
	assert.True(t, apperrors.IsCode(err, apperrors.OverlayRemoveFailed))
}

func TestOverlayShowAndHide(t *testing.T) {
	ts, _, hub := newTestServer(t)
	conn := dial(t, ts, hub, 1)

	handle, err := hub.Add(overlay.FullScreenLayout(), overlay.DefaultContent())
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	msg := read(t, conn)
	assert.Equal(t, "overlay_show", msg["type"])
	assert.Equal(t, string(handle), msg["handle"])
	layout := msg["layout"].(map[string]any)
	assert.Equal(t, true, layout["full_screen"])
	assert.Equal(t, false, layout["touchable"])
	assert.Equal(t, "topmost", layout["tier"])
	assert.Equal(t, "top-left", layout["gravity"])

	require.NoError(t, hub.Remove(handle))
	msg = read(t, conn)
	assert.Equal(t, "overlay_hide", msg["type"])
	assert.Equal(t, string(handle), msg["handle"])
	assert.Zero(t, hub.Shown())
}

func TestLateDisplayGetsActiveOverlay(t *testing.T) {
	ts, _, hub := newTestServer(t)
	first := dial(t, ts, hub, 1)

	handle, err := hub.Add(overlay.FullScreenLayout(), overlay.DefaultContent())
	require.NoError(t, err)
	assert.Equal(t, "overlay_show", read(t, first)["type"])

	late := dial(t, ts, hub, 2)
	msg := read(t, late)
	assert.Equal(t, "overlay_show", msg["type"])
	assert.Equal(t, string(handle), msg["handle"])
}

func TestToastBroadcast(t *testing.T) {
	ts, _, hub := newTestServer(t)
	conn := dial(t, ts, hub, 1)

	var sink notify.Sink = hub
	sink.Notify(notify.New(notify.CameraUnavailable, "camera unavailable", nil))

	msg := read(t, conn)
	assert.Equal(t, "toast", msg["type"])
	assert.Equal(t, string(notify.CameraUnavailable), msg["kind"])
	assert.Equal(t, "camera unavailable", msg["message"])
}

func TestPingAndStatusMessages(t *testing.T) {
	ts, _, hub := newTestServer(t)
	conn := dial(t, ts, hub, 1)
	ctx := context.Background()

	require.NoError(t, wsjson.Write(ctx, conn, Message{Type: "ping"}))
	assert.Equal(t, "pong", read(t, conn)["type"])

	require.NoError(t, wsjson.Write(ctx, conn, Message{Type: "status"}))
	msg := read(t, conn)
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, "stopped", msg["status"].(map[string]any)["state"])
}

func TestDisconnectUnregisters(t *testing.T) {
	ts, _, hub := newTestServer(t)
	conn := dial(t, ts, hub, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "message %d should pass", i)
	}
	assert.False(t, rl.allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.allow())
}
