package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/petems/spectrum-tray/internal/app"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/poller"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Controller = (*app.App)(nil)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	startErr error
	vector   spectrum.Vector
	updated  time.Time
	devices  []audio.Device
	devErr   error
}

func newFakeController() *fakeController {
	v := make(spectrum.Vector, 16)
	v[3] = 1
	v[4] = 0.5
	return &fakeController{
		vector:  v,
		updated: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		devices: []audio.Device{{Index: 0, Name: "pulse", InputChannels: 2, Default: true}},
	}
}

func (f *fakeController) Status() app.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return app.Status{State: "running", Session: &app.SessionInfo{ID: "sess"}}
	}
	return app.Status{State: "idle"}
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return app.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeController) SnapshotAt() (spectrum.Vector, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vector.Clone(), f.updated
}

func (f *fakeController) Bin(i int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.vector) {
		return 0, spectrum.ErrBinOutOfRange
	}
	return f.vector[i], nil
}

func (f *fakeController) Bins() int { return 16 }

func (f *fakeController) ListDevices() ([]audio.Device, error) {
	return f.devices, f.devErr
}

func doRequest(t *testing.T, s *Server, method, path string) (int, []byte) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestSpectrumEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", newFakeController(), zerolog.Nop())

	code, body := doRequest(t, s, http.MethodGet, "/api/spectrum")
	require.Equal(t, http.StatusOK, code)

	var resp SpectrumResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Len(t, resp.Bins, 16)
	assert.Equal(t, 1.0, resp.Bins[3])
	assert.Equal(t, "Mid (500-2kHz)", resp.Labels[3])
	assert.InDelta(t, 1.5, resp.Features.VocalRange, 1e-12)
	require.NotNil(t, resp.UpdatedAt)
}

func TestBinEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", newFakeController(), zerolog.Nop())

	code, body := doRequest(t, s, http.MethodGet, "/api/spectrum/4")
	require.Equal(t, http.StatusOK, code)
	var resp BinResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, BinResponse{Bin: 4, Label: "High Mid (2-4kHz)", Value: 0.5}, resp)

	code, _ = doRequest(t, s, http.MethodGet, "/api/spectrum/16")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doRequest(t, s, http.MethodGet, "/api/spectrum/-1")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doRequest(t, s, http.MethodGet, "/api/spectrum/loud")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCaptureEndpoints(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer("127.0.0.1:0", ctrl, zerolog.Nop())

	code, body := doRequest(t, s, http.MethodPost, "/api/capture/start")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"state":"running"`)

	code, _ = doRequest(t, s, http.MethodPost, "/api/capture/start")
	assert.Equal(t, http.StatusConflict, code)

	code, body = doRequest(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"id":"sess"`)

	code, body = doRequest(t, s, http.MethodPost, "/api/capture/stop")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"state":"idle"`)
}

func TestStartErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{err: fmt.Errorf("select: %w", audio.ErrNoDeviceFound), code: http.StatusServiceUnavailable},
		{err: fmt.Errorf("%w: device busy", audio.ErrOpen), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		ctrl := newFakeController()
		ctrl.startErr = tt.err
		s := NewServer("127.0.0.1:0", ctrl, zerolog.Nop())

		code, body := doRequest(t, s, http.MethodPost, "/api/capture/start")
		assert.Equal(t, tt.code, code, "error %v", tt.err)
		assert.Contains(t, string(body), "error")
	}
}

func TestDevicesEndpoint(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer("127.0.0.1:0", ctrl, zerolog.Nop())

	code, body := doRequest(t, s, http.MethodGet, "/api/devices")
	require.Equal(t, http.StatusOK, code)
	var devices []audio.Device
	require.NoError(t, json.Unmarshal(body, &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "pulse", devices[0].Name)

	ctrl.devices = nil
	code, body = doRequest(t, s, http.MethodGet, "/api/devices")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	ctrl.devErr = errors.New("portaudio not initialized")
	code, _ = doRequest(t, s, http.MethodGet, "/api/devices")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := NewServer("127.0.0.1:0", newFakeController(), zerolog.Nop())

	code, _ := doRequest(t, s, http.MethodGet, "/ws/spectrum")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestWebsocketStreamsFrames(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer("127.0.0.1:0", ctrl, zerolog.Nop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-served
	}()

	url := fmt.Sprintf("ws://%s/ws/spectrum", ln.Addr().String())
	var ws *websocket.Conn
	require.Eventually(t, func() bool {
		ws, _, err = websocket.DefaultDialer.Dial(url, nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer ws.Close()

	// The current vector arrives first.
	var initial poller.Frame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&initial))
	assert.Equal(t, 1.0, initial.Bins[3])

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	frame := poller.Frame{SessionID: "sess", Sequence: 42, Bins: []float64{0.25, 0.75}}
	require.NoError(t, s.Publish(context.Background(), frame))

	var got poller.Frame
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, uint64(42), got.Sequence)
	assert.Equal(t, []float64{0.25, 0.75}, got.Bins)

	ws.Close()
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebsocketHandlerOutlivesWriter(t *testing.T) {
	s := NewServer("127.0.0.1:0", newFakeController(), zerolog.Nop())

	// Records whether the writer had stopped by the time each handler returned.
	finished := make(chan bool, 8)
	s.clientDone = func(c *Client) {
		select {
		case <-c.writeDone:
			finished <- true
		default:
			finished <- false
		}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-served
	}()

	url := fmt.Sprintf("ws://%s/ws/spectrum", ln.Addr().String())

	// Reconnect a few times so pooled connections get reused while frames flow.
	for i := 0; i < 3; i++ {
		var ws *websocket.Conn
		require.Eventually(t, func() bool {
			ws, _, err = websocket.DefaultDialer.Dial(url, nil)
			return err == nil
		}, 2*time.Second, 20*time.Millisecond)

		var initial poller.Frame
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, ws.ReadJSON(&initial))
		require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

		require.NoError(t, s.Publish(context.Background(), poller.Frame{Sequence: uint64(i)}))
		var got poller.Frame
		require.NoError(t, ws.ReadJSON(&got))
		assert.Equal(t, uint64(i), got.Sequence)

		ws.Close()

		select {
		case stopped := <-finished:
			assert.True(t, stopped, "handler returned while the writer was still running (client %d)", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("handler for client %d did not return", i)
		}
		require.Eventually(t, func() bool { return s.Hub().ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	}
}

func TestPublishWithoutClientsIsNoop(t *testing.T) {
	s := NewServer("127.0.0.1:0", newFakeController(), zerolog.Nop())
	assert.NoError(t, s.Publish(context.Background(), poller.Frame{}))
	assert.Equal(t, "websocket", s.Name())
}
