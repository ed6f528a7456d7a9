package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mpaland/chan-sccp/internal/call"
	"github.com/mpaland/chan-sccp/internal/config"
)

// stubDirectory is a canned CallDirectory for handler tests.
type stubDirectory struct {
	channels  []call.ChannelSnapshot
	lines     []call.LineSnapshot
	devices   []call.DeviceSnapshot
	hangups   []call.ID
	hangupErr error
	notifies  []notifyRecord
	notifyErr error
	position  uint32
}

type notifyRecord struct {
	device  string
	message string
	timeout int
}

func (s *stubDirectory) Snapshots() []call.ChannelSnapshot { return s.channels }

func (s *stubDirectory) ChannelSnapshot(id call.ID) (call.ChannelSnapshot, bool) {
	for _, c := range s.channels {
		if c.ID == id {
			return c, true
		}
	}
	return call.ChannelSnapshot{}, false
}

func (s *stubDirectory) LineSnapshots() []call.LineSnapshot     { return s.lines }
func (s *stubDirectory) DeviceSnapshots() []call.DeviceSnapshot { return s.devices }

func (s *stubDirectory) HangupChannel(id call.ID) error {
	if s.hangupErr != nil {
		return s.hangupErr
	}
	s.hangups = append(s.hangups, id)
	return nil
}

func (s *stubDirectory) NotifyDevice(deviceID, text string, timeout int) error {
	if s.notifyErr != nil {
		return s.notifyErr
	}
	s.notifies = append(s.notifies, notifyRecord{deviceID, text, timeout})
	return nil
}

func (s *stubDirectory) ChannelCount() int         { return len(s.channels) }
func (s *stubDirectory) AllocatorPosition() uint32 { return s.position }

// stubMedia is a canned MediaCounter.
type stubMedia struct{ count int }

func (s *stubMedia) Count() int { return s.count }

func testConfig() *config.Config {
	return &config.Config{
		SCCPPort:   2000,
		RTPPortMin: 10000,
		RTPPortMax: 20000,
	}
}

func newTestServer(dir *stubDirectory) *Server {
	return NewServer(dir, &stubMedia{count: 2}, testConfig(), prometheus.NewRegistry())
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubDirectory{})
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	data := env.Data.(map[string]any)
	if data["status"] != "ok" {
		t.Errorf("expected status ok, got %v", data["status"])
	}
}

func TestListChannelsOrderedAndPaginated(t *testing.T) {
	dir := &stubDirectory{
		channels: []call.ChannelSnapshot{
			{ID: 3, Line: "102", State: "connected"},
			{ID: 1, Line: "100", State: "hold"},
			{ID: 2, Line: "101", State: "ringout"},
		},
	}
	srv := newTestServer(dir)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/channels?limit=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	data := env.Data.(map[string]any)
	if data["total"] != float64(3) {
		t.Errorf("expected total=3, got %v", data["total"])
	}
	items := data["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["id"] != float64(1) {
		t.Errorf("expected channels ordered by id, first = %v", first["id"])
	}
}

func TestListChannelsOffsetBeyondEnd(t *testing.T) {
	dir := &stubDirectory{channels: []call.ChannelSnapshot{{ID: 1, Line: "100"}}}
	srv := newTestServer(dir)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/channels?offset=10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	items := env.Data.(map[string]any)["items"].([]any)
	if len(items) != 0 {
		t.Errorf("expected empty page, got %d items", len(items))
	}
}

func TestGetChannel(t *testing.T) {
	dir := &stubDirectory{
		channels: []call.ChannelSnapshot{{ID: 7, Line: "100", State: "connected"}},
	}
	srv := newTestServer(dir)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/channels/7", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	data := env.Data.(map[string]any)
	if data["line"] != "100" || data["state"] != "connected" {
		t.Errorf("unexpected snapshot: %v", data)
	}
}

func TestGetChannelNotFound(t *testing.T) {
	srv := newTestServer(&stubDirectory{})
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/channels/99", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetChannelInvalidID(t *testing.T) {
	srv := newTestServer(&stubDirectory{})
	defer srv.Close()

	for _, id := range []string{"abc", "0", "-1"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/channels/"+id, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: expected 400, got %d", id, w.Code)
		}
	}
}

func TestHangupChannel(t *testing.T) {
	dir := &stubDirectory{
		channels: []call.ChannelSnapshot{{ID: 5, Line: "100", State: "connected"}},
	}
	srv := newTestServer(dir)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/channels/5/hangup", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(dir.hangups) != 1 || dir.hangups[0] != 5 {
		t.Errorf("expected hangup of channel 5, got %v", dir.hangups)
	}
}

func TestHangupChannelNotFound(t *testing.T) {
	dir := &stubDirectory{hangupErr: call.ErrChannelNotFound}
	srv := newTestServer(dir)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/channels/5/hangup", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestNotifyDeviceEndpoint(t *testing.T) {
	dir := &stubDirectory{}
	srv := newTestServer(dir)
	defer srv.Close()

	body := strings.NewReader(`{"message": "Lobby visitor", "timeout_sec": 30}`)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/devices/SEP001122334455/notify", body))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(dir.notifies) != 1 {
		t.Fatalf("expected one notify, got %d", len(dir.notifies))
	}
	got := dir.notifies[0]
	if got.device != "SEP001122334455" || got.message != "Lobby visitor" || got.timeout != 30 {
		t.Errorf("unexpected notify %+v", got)
	}
}

func TestNotifyDeviceDefaultTimeout(t *testing.T) {
	dir := &stubDirectory{}
	srv := newTestServer(dir)
	defer srv.Close()

	body := strings.NewReader(`{"message": "hello"}`)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/devices/SEPaa/notify", body))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if dir.notifies[0].timeout != defaultNotifyTimeoutSec {
		t.Errorf("expected default timeout, got %d", dir.notifies[0].timeout)
	}
}

func TestNotifyDeviceBadBody(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "request body must not be empty"},
		{"malformed", `{"message": `, "malformed json"},
		{"unknown field", `{"text": "hi"}`, "unknown field text"},
		{"wrong type", `{"message": "hi", "timeout_sec": "soon"}`, "invalid value for field timeout_sec"},
		{"missing message", `{"timeout_sec": 5}`, "message must not be empty"},
		{"negative timeout", `{"message": "hi", "timeout_sec": -1}`, "timeout_sec must not be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := &stubDirectory{}
			srv := newTestServer(dir)
			defer srv.Close()

			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/devices/SEPaa/notify", strings.NewReader(tc.body)))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			env := decodeEnvelope(t, w)
			if env.Error != tc.want {
				t.Errorf("error = %q, want %q", env.Error, tc.want)
			}
			if len(dir.notifies) != 0 {
				t.Errorf("notify must not reach the call core on bad input")
			}
		})
	}
}

func TestNotifyDeviceUnknown(t *testing.T) {
	dir := &stubDirectory{notifyErr: call.ErrDeviceNotFound}
	srv := newTestServer(dir)
	defer srv.Close()

	body := strings.NewReader(`{"message": "hello"}`)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/devices/SEPmissing/notify", body))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestNotifyDeviceWithoutSession(t *testing.T) {
	dir := &stubDirectory{notifyErr: call.ErrNoSession}
	srv := newTestServer(dir)
	defer srv.Close()

	body := strings.NewReader(`{"message": "hello"}`)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/devices/SEPaa/notify", body))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestListLinesSorted(t *testing.T) {
	dir := &stubDirectory{
		lines: []call.LineSnapshot{
			{Name: "200", ActiveChannels: 1},
			{Name: "100", HeldChannels: 1},
		},
	}
	srv := newTestServer(dir)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/lines", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	items := env.Data.([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(items))
	}
	if items[0].(map[string]any)["name"] != "100" {
		t.Errorf("expected lines sorted by name, got %v", items[0])
	}
}

func TestListDevicesEmptyIsArray(t *testing.T) {
	srv := newTestServer(&stubDirectory{})
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	// Must serialize as [] rather than null.
	if env := decodeEnvelope(t, w); env.Data == nil {
		t.Error("expected empty array, got null")
	}
}

func TestSystemStatus(t *testing.T) {
	dir := &stubDirectory{
		channels: []call.ChannelSnapshot{{ID: 1}, {ID: 2}},
		lines:    []call.LineSnapshot{{Name: "100"}},
		devices:  []call.DeviceSnapshot{{ID: "SEP001122334455"}},
		position: 42,
	}
	srv := newTestServer(dir)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	data := env.Data.(map[string]any)

	stats := data["stats"].(map[string]any)
	if stats["channels"] != float64(2) {
		t.Errorf("expected 2 channels, got %v", stats["channels"])
	}
	if stats["media_sessions"] != float64(2) {
		t.Errorf("expected 2 media sessions, got %v", stats["media_sessions"])
	}
	if stats["call_id_position"] != float64(42) {
		t.Errorf("expected position 42, got %v", stats["call_id_position"])
	}

	gw := data["gateway"].(map[string]any)
	if gw["sccp_port"] != float64(2000) {
		t.Errorf("expected sccp_port 2000, got %v", gw["sccp_port"])
	}

	if _, ok := data["uptime"].(map[string]any)["uptime_text"]; !ok {
		t.Error("expected uptime_text in response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&stubDirectory{})
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		sec  int64
		want string
	}{
		{12, "12s"},
		{125, "2m 5s"},
		{3725, "1h 2m 5s"},
		{90061, "1d 1h 1m 1s"},
	}
	for _, tt := range tests {
		got := formatUptime(time.Duration(tt.sec) * time.Second)
		if got != tt.want {
			t.Errorf("formatUptime(%ds) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
