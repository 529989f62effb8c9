package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/sotto-app/sotto/internal/engine"
	"github.com/sotto-app/sotto/internal/overlay"
	"github.com/sotto-app/sotto/internal/permissions"
)

// fakeController records every call so tests can assert dispatch.
type fakeController struct {
	mu sync.Mutex

	cancels, undos, triggers int
	enabled                  []bool
	applied                  []engine.Settings

	settings engine.Settings
	devices  []string
	perms    []permissions.Status
}

var _ Controller = (*fakeController)(nil)

func (f *fakeController) Cancel()  { f.mu.Lock(); defer f.mu.Unlock(); f.cancels++ }
func (f *fakeController) Undo()    { f.mu.Lock(); defer f.mu.Unlock(); f.undos++ }
func (f *fakeController) Trigger() { f.mu.Lock(); defer f.mu.Unlock(); f.triggers++ }

func (f *fakeController) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = append(f.enabled, enabled)
}

func (f *fakeController) ApplySettings(s engine.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, s)
}

func (f *fakeController) Settings() engine.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeController) ListInputDevices(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, nil
}

func (f *fakeController) PermissionsChecked(status permissions.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms = append(f.perms, status)
}

// snapshot copies the counters under the lock.
func (f *fakeController) snapshot() (cancels, undos, triggers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels, f.undos, f.triggers
}

// fakeChecker returns a fixed status without probing the OS.
type fakeChecker struct{ status permissions.Status }

func (f fakeChecker) Check(context.Context) (permissions.Status, error) {
	return f.status, nil
}

type testClient struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (c *testClient) send(t *testing.T, msg commandMsg) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

// read decodes the next message into a generic map so tests can inspect
// both events and replies.
func (c *testClient) read(t *testing.T) map[string]any {
	t.Helper()
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal message %q: %v", data, err)
	}
	return out
}

func newTestBridge(t *testing.T, ctrl Controller, checker permissions.Checker) (*overlay.Bus, *testClient) {
	t.Helper()

	bus := overlay.NewBus(overlay.DefaultBusCapacity)
	t.Cleanup(bus.Close)

	opts := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	if checker != nil {
		opts = append(opts, WithChecker(checker))
	}
	b, err := New(ctrl, bus, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	client := &testClient{conn: conn, ctx: ctx}

	// One round-trip so the handler's bus subscription is in place before
	// any test publishes events.
	client.send(t, commandMsg{Op: "get-settings"})
	client.read(t)

	return bus, client
}

func TestBridge_RequiresControllerAndBus(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, overlay.NewBus(1)); err == nil {
		t.Error("New with nil controller succeeded")
	}
	if _, err := New(&fakeController{}, nil); err == nil {
		t.Error("New with nil bus succeeded")
	}
}

func TestBridge_StreamsBusEvents(t *testing.T) {
	t.Parallel()
	bus, client := newTestBridge(t, &fakeController{}, nil)

	bus.Publish(overlay.Event{Kind: overlay.EventOverlayText, Text: "hello", Final: true})

	msg := client.read(t)
	if msg["kind"] != string(overlay.EventOverlayText) {
		t.Errorf("kind = %v, want %v", msg["kind"], overlay.EventOverlayText)
	}
	if msg["text"] != "hello" || msg["final"] != true {
		t.Errorf("unexpected event payload: %v", msg)
	}
}

func TestBridge_DispatchesActions(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{}
	_, client := newTestBridge(t, ctrl, nil)

	client.send(t, commandMsg{Op: "cancel"})
	client.send(t, commandMsg{Op: "undo"})
	client.send(t, commandMsg{Op: "trigger"})
	// get-settings is a synchronisation point: once its reply arrives the
	// earlier commands have been dispatched.
	client.send(t, commandMsg{Op: "get-settings"})
	client.read(t)

	cancels, undos, triggers := ctrl.snapshot()
	if cancels != 1 || undos != 1 || triggers != 1 {
		t.Errorf("dispatch counts = (%d, %d, %d), want (1, 1, 1)", cancels, undos, triggers)
	}
}

func TestBridge_GetSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{settings: engine.Settings{
		Enabled:        true,
		Microphone:     "usb-mic",
		WakePhrase:     "hey sotto",
		Sensitivity:    0.7,
		SilenceTimeout: 1200 * time.Millisecond,
		FinalizeGrace:  800 * time.Millisecond,
	}}
	_, client := newTestBridge(t, ctrl, nil)

	client.send(t, commandMsg{Op: "get-settings"})
	msg := client.read(t)

	if msg["op"] != "settings" {
		t.Fatalf("op = %v, want settings", msg["op"])
	}
	settings, ok := msg["settings"].(map[string]any)
	if !ok {
		t.Fatalf("settings missing from reply: %v", msg)
	}
	if settings["wake_phrase"] != "hey sotto" {
		t.Errorf("wake_phrase = %v, want %q", settings["wake_phrase"], "hey sotto")
	}
	if settings["silence_timeout_ms"] != float64(1200) {
		t.Errorf("silence_timeout_ms = %v, want 1200", settings["silence_timeout_ms"])
	}
}

func TestBridge_UpdateSettings(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{}
	_, client := newTestBridge(t, ctrl, nil)

	client.send(t, commandMsg{Op: "update-settings", Settings: &settingsMsg{
		Enabled:          true,
		Microphone:       "built-in",
		WakePhrase:       "hey sotto",
		Sensitivity:      0.4,
		SilenceTimeoutMs: 900,
	}})
	client.send(t, commandMsg{Op: "get-settings"})
	client.read(t)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.applied) != 1 {
		t.Fatalf("applied %d settings, want 1", len(ctrl.applied))
	}
	got := ctrl.applied[0]
	if got.Microphone != "built-in" || got.SilenceTimeout != 900*time.Millisecond {
		t.Errorf("applied settings = %+v", got)
	}
}

func TestBridge_ListDevices(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{devices: []string{"built-in", "usb-mic"}}
	_, client := newTestBridge(t, ctrl, nil)

	client.send(t, commandMsg{Op: "list-devices"})
	msg := client.read(t)

	if msg["op"] != "devices" {
		t.Fatalf("op = %v, want devices", msg["op"])
	}
	devices, ok := msg["devices"].([]any)
	if !ok || len(devices) != 2 || devices[1] != "usb-mic" {
		t.Errorf("devices = %v, want [built-in usb-mic]", msg["devices"])
	}
}

func TestBridge_CheckPermissionsNotifiesController(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{}
	checker := fakeChecker{status: permissions.Status{Microphone: true, Accessibility: false}}
	_, client := newTestBridge(t, ctrl, checker)

	client.send(t, commandMsg{Op: "check-permissions"})
	msg := client.read(t)

	if msg["op"] != "permissions" {
		t.Fatalf("op = %v, want permissions", msg["op"])
	}
	perms, ok := msg["permissions"].(map[string]any)
	if !ok || perms["microphone"] != true || perms["accessibility"] != false {
		t.Errorf("permissions reply = %v", msg["permissions"])
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.perms) != 1 || !ctrl.perms[0].Microphone || ctrl.perms[0].Accessibility {
		t.Errorf("controller notified with %+v", ctrl.perms)
	}
}

func TestBridge_UnknownOpReturnsError(t *testing.T) {
	t.Parallel()
	_, client := newTestBridge(t, &fakeController{}, nil)

	client.send(t, commandMsg{Op: "reboot"})
	msg := client.read(t)

	if msg["op"] != "error" {
		t.Errorf("op = %v, want error", msg["op"])
	}
	if errText, _ := msg["error"].(string); !strings.Contains(errText, "reboot") {
		t.Errorf("error = %v, want mention of the unknown op", msg["error"])
	}
}

func TestRequireLoopback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		ok   bool
	}{
		{"127.0.0.1:8849", true},
		{"localhost:8849", true},
		{"[::1]:8849", true},
		{"0.0.0.0:8849", false},
		{"192.168.1.5:8849", false},
		{"example.com:8849", false},
		{"no-port", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			err := requireLoopback(tt.addr)
			if (err == nil) != tt.ok {
				t.Errorf("requireLoopback(%q) = %v, want ok=%v", tt.addr, err, tt.ok)
			}
		})
	}
}
