// Package bridge exposes the engine to the overlay and tray UI over a
// loopback WebSocket. Events published on the overlay bus stream out as
// JSON; UI commands come back in on the same connection.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sotto-app/sotto/internal/engine"
	"github.com/sotto-app/sotto/internal/health"
	"github.com/sotto-app/sotto/internal/overlay"
	"github.com/sotto-app/sotto/internal/permissions"
)

// Controller is the engine surface the bridge drives. *engine.Engine
// satisfies it.
type Controller interface {
	Cancel()
	Undo()
	Trigger()
	SetEnabled(enabled bool)
	ApplySettings(s engine.Settings)
	Settings() engine.Settings
	ListInputDevices(ctx context.Context) ([]string, error)
	PermissionsChecked(status permissions.Status)
}

// commandMsg is an inbound UI command. Op selects the action; the other
// fields are op-specific.
type commandMsg struct {
	Op       string       `json:"op"`
	Enabled  *bool        `json:"enabled,omitempty"`
	Settings *settingsMsg `json:"settings,omitempty"`
}

// replyMsg is an outbound response to a request-style command.
type replyMsg struct {
	Op          string              `json:"op"`
	Settings    *settingsMsg        `json:"settings,omitempty"`
	Devices     []string            `json:"devices,omitempty"`
	Permissions *permissions.Status `json:"permissions,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// settingsMsg is the wire form of [engine.Settings]. Durations travel as
// milliseconds so the UI never parses Go duration strings.
type settingsMsg struct {
	Enabled          bool    `json:"enabled"`
	Microphone       string  `json:"microphone"`
	WakePhrase       string  `json:"wake_phrase"`
	Sensitivity      float64 `json:"sensitivity"`
	SilenceTimeoutMs int64   `json:"silence_timeout_ms"`
	FinalizeGraceMs  int64   `json:"finalize_grace_ms"`
}

func settingsToWire(s engine.Settings) *settingsMsg {
	return &settingsMsg{
		Enabled:          s.Enabled,
		Microphone:       s.Microphone,
		WakePhrase:       s.WakePhrase,
		Sensitivity:      s.Sensitivity,
		SilenceTimeoutMs: s.SilenceTimeout.Milliseconds(),
		FinalizeGraceMs:  s.FinalizeGrace.Milliseconds(),
	}
}

func (m *settingsMsg) toSettings() engine.Settings {
	return engine.Settings{
		Enabled:        m.Enabled,
		Microphone:     m.Microphone,
		WakePhrase:     m.WakePhrase,
		Sensitivity:    m.Sensitivity,
		SilenceTimeout: time.Duration(m.SilenceTimeoutMs) * time.Millisecond,
		FinalizeGrace:  time.Duration(m.FinalizeGraceMs) * time.Millisecond,
	}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithChecker sets the permission prober used for the check-permissions
// command. Defaults to the OS prober.
func WithChecker(c permissions.Checker) Option {
	return func(b *Bridge) { b.checker = c }
}

// WithHealthCheckers adds readiness checks served on /readyz.
func WithHealthCheckers(checks ...health.Checker) Option {
	return func(b *Bridge) { b.checks = append(b.checks, checks...) }
}

// Bridge serves the overlay protocol on a loopback address.
type Bridge struct {
	ctrl    Controller
	bus     *overlay.Bus
	checker permissions.Checker
	checks  []health.Checker
	log     *slog.Logger
}

// New creates a Bridge serving events from bus and dispatching commands
// to ctrl.
func New(ctrl Controller, bus *overlay.Bus, opts ...Option) (*Bridge, error) {
	if ctrl == nil {
		return nil, errors.New("bridge: controller is required")
	}
	if bus == nil {
		return nil, errors.New("bridge: event bus is required")
	}
	b := &Bridge{
		ctrl:    ctrl,
		bus:     bus,
		checker: permissions.NewProber(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Handler returns the HTTP handler serving the bridge endpoints: /ws for
// the overlay socket, /metrics for Prometheus scrapes, and /healthz +
// /readyz probes.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	health.New(b.checks...).Register(mux)
	return mux
}

// Serve listens on addr until ctx is done. Dictated text crosses this
// socket, so only loopback addresses are accepted.
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	if err := requireLoopback(addr); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	b.log.Info("overlay bridge listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// requireLoopback rejects listen addresses that would expose the socket
// beyond the local machine.
func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("bridge: invalid listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("bridge: refusing non-loopback listen address %q", addr)
	}
	return nil
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The overlay page is served from a file:// or app:// origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bridge closed")

	ctx := r.Context()
	b.log.Debug("overlay connected", "remote", r.RemoteAddr)

	events := b.bus.Subscribe()
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		b.writeEvents(ctx, conn, events)
	}()

	b.readCommands(ctx, conn)
	<-writeDone
	b.log.Debug("overlay disconnected", "remote", r.RemoteAddr)
}

// writeEvents streams bus events to the socket until the subscription or
// the connection ends.
func (b *Bridge) writeEvents(ctx context.Context, conn *websocket.Conn, events <-chan overlay.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				b.log.Error("event marshal failed", "kind", ev.Kind, "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
	}
}

// readCommands processes inbound commands until the connection ends.
func (b *Bridge) readCommands(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg commandMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			b.writeReply(ctx, conn, replyMsg{Op: "error", Error: "malformed command"})
			continue
		}
		b.dispatch(ctx, conn, msg)
	}
}

func (b *Bridge) dispatch(ctx context.Context, conn *websocket.Conn, msg commandMsg) {
	switch msg.Op {
	case "cancel":
		b.ctrl.Cancel()
	case "undo":
		b.ctrl.Undo()
	case "trigger":
		b.ctrl.Trigger()
	case "set-enabled":
		if msg.Enabled != nil {
			b.ctrl.SetEnabled(*msg.Enabled)
		}
	case "update-settings":
		if msg.Settings != nil {
			b.ctrl.ApplySettings(msg.Settings.toSettings())
		}
	case "get-settings":
		b.writeReply(ctx, conn, replyMsg{
			Op:       "settings",
			Settings: settingsToWire(b.ctrl.Settings()),
		})
	case "list-devices":
		devices, err := b.ctrl.ListInputDevices(ctx)
		reply := replyMsg{Op: "devices", Devices: devices}
		if err != nil {
			reply.Error = err.Error()
		}
		b.writeReply(ctx, conn, reply)
	case "check-permissions":
		status, err := b.checker.Check(ctx)
		reply := replyMsg{Op: "permissions", Permissions: &status}
		if err != nil {
			reply.Error = err.Error()
		}
		b.ctrl.PermissionsChecked(status)
		b.writeReply(ctx, conn, reply)
	default:
		b.writeReply(ctx, conn, replyMsg{
			Op:    "error",
			Error: fmt.Sprintf("unknown op %q", strings.TrimSpace(msg.Op)),
		})
	}
}

func (b *Bridge) writeReply(ctx context.Context, conn *websocket.Conn, reply replyMsg) {
	payload, err := json.Marshal(reply)
	if err != nil {
		b.log.Error("reply marshal failed", "op", reply.Op, "err", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		b.log.Debug("reply write failed", "op", reply.Op, "err", err)
	}
}
