// Package engine implements Sotto's session coordinator: the single event
// loop that owns the dictation state machine and drives the wake, VAD,
// transcription, and injection capabilities.
//
// The coordinator is the only writer of engine state. Audio frames, wake
// detections, transcription fragments, hotkey commands, and settings updates
// all arrive as messages; provider adapters run on their own goroutines and
// never touch shared state. Cancellation works by staleness filtering, not
// preemption: closing a session makes its id stale, and fragments still in
// flight for that id are counted and dropped.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sotto-app/sotto/internal/observe"
	"github.com/sotto-app/sotto/internal/overlay"
	"github.com/sotto-app/sotto/internal/permissions"
	"github.com/sotto-app/sotto/pkg/audio"
	"github.com/sotto-app/sotto/pkg/provider/inject"
	"github.com/sotto-app/sotto/pkg/provider/stt"
	"github.com/sotto-app/sotto/pkg/provider/vad"
	"github.com/sotto-app/sotto/pkg/provider/wake"
)

// Providers bundles the capability implementations the engine drives. All
// fields are required.
type Providers struct {
	Source   audio.Source
	Wake     wake.Detector
	VAD      vad.Classifier
	STT      stt.Engine
	Injector inject.Injector
}

func (p Providers) validate() error {
	switch {
	case p.Source == nil:
		return fmt.Errorf("engine: Providers.Source is required")
	case p.Wake == nil:
		return fmt.Errorf("engine: Providers.Wake is required")
	case p.VAD == nil:
		return fmt.Errorf("engine: Providers.VAD is required")
	case p.STT == nil:
		return fmt.Errorf("engine: Providers.STT is required")
	case p.Injector == nil:
		return fmt.Errorf("engine: Providers.Injector is required")
	}
	return nil
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics instance. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the session coordinator. Create with [New], start with [Run],
// and interact through the command methods; events flow out on the overlay
// bus passed to New.
type Engine struct {
	log     *slog.Logger
	metrics *observe.Metrics
	bus     *overlay.Bus

	providers Providers

	// settings is written only by the coordinator loop; mu guards reads
	// from other goroutines via Settings().
	mu       sync.Mutex
	settings Settings

	machine   *Machine
	commands  chan command
	fragments chan stt.Fragment
	frames    *audio.Tee
	worker    *injectionWorker

	// armed gates the wake scanning goroutine: true exactly in StateIdle.
	armed atomic.Bool

	// Loop-owned session bookkeeping.
	nextID      uint64
	sess        *session
	perms       permissions.Status
	lastTray    overlay.TrayState
	capture     audio.Session
	captureGen  int
	lastDropped uint64
}

// New creates an Engine publishing events on bus. The engine starts in
// StateDisabled; it arms once Run is active, the settings enable it, and a
// permission check grants what it needs.
func New(settings Settings, p Providers, bus *overlay.Bus, opts ...Option) (*Engine, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if bus == nil {
		return nil, fmt.Errorf("engine: bus is required")
	}
	settings = settings.withDefaults()

	e := &Engine{
		log:       slog.Default(),
		bus:       bus,
		providers: p,
		settings:  settings,
		machine:   NewMachine(),
		commands:  make(chan command, 256),
		fragments: make(chan stt.Fragment, 8),
		frames:    audio.NewTee(settings.FrameBuffer),
		nextID:    1,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.worker = newInjectionWorker(p.Injector, e.log)
	return e, nil
}

// Run starts the coordinator loop, the wake scanner, and the injection
// worker, blocking until ctx is done. The engine cannot be restarted.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.worker.run(ctx) })
	g.Go(func() error { e.wakeLoop(ctx); return nil })
	g.Go(func() error { return e.loop(ctx) })
	return g.Wait()
}

// --- Command surface (safe from any goroutine) ---

// Cancel discards the live session and rolls back its injected text.
func (e *Engine) Cancel() { e.send(cmdCancel{}) }

// Undo removes the most recent completed session's injected text. Valid
// only while idle; at most once per completed session.
func (e *Engine) Undo() { e.send(cmdUndo{}) }

// Trigger opens a session by push-to-talk, with the same gating as a wake
// detection.
func (e *Engine) Trigger() { e.send(cmdTrigger{}) }

// SetEnabled flips the master switch. Disabling during a live session
// cancels it first.
func (e *Engine) SetEnabled(v bool) { e.send(cmdSetEnabled{enabled: v}) }

// ApplySettings replaces the live settings. Sensitivity applies to the
// running wake detector and VAD session; a microphone change restarts
// capture.
func (e *Engine) ApplySettings(s Settings) { e.send(cmdApplySettings{settings: s}) }

// PermissionsChecked delivers a fresh permission probe result.
func (e *Engine) PermissionsChecked(st permissions.Status) { e.send(cmdPermissions{status: st}) }

// Settings returns a snapshot of the live settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// State returns the current coordinator state.
func (e *Engine) State() State { return e.machine.State() }

// ListInputDevices enumerates capture devices from the audio source.
func (e *Engine) ListInputDevices(ctx context.Context) ([]string, error) {
	return e.providers.Source.ListDevices(ctx)
}

// send delivers a command without ever blocking the caller. The buffer is
// generous; a full channel means the loop is gone and the command is moot.
func (e *Engine) send(c command) {
	select {
	case e.commands <- c:
	default:
		e.log.Warn("engine command dropped", "command", fmt.Sprintf("%T", c))
	}
}

// --- Wake scanning goroutine ---

// wakeLoop scans fan-out frames for the wake phrase while the engine is
// idle. It owns the detector: Scan and Reset are only ever called here.
func (e *Engine) wakeLoop(ctx context.Context) {
	sub := e.frames.Subscribe()
	wasArmed := false
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-sub:
			if !ok {
				return
			}
			armed := e.armed.Load()
			if armed && !wasArmed {
				// Re-armed: drop audio windowed before or during the session.
				e.providers.Wake.Reset()
			}
			wasArmed = armed
			if !armed {
				continue
			}
			ev, detected, err := e.providers.Wake.Scan(f)
			if err != nil {
				e.log.Warn("wake scan failed", "error", err)
				continue
			}
			if detected {
				e.send(cmdWake{ev: ev})
			}
		}
	}
}

// --- Coordinator loop ---

func (e *Engine) loop(ctx context.Context) error {
	defer e.teardown()

	sub := e.frames.Subscribe()
	e.machine.SetEnabled(e.settings.Enabled)

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-sub:
			if !ok {
				return nil
			}
			e.handleFrame(ctx, f)
		case c := <-e.commands:
			e.handleCommand(ctx, c)
		case f := <-e.fragments:
			e.handleFragment(ctx, f)
		case r := <-e.worker.reports:
			e.handleReport(ctx, r)
		}
	}
}

func (e *Engine) teardown() {
	if e.sess != nil {
		e.sess.stopGrace()
		_ = e.sess.stream.Close()
		e.sess = nil
	}
	e.stopCapture()
	e.frames.Close()
}

func (e *Engine) handleCommand(ctx context.Context, c command) {
	switch c := c.(type) {
	case cmdWake:
		if e.machine.State() != StateIdle {
			e.log.Debug("wake ignored", "state", e.machine.State())
			return
		}
		e.openSession(ctx, c.ev.Timestamp)

	case cmdTrigger:
		if e.machine.State() != StateIdle {
			e.log.Debug("push-to-talk ignored", "state", e.machine.State())
			return
		}
		e.openSession(ctx, time.Time{})

	case cmdCancel:
		e.beginCancel(ctx)

	case cmdUndo:
		if e.machine.State() != StateIdle {
			e.log.Debug("undo ignored", "state", e.machine.State())
			return
		}
		e.workerSend(ctx, opUndo{})

	case cmdSetEnabled:
		e.applyEnabled(ctx, c.enabled)

	case cmdApplySettings:
		e.applySettings(ctx, c.settings)

	case cmdPermissions:
		e.applyPermissions(ctx, c.status)

	case cmdGraceTimeout:
		if e.sess != nil && e.sess.id == c.sessionID && e.machine.State() == StateFinalizing {
			e.log.Warn("finalize grace elapsed, completing with partial transcript",
				"session", c.sessionID)
			e.completeSession(ctx)
		}

	case cmdCaptureErr:
		e.handleCaptureErr(ctx, c)
	}
}

// handleFrame drives VAD gating and transcription intake for the live
// session. Silence timing uses frame timestamps so the decision is
// independent of scheduling delay.
func (e *Engine) handleFrame(ctx context.Context, f audio.Frame) {
	s := e.sess
	if s == nil || e.machine.State() != StateListening {
		return
	}

	e.bus.Publish(overlay.Event{Kind: overlay.EventOverlayWave, Level: f.Peak})

	now := f.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	switch s.vad.Classify(f) {
	case vad.Speech:
		if s.speechAt.IsZero() {
			s.speechAt = now
		}
		s.silenceSince = time.Time{}
	case vad.Silence:
		if s.silenceSince.IsZero() {
			s.silenceSince = now
		} else if now.Sub(s.silenceSince) >= e.settings.SilenceTimeout {
			e.beginFinalize()
			return
		}
	}

	if err := s.stream.Feed(f); err != nil {
		e.log.Debug("stt feed failed", "session", s.id, "error", err)
	}
}

// handleFragment applies one transcription fragment, dropping anything
// stale (closed or cancelling session) or out of sequence order.
func (e *Engine) handleFragment(ctx context.Context, f stt.Fragment) {
	s := e.sess
	if s == nil || f.SessionID != s.id || e.machine.State() == StateCancelling {
		e.metrics.StaleFragments.Add(ctx, 1)
		e.log.Debug("stale fragment dropped", "session", f.SessionID, "seq", f.Seq)
		return
	}
	if f.Seq <= s.lastSeq {
		e.metrics.StaleFragments.Add(ctx, 1)
		e.log.Debug("out-of-order fragment dropped",
			"session", f.SessionID, "seq", f.Seq, "last", s.lastSeq)
		return
	}
	s.lastSeq = f.Seq

	if f.Delta != "" {
		s.transcript += f.Delta
		if !s.firstText {
			s.firstText = true
			if !s.speechAt.IsZero() {
				e.metrics.SpeechToFirstText.Record(ctx, time.Since(s.speechAt).Seconds())
			}
		}
		if !s.secure {
			e.workerSend(ctx, opDelta{id: s.id, text: f.Delta})
		}
	}
	if f.Delta != "" || f.Final {
		e.bus.Publish(overlay.Event{
			Kind:       overlay.EventOverlayText,
			Text:       f.Delta,
			Transcript: s.transcript,
			Final:      f.Final,
		})
	}

	if f.Final {
		// The final fragment normally lands while finalizing; a stream may
		// also self-finalize, in which case intake stops here.
		if e.machine.State() == StateListening {
			e.machine.BeginFinalize()
		}
		e.completeSession(ctx)
	}
}

func (e *Engine) handleReport(ctx context.Context, r injectReport) {
	switch r.kind {
	case reportApplied:
		if e.sess != nil && r.sessionID == e.sess.id {
			e.sess.injected += r.chars
		}
		e.metrics.InjectedChars.Add(ctx, int64(r.chars))

	case reportCommitted:
		e.log.Debug("injection committed", "session", r.sessionID, "chars", r.chars)

	case reportRolledBack:
		if r.err != nil {
			e.reportError(ctx, fmt.Errorf("%w: rollback: %v", ErrInjectionFailed, r.err), "injection-failed")
		}
		if e.machine.State() == StateCancelling && e.sess != nil && r.sessionID == e.sess.id {
			e.finishCancel(ctx, r.chars)
		}

	case reportUndone:
		if r.err != nil {
			e.reportError(ctx, fmt.Errorf("%w: undo: %v", ErrInjectionFailed, r.err), "injection-failed")
			return
		}
		e.log.Info("undo applied", "session", r.sessionID, "chars", r.chars)

	case reportUndoUnavailable:
		e.reportError(ctx, ErrUndoUnavailable, "undo-unavailable")

	case reportFailed:
		e.reportError(ctx, fmt.Errorf("%w: %v", ErrInjectionFailed, r.err), "injection-failed")
	}
}

// --- Session lifecycle ---

func (e *Engine) openSession(ctx context.Context, wakeAt time.Time) {
	if !e.machine.StartSession() {
		return
	}
	id := e.nextID
	e.nextID++
	e.armed.Store(false)

	// The overlay goes up before any provider work: session setup may stall
	// on a model warm-up, and the user needs feedback the instant the wake
	// fired. A failed open hides it again.
	e.emitState()
	e.bus.Publish(overlay.Event{Kind: overlay.EventOverlayReset})
	e.bus.Publish(overlay.Event{Kind: overlay.EventOverlayShow})
	if !wakeAt.IsZero() {
		e.metrics.WakeToOverlay.Record(ctx, time.Since(wakeAt).Seconds())
	}

	// The secure probe happens once here; its result is fixed for the
	// session even if focus later moves to or from a password field.
	secure := e.providers.Injector.FocusedFieldSecure()

	vadSess, err := e.providers.VAD.NewSession(vad.Config{Sensitivity: e.settings.Sensitivity})
	if err != nil {
		e.abortOpen(ctx, fmt.Errorf("%w: vad session: %v", ErrModelLoadFailed, err))
		return
	}
	stream, err := e.providers.STT.Begin(ctx, id)
	if err != nil {
		e.abortOpen(ctx, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err))
		return
	}

	e.sess = &session{
		id:        id,
		startedAt: time.Now(),
		wakeAt:    wakeAt,
		secure:    secure,
		stream:    stream,
		vad:       vadSess,
	}
	e.workerSend(ctx, opBegin{id: id, secure: secure})

	// Pump fragments into the loop; exits when the stream closes. The send
	// blocks so a busy loop never costs transcript text.
	go func() {
		for f := range stream.Fragments() {
			select {
			case e.fragments <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	e.metrics.ActiveSession.Add(ctx, 1)
	if secure {
		e.log.Info("secure field focused, injection suppressed for session", "session", id)
	}
}

// abortOpen unwinds a session open that failed before the session existed.
// The overlay is already showing at this point and must come back down.
func (e *Engine) abortOpen(ctx context.Context, err error) {
	e.reportError(ctx, err, "session-open")
	st, _ := e.machine.FinishCycle()
	e.armed.Store(st == StateIdle)
	e.bus.Publish(overlay.Event{Kind: overlay.EventOverlayHide})
	e.emitState()
}

func (e *Engine) beginFinalize() {
	if !e.machine.BeginFinalize() {
		return
	}
	s := e.sess
	s.stream.Finalize()
	id := s.id
	s.grace = time.AfterFunc(e.settings.FinalizeGrace, func() {
		e.send(cmdGraceTimeout{sessionID: id})
	})
	e.emitState()
}

// completeSession commits the session's injection and returns to idle.
func (e *Engine) completeSession(ctx context.Context) {
	s := e.sess
	s.stopGrace()
	e.workerSend(ctx, opCommit{id: s.id})
	_ = s.stream.Close()

	e.metrics.RecordSession(ctx, "completed", time.Since(s.startedAt).Seconds())
	e.metrics.ActiveSession.Add(ctx, -1)
	e.flushDroppedFrames(ctx)
	e.log.Info("session completed",
		"session", s.id, "chars", s.injected, "secure", s.secure)
	e.sess = nil

	st, _ := e.machine.FinishCycle()
	e.armed.Store(st == StateIdle)
	e.bus.Publish(overlay.Event{Kind: overlay.EventOverlayHide})
	e.emitState()
	e.syncCapture(ctx)
}

// beginCancel closes the live session's stream and asks the worker to roll
// back. The cycle finishes when the rollback report arrives; fragments still
// in flight are dropped as stale in the meantime.
func (e *Engine) beginCancel(ctx context.Context) {
	if !e.machine.BeginCancel() {
		return
	}
	s := e.sess
	s.stopGrace()
	_ = s.stream.Close()
	e.workerSend(ctx, opCancel{id: s.id})
	e.bus.Publish(overlay.Event{Kind: overlay.EventOverlayHide})
	e.emitState()
}

func (e *Engine) finishCancel(ctx context.Context, deleted int) {
	s := e.sess
	e.metrics.RecordSession(ctx, "cancelled", time.Since(s.startedAt).Seconds())
	e.metrics.ActiveSession.Add(ctx, -1)
	e.flushDroppedFrames(ctx)
	e.log.Info("session cancelled", "session", s.id, "chars_rolled_back", deleted)
	e.sess = nil

	st, _ := e.machine.FinishCycle()
	e.armed.Store(st == StateIdle)
	e.emitState()
	e.syncCapture(ctx)
}

// --- Settings, enablement, permissions ---

func (e *Engine) applyEnabled(ctx context.Context, enabled bool) {
	e.mu.Lock()
	e.settings.Enabled = enabled
	e.mu.Unlock()
	e.machine.SetEnabled(enabled)

	if enabled {
		e.tryArm(ctx)
		return
	}
	switch e.machine.State() {
	case StateListening, StateFinalizing:
		// FinishCycle lands in Disabled once the rollback completes.
		e.beginCancel(ctx)
	case StateIdle:
		e.machine.Disarm()
		e.armed.Store(false)
		e.emitState()
		e.syncCapture(ctx)
	}
}

func (e *Engine) applySettings(ctx context.Context, s Settings) {
	s = s.withDefaults()
	e.mu.Lock()
	old := e.settings
	e.settings = s
	e.mu.Unlock()

	if s.Sensitivity != old.Sensitivity {
		if det, ok := e.providers.Wake.(interface{ SetSensitivity(float64) }); ok {
			det.SetSensitivity(s.Sensitivity)
		}
		if e.sess != nil {
			e.sess.vad.SetSensitivity(s.Sensitivity)
		}
	}
	if s.Enabled != old.Enabled {
		e.applyEnabled(ctx, s.Enabled)
	}
	if s.Microphone != old.Microphone && e.machine.State() != StateDisabled {
		e.log.Info("microphone changed, restarting capture", "device", s.Microphone)
		e.stopCapture()
		e.startCapture(ctx)
	}
}

func (e *Engine) applyPermissions(ctx context.Context, st permissions.Status) {
	e.perms = st
	e.machine.SetPermitted(st.AllGranted())

	if st.AllGranted() {
		e.tryArm(ctx)
		return
	}
	e.bus.Publish(overlay.Event{Kind: overlay.EventPermissionsRequired, Permissions: &st})
	e.reportError(ctx, ErrPermissionDenied, "permission-denied")
	switch e.machine.State() {
	case StateListening, StateFinalizing:
		e.beginCancel(ctx)
	case StateIdle:
		e.machine.Disarm()
		e.armed.Store(false)
		e.emitState()
		e.syncCapture(ctx)
	}
}

// tryArm moves Disabled → Idle when everything required is in place. The
// device is assumed ready until a capture attempt says otherwise.
func (e *Engine) tryArm(ctx context.Context) {
	e.machine.SetDeviceReady(true)
	if !e.machine.Arm() {
		return
	}
	e.syncCapture(ctx)
	if e.machine.State() == StateIdle {
		e.armed.Store(true)
		e.emitState()
	}
}

// --- Capture management ---

// syncCapture starts or stops capture so that it runs exactly while the
// engine is out of StateDisabled.
func (e *Engine) syncCapture(ctx context.Context) {
	want := e.machine.State() != StateDisabled
	switch {
	case want && e.capture == nil:
		e.startCapture(ctx)
	case !want && e.capture != nil:
		e.stopCapture()
	}
}

func (e *Engine) startCapture(ctx context.Context) {
	sess, err := e.providers.Source.Start(ctx, audio.Config{Device: e.settings.Microphone})
	if err != nil {
		e.machine.SetDeviceReady(false)
		e.reportError(ctx, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err), "device-unavailable")
		if e.machine.Disarm() {
			e.armed.Store(false)
			e.emitState()
		}
		return
	}
	e.machine.SetDeviceReady(true)
	e.capture = sess
	e.captureGen++
	gen := e.captureGen
	go e.pumpCapture(gen, sess)
}

func (e *Engine) stopCapture() {
	if e.capture != nil {
		_ = e.capture.Close()
		e.capture = nil
	}
}

// pumpCapture publishes capture frames into the fan-out until the session
// ends, then surfaces its terminal error, if any.
func (e *Engine) pumpCapture(gen int, sess audio.Session) {
	for f := range sess.Frames() {
		e.frames.Publish(f)
	}
	if err := sess.Err(); err != nil {
		e.send(cmdCaptureErr{gen: gen, err: err})
	}
}

func (e *Engine) handleCaptureErr(ctx context.Context, c cmdCaptureErr) {
	if c.gen != e.captureGen {
		return
	}
	e.capture = nil
	e.machine.SetDeviceReady(false)
	e.reportError(ctx, fmt.Errorf("%w: %v", ErrDeviceUnavailable, c.err), "device-unavailable")
	switch e.machine.State() {
	case StateListening, StateFinalizing:
		e.beginCancel(ctx)
	case StateIdle:
		e.machine.Disarm()
		e.armed.Store(false)
		e.emitState()
	}
}

// --- Event emission ---

// emitState publishes the current state, plus the tray indicator when it
// changed.
func (e *Engine) emitState() {
	st := e.machine.State()
	e.bus.Publish(overlay.Event{Kind: overlay.EventStateChanged, State: string(st)})
	if tray := e.machine.Tray(); tray != e.lastTray {
		e.lastTray = tray
		e.bus.Publish(overlay.Event{Kind: overlay.EventTrayChanged, Tray: tray})
	}
	e.log.Info("engine state", "state", st)
}

func (e *Engine) reportError(ctx context.Context, err error, kind string) {
	e.log.Warn("engine error", "kind", kind, "error", err)
	e.metrics.RecordEngineError(ctx, kind)
	e.bus.Publish(overlay.Event{Kind: overlay.EventEngineError, Error: err.Error()})
}

// flushDroppedFrames records fan-out drops accumulated since the last flush.
func (e *Engine) flushDroppedFrames(ctx context.Context) {
	total := e.frames.Dropped()
	if d := total - e.lastDropped; d > 0 {
		e.metrics.DroppedFrames.Add(ctx, int64(d))
		e.lastDropped = total
	}
}

// workerSend hands an op to the injection worker. Ops carry session
// bookkeeping the cancel path depends on, so this blocks (bounded by the
// worker draining OS calls) rather than dropping.
func (e *Engine) workerSend(ctx context.Context, op injectOp) {
	select {
	case e.worker.ops <- op:
	case <-ctx.Done():
	}
}
