package engine

import (
	"context"
	"log/slog"

	"github.com/sotto-app/sotto/pkg/provider/inject"
)

// injectOp is a message to the injection worker. Ops are sent by the
// coordinator loop only, so they arrive in session order.
type injectOp interface{ isInjectOp() }

// opBegin opens injection bookkeeping for a session.
type opBegin struct {
	id     uint64
	secure bool
}

// opDelta applies a text delta for the live session.
type opDelta struct {
	id   uint64
	text string
}

// opCommit completes the live session, retaining its undo record.
type opCommit struct{ id uint64 }

// opCancel rolls back everything applied for the live session.
type opCancel struct{ id uint64 }

// opUndo removes the retained record's characters.
type opUndo struct{}

func (opBegin) isInjectOp()  {}
func (opDelta) isInjectOp()  {}
func (opCommit) isInjectOp() {}
func (opCancel) isInjectOp() {}
func (opUndo) isInjectOp()   {}

// reportKind discriminates injectReport values.
type reportKind int

const (
	// reportApplied: a delta was applied; chars is the count actually typed.
	reportApplied reportKind = iota

	// reportCommitted: the session's injection is done; chars is the total.
	reportCommitted

	// reportRolledBack: a cancel finished; chars is the count deleted.
	reportRolledBack

	// reportUndone: an undo finished; chars is the count deleted.
	reportUndone

	// reportUndoUnavailable: undo was requested with no eligible record.
	reportUndoUnavailable

	// reportFailed: an apply failed; the session continues overlay-only.
	reportFailed
)

// injectReport mirrors the worker's bookkeeping back to the coordinator.
type injectReport struct {
	kind      reportKind
	sessionID uint64
	chars     int
	err       error
}

// injectionRecord is the single retained undo target: the most recent
// completed session's actually-applied character count. Consumed exactly
// once by undo and replaced by each newer completed injection.
type injectionRecord struct {
	sessionID uint64
	chars     int
	valid     bool
}

// injectionWorker owns the [inject.Injector] and all keystroke arithmetic.
// Injection calls block on the OS event queue, so they run here instead of
// the coordinator loop; applied counts flow back as reports so the
// coordinator's session bookkeeping matches what actually landed in the
// focused control.
type injectionWorker struct {
	injector inject.Injector
	log      *slog.Logger

	ops     chan injectOp
	reports chan injectReport

	activeID     uint64
	activeSecure bool
	applied      int
	retained     injectionRecord
}

func newInjectionWorker(injector inject.Injector, log *slog.Logger) *injectionWorker {
	return &injectionWorker{
		injector: injector,
		log:      log,
		ops:      make(chan injectOp, 128),
		reports:  make(chan injectReport, 128),
	}
}

// run processes ops until ctx is done.
func (w *injectionWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-w.ops:
			w.handle(op)
		}
	}
}

func (w *injectionWorker) handle(op injectOp) {
	switch op := op.(type) {
	case opBegin:
		w.activeID = op.id
		w.activeSecure = op.secure
		w.applied = 0

	case opDelta:
		if op.id != w.activeID || w.activeSecure || op.text == "" {
			return
		}
		n, err := w.injector.Apply(op.text)
		w.applied += n
		if err != nil {
			w.log.Warn("text apply failed", "session", op.id, "error", err)
			w.report(injectReport{kind: reportFailed, sessionID: op.id, chars: n, err: err})
			return
		}
		if n > 0 {
			w.report(injectReport{kind: reportApplied, sessionID: op.id, chars: n})
		}

	case opCommit:
		if op.id != w.activeID {
			return
		}
		if !w.activeSecure && w.applied > 0 {
			w.retained = injectionRecord{sessionID: op.id, chars: w.applied, valid: true}
		}
		w.report(injectReport{kind: reportCommitted, sessionID: op.id, chars: w.applied})
		w.clearActive()

	case opCancel:
		if op.id != w.activeID {
			w.report(injectReport{kind: reportRolledBack, sessionID: op.id})
			return
		}
		var deleted int
		var err error
		if !w.activeSecure && w.applied > 0 {
			deleted, err = w.injector.DeleteLast(w.applied)
		}
		w.report(injectReport{kind: reportRolledBack, sessionID: op.id, chars: deleted, err: err})
		w.clearActive()

	case opUndo:
		if !w.retained.valid {
			w.report(injectReport{kind: reportUndoUnavailable})
			return
		}
		rec := w.retained
		// Consumed even when the delete fails: a half-removed injection is
		// not eligible for a second undo.
		w.retained.valid = false
		deleted, err := w.injector.DeleteLast(rec.chars)
		w.report(injectReport{kind: reportUndone, sessionID: rec.sessionID, chars: deleted, err: err})
	}
}

func (w *injectionWorker) clearActive() {
	w.activeID = 0
	w.activeSecure = false
	w.applied = 0
}

// report never blocks; a full report channel means the coordinator loop is
// gone, and bookkeeping mirrors are best-effort at that point.
func (w *injectionWorker) report(r injectReport) {
	select {
	case w.reports <- r:
	default:
		w.log.Warn("injection report dropped", "session", r.sessionID)
	}
}
