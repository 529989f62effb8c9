package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	injectmock "github.com/sotto-app/sotto/pkg/provider/inject/mock"
)

func newTestWorker(inj *injectmock.Injector) *injectionWorker {
	return newInjectionWorker(inj, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// drain empties the report channel and returns everything buffered.
func drain(w *injectionWorker) []injectReport {
	var out []injectReport
	for {
		select {
		case r := <-w.reports:
			out = append(out, r)
		default:
			return out
		}
	}
}

func TestWorker_AppliesAndCounts(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "hello "})
	w.handle(opDelta{id: 1, text: "world"})

	if got := inj.Buffer(); got != "hello world" {
		t.Errorf("buffer = %q, want %q", got, "hello world")
	}
	if w.applied != 11 {
		t.Errorf("applied = %d, want 11", w.applied)
	}

	reports := drain(w)
	if len(reports) != 2 || reports[0].kind != reportApplied || reports[0].chars != 6 {
		t.Errorf("unexpected reports: %+v", reports)
	}
}

func TestWorker_PartialApplyCountsActual(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{ShortApplyBy: 2}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "hello"})

	// Only what actually landed is counted.
	if w.applied != 3 {
		t.Errorf("applied = %d, want 3", w.applied)
	}
}

func TestWorker_StaleDeltaIgnored(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 2})
	w.handle(opDelta{id: 1, text: "late text"})

	if got := inj.Buffer(); got != "" {
		t.Errorf("buffer = %q, want empty", got)
	}
}

func TestWorker_SecureSessionNeverApplies(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1, secure: true})
	w.handle(opDelta{id: 1, text: "hunter2"})
	w.handle(opCommit{id: 1})
	w.handle(opUndo{})

	if got := inj.Buffer(); got != "" {
		t.Errorf("buffer = %q, want empty", got)
	}
	reports := drain(w)
	// Commit reports zero chars; undo finds no record.
	if len(reports) != 2 ||
		reports[0].kind != reportCommitted || reports[0].chars != 0 ||
		reports[1].kind != reportUndoUnavailable {
		t.Errorf("unexpected reports: %+v", reports)
	}
}

func TestWorker_CancelDeletesExactlyApplied(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "hello "})
	w.handle(opDelta{id: 1, text: "world"})
	w.handle(opCancel{id: 1})

	if got := inj.Buffer(); got != "" {
		t.Errorf("buffer = %q, want empty", got)
	}
	if n := len(inj.DeleteCalls); n != 1 || inj.DeleteCalls[0].Count != 11 {
		t.Errorf("DeleteCalls = %+v, want one call with count 11", inj.DeleteCalls)
	}
}

func TestWorker_CancelAfterCommitDeletesNothing(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "kept"})
	w.handle(opCommit{id: 1})
	w.handle(opCancel{id: 1})

	if got := inj.Buffer(); got != "kept" {
		t.Errorf("buffer = %q, want %q", got, "kept")
	}
}

func TestWorker_UndoConsumesRecordOnce(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "hello world"})
	w.handle(opCommit{id: 1})
	drain(w)

	w.handle(opUndo{})
	if got := inj.Buffer(); got != "" {
		t.Errorf("buffer after undo = %q, want empty", got)
	}
	reports := drain(w)
	if len(reports) != 1 || reports[0].kind != reportUndone || reports[0].chars != 11 {
		t.Errorf("unexpected reports: %+v", reports)
	}

	w.handle(opUndo{})
	reports = drain(w)
	if len(reports) != 1 || reports[0].kind != reportUndoUnavailable {
		t.Errorf("second undo reports = %+v, want undo-unavailable", reports)
	}
}

func TestWorker_NewCommitReplacesRecord(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "one"})
	w.handle(opCommit{id: 1})
	w.handle(opBegin{id: 2})
	w.handle(opDelta{id: 2, text: "twotwo"})
	w.handle(opCommit{id: 2})
	drain(w)

	w.handle(opUndo{})
	// Only the most recent session's characters are removed.
	if got := inj.Buffer(); got != "one" {
		t.Errorf("buffer after undo = %q, want %q", got, "one")
	}
}

func TestWorker_CancelledSessionLeavesPreviousRecord(t *testing.T) {
	t.Parallel()
	inj := &injectmock.Injector{}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "keepme"})
	w.handle(opCommit{id: 1})
	w.handle(opBegin{id: 2})
	w.handle(opDelta{id: 2, text: "scrap"})
	w.handle(opCancel{id: 2})
	drain(w)

	w.handle(opUndo{})
	if got := inj.Buffer(); got != "" {
		t.Errorf("buffer = %q, want empty (undo should target session 1)", got)
	}
	reports := drain(w)
	if len(reports) != 1 || reports[0].kind != reportUndone || reports[0].sessionID != 1 {
		t.Errorf("unexpected reports: %+v", reports)
	}
}

func TestWorker_ApplyFailureReported(t *testing.T) {
	t.Parallel()
	applyErr := errors.New("no focus")
	inj := &injectmock.Injector{ApplyErr: applyErr}
	w := newTestWorker(inj)

	w.handle(opBegin{id: 1})
	w.handle(opDelta{id: 1, text: "text"})

	reports := drain(w)
	if len(reports) != 1 || reports[0].kind != reportFailed || !errors.Is(reports[0].err, applyErr) {
		t.Errorf("unexpected reports: %+v", reports)
	}
}
