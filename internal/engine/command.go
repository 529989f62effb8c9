package engine

import (
	"github.com/sotto-app/sotto/internal/permissions"
	"github.com/sotto-app/sotto/pkg/provider/wake"
)

// command is a message into the coordinator loop. Everything that can change
// engine state arrives as a command so the loop stays the single writer.
type command interface{ isCommand() }

// cmdWake reports a wake phrase detection.
type cmdWake struct{ ev wake.Event }

// cmdTrigger opens a session by push-to-talk, same gating as a wake event.
type cmdTrigger struct{}

// cmdCancel discards the live session and rolls back its injected text.
type cmdCancel struct{}

// cmdUndo removes the most recent completed session's injected text.
type cmdUndo struct{}

// cmdSetEnabled flips the user-facing enable switch.
type cmdSetEnabled struct{ enabled bool }

// cmdApplySettings replaces the live settings.
type cmdApplySettings struct{ settings Settings }

// cmdPermissions carries a fresh permission check result.
type cmdPermissions struct{ status permissions.Status }

// cmdGraceTimeout fires when the finalize grace period elapses.
type cmdGraceTimeout struct{ sessionID uint64 }

// cmdCaptureErr reports that a capture session ended with an error. gen
// identifies the capture generation so errors from a superseded capture are
// ignored.
type cmdCaptureErr struct {
	gen int
	err error
}

func (cmdWake) isCommand()          {}
func (cmdTrigger) isCommand()       {}
func (cmdCancel) isCommand()        {}
func (cmdUndo) isCommand()          {}
func (cmdSetEnabled) isCommand()    {}
func (cmdApplySettings) isCommand() {}
func (cmdPermissions) isCommand()   {}
func (cmdGraceTimeout) isCommand()  {}
func (cmdCaptureErr) isCommand()    {}
