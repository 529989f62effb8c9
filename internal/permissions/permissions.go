// Package permissions probes the OS permissions Sotto needs: microphone
// capture and accessibility (synthetic keystroke) access.
//
// Probes are best-effort and platform-specific. The engine never calls a
// prober directly; the shell checks on startup and on demand, and feeds the
// resulting [Status] to the engine, which arms or disarms accordingly.
package permissions

import (
	"context"
	"os/exec"
	"runtime"
	"time"
)

// Status reports which required permissions are currently granted.
type Status struct {
	// Microphone reports whether audio capture is permitted.
	Microphone bool `json:"microphone"`

	// Accessibility reports whether synthetic keystroke injection is
	// permitted.
	Accessibility bool `json:"accessibility"`
}

// AllGranted reports whether every required permission is granted.
func (s Status) AllGranted() bool {
	return s.Microphone && s.Accessibility
}

// Checker probes the current permission state.
type Checker interface {
	// Check returns the current permission status. A probe failure for one
	// permission reports that permission as denied rather than erroring the
	// whole check.
	Check(ctx context.Context) (Status, error)
}

// Prober is the production Checker. It shells out to platform tools, which
// keeps the binary free of platform CGO and makes a missing tool equivalent
// to a denied permission.
type Prober struct {
	goos string
}

// NewProber returns a Prober for the current platform.
func NewProber() *Prober {
	return &Prober{goos: runtime.GOOS}
}

// probeTimeout bounds each individual permission probe.
const probeTimeout = 3 * time.Second

// Check probes microphone and accessibility access.
func (p *Prober) Check(ctx context.Context) (Status, error) {
	return Status{
		Microphone:    p.checkMicrophone(ctx),
		Accessibility: p.checkAccessibility(ctx),
	}, nil
}

// checkMicrophone opens the default capture device for a fraction of a
// second. A permission denial or missing device makes ffmpeg exit non-zero.
func (p *Prober) checkMicrophone(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var args []string
	switch p.goos {
	case "darwin":
		args = []string{"-f", "avfoundation", "-i", ":0"}
	case "windows":
		args = []string{"-f", "dshow", "-i", "audio=default"}
	default:
		args = []string{"-f", "pulse", "-i", "default"}
	}
	args = append(args, "-t", "0.1", "-f", "null", "-")

	return exec.CommandContext(ctx, "ffmpeg", append([]string{"-hide_banner", "-loglevel", "error"}, args...)...).Run() == nil
}

// checkAccessibility verifies the keystroke tool can reach the session: an
// empty keystroke on macOS (fails without accessibility trust), a focused
// window query via xdotool elsewhere.
func (p *Prober) checkAccessibility(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	switch p.goos {
	case "darwin":
		script := `tell application "System Events" to keystroke ""`
		return exec.CommandContext(ctx, "osascript", "-e", script).Run() == nil
	default:
		return exec.CommandContext(ctx, "xdotool", "getactivewindow").Run() == nil
	}
}

var _ Checker = (*Prober)(nil)
