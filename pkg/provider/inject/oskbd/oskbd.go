// Package oskbd implements inject.Injector with synthetic OS keystrokes,
// shelling out to the platform's scripting tool: osascript on macOS and
// xdotool on X11/XWayland. Running the typing tool out of process keeps the
// engine free of accessibility CGO and makes a missing tool an ordinary
// error instead of a link failure.
package oskbd

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Injector types and deletes text via the platform scripting tool.
type Injector struct {
	goos string
}

// New returns an Injector for the current platform.
func New() *Injector {
	return &Injector{goos: runtime.GOOS}
}

// Apply types delta into the focused control. Returns the rune count of
// delta on success, 0 with inject.ErrNoFocusedTarget semantics left to the
// tool's exit status.
func (i *Injector) Apply(delta string) (int, error) {
	if delta == "" {
		return 0, nil
	}
	var err error
	switch i.goos {
	case "darwin":
		script := fmt.Sprintf("tell application %q to keystroke %q", "System Events", delta)
		err = exec.Command("osascript", "-e", script).Run()
	default:
		err = exec.Command("xdotool", "type", "--delay", "0", "--", delta).Run()
	}
	if err != nil {
		return 0, fmt.Errorf("oskbd: type text: %w", err)
	}
	return utf8.RuneCountInString(delta), nil
}

// DeleteLast presses backspace count times.
func (i *Injector) DeleteLast(count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	var err error
	switch i.goos {
	case "darwin":
		script := fmt.Sprintf(
			"tell application %q to repeat %d times\nkey code 51\nend repeat", "System Events", count)
		err = exec.Command("osascript", "-e", script).Run()
	default:
		err = exec.Command("xdotool", "key", "--delay", "0", "--repeat", strconv.Itoa(count), "BackSpace").Run()
	}
	if err != nil {
		return 0, fmt.Errorf("oskbd: delete %d chars: %w", count, err)
	}
	return count, nil
}

// FocusedFieldSecure reports whether the OS has secure keyboard entry
// enabled. On macOS this is visible in the IORegistry while a password
// field holds focus; other platforms expose no equivalent signal and
// report false.
func (i *Injector) FocusedFieldSecure() bool {
	if i.goos != "darwin" {
		return false
	}
	out, err := exec.Command("ioreg", "-l", "-w", "0").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "kCGSSessionSecureInputPID")
}
