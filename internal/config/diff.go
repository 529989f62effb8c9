package config

import "reflect"

// ConfigDiff describes what changed between two configs. Dictation settings
// and the log level can be hot-reloaded; everything else needs a restart.
type ConfigDiff struct {
	// DictationChanged is true when any dictation setting changed. The new
	// settings are applied to the running engine.
	DictationChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is true when providers, the overlay bridge, or the
	// hotkey bindings changed. These are wired at startup and cannot be
	// swapped live.
	RestartRequired bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.DictationChanged || d.LogLevelChanged || d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if old.Dictation != new.Dictation {
		d.DictationChanged = true
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) ||
		old.Overlay != new.Overlay ||
		!reflect.DeepEqual(old.Hotkeys, new.Hotkeys) {
		d.RestartRequired = true
	}

	return d
}
