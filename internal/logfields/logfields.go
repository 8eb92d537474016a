package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyTemplate   = "template"
	KeyPage       = "page"
	KeyPlugin     = "plugin"
	KeyHook       = "hook"
	KeyPriority   = "priority"
	KeyPath       = "path"
	KeyDurationMS = "duration_ms"
	KeyCount      = "count"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr { return slog.String(KeyStage, name) }
func Template(name string) slog.Attr { return slog.String(KeyTemplate, name) }
func Page(url string) slog.Attr { return slog.String(KeyPage, url) }
func Plugin(name string) slog.Attr { return slog.String(KeyPlugin, name) }
func Hook(name string) slog.Attr { return slog.String(KeyHook, name) }
func Priority(p int) slog.Attr { return slog.Int(KeyPriority, p) }
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
