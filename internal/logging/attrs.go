package logging

import (
	"log/slog"
	"time"
)

// Attr is the attribute type accepted by every helper in this package.
type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error renders a nil error as "<nil>" so the key is never silently dropped.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Domain fields.

func Artifact(path string) Attr { return slog.String(FieldArtifact, path) }

func Signature(path string) Attr { return slog.String(FieldSignature, path) }

func Feed(name string) Attr { return slog.String(FieldFeed, name) }

func Episode(id string) Attr { return slog.String(FieldEpisodeID, id) }

func Source(source string) Attr { return slog.String(FieldSource, source) }

func Status(status string) Attr { return slog.String(FieldStatus, status) }

func Impact(text string) Attr { return slog.String(FieldImpact, text) }

func Hint(text string) Attr { return slog.String(FieldErrorHint, text) }

func Alert(value string) Attr { return slog.String(FieldAlert, value) }

// Args converts attrs for the variadic slog.Logger methods.
func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// HasAttrKey returns true if any attribute in attrs has the given key.
func HasAttrKey(attrs []Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

func withDefault(attrs []Attr, key, value string) []Attr {
	if HasAttrKey(attrs, key) {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Missing fields get podsig defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, "rerun with logging.level = \"debug\" for details")
	attrs = withDefault(attrs, FieldImpact, "the run finished with unresolved items")
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs a run-level failure with event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, "run podsig doctor")
	logger.Error(msg, Args(attrs...)...)
}
