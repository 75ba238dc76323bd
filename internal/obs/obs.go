// Package obs configures the process JSON logger and threads request
// correlation (request, trace, user, editor session, note) through contexts.
package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Correlation identifies the request a log line belongs to.
type Correlation struct {
	RequestID   string
	TraceID     string
	Traceparent string
	UserID      string
	SessionID   string
	NoteID      string
}

type correlationKey struct{}

// fields lists the log key of each correlation field in output order.
func (c *Correlation) fields() []struct {
	key string
	val *string
} {
	return []struct {
		key string
		val *string
	}{
		{"request_id", &c.RequestID},
		{"trace_id", &c.TraceID},
		{"traceparent", &c.Traceparent},
		{"user_id", &c.UserID},
		{"session_id", &c.SessionID},
		{"note_id", &c.NoteID},
	}
}

var (
	mu     sync.RWMutex
	root   *slog.Logger
	minLvl = new(slog.LevelVar)
)

// Init installs the JSON logger on stderr once. Later calls are no-ops.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		install(os.Stderr)
	}
}

// install must be called with mu held.
func install(w io.Writer) {
	root = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: minLvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}))
	slog.SetDefault(root)
}

// SetLevel changes the minimum level of every logger handed out by this
// package, including ones created before the call.
func SetLevel(l slog.Level) {
	minLvl.Set(l)
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetOutputForTests redirects logging to w and returns a restore func.
func SetOutputForTests(w io.Writer) func() {
	mu.Lock()
	prev := root
	install(w)
	mu.Unlock()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		if prev == nil {
			install(os.Stderr)
			return
		}
		root = prev
		slog.SetDefault(root)
	}
}

func current() *slog.Logger {
	Init()
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Pkg returns the logger for a package.
func Pkg(pkg string) *slog.Logger {
	return current().With("pkg", pkg)
}

// From returns the logger carrying the correlation fields of ctx.
func From(ctx context.Context) *slog.Logger {
	corr := CorrelationFromContext(ctx)
	var attrs []any
	for _, f := range corr.fields() {
		if *f.val != "" {
			attrs = append(attrs, f.key, *f.val)
		}
	}
	if len(attrs) == 0 {
		return current()
	}
	return current().With(attrs...)
}

// WithSessionID tags ctx with an editor session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	corr := CorrelationFromContext(ctx)
	corr.SessionID = strings.TrimSpace(sessionID)
	return context.WithValue(ctx, correlationKey{}, corr)
}

// WithNoteID tags ctx with a note id.
func WithNoteID(ctx context.Context, noteID string) context.Context {
	corr := CorrelationFromContext(ctx)
	corr.NoteID = strings.TrimSpace(noteID)
	return context.WithValue(ctx, correlationKey{}, corr)
}

// WithCorrelation overlays the non-empty fields of corr on those in ctx.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	merged := CorrelationFromContext(ctx)
	dst := merged.fields()
	for i, f := range corr.fields() {
		if *f.val != "" {
			*dst[i].val = *f.val
		}
	}
	return context.WithValue(ctx, correlationKey{}, merged)
}

// CorrelationFromContext returns the correlation stored in ctx, if any.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, _ := ctx.Value(correlationKey{}).(Correlation)
	return corr
}

func newRequestID() string {
	return "req-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
