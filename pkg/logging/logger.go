package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "requestID"

// LevelTrace is below debug; used for per-reference resolution chatter.
const LevelTrace = slog.LevelDebug - 4

var (
	mu     sync.RWMutex
	logger *slog.Logger
	out    io.Writer = os.Stderr
)

func init() {
	// Reports go to stdout, so logs default to stderr
	logger = slog.New(NewCompactHandler(out, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func set(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetOutput redirects log output, keeping the given level.
func SetOutput(w io.Writer, level slog.Level) {
	mu.Lock()
	out = w
	mu.Unlock()
	SetLevel(level)
}

// SetLevel changes the logging level
func SetLevel(level slog.Level) {
	mu.RLock()
	w := out
	mu.RUnlock()
	set(slog.New(NewCompactHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
}

// SetJSONOutput switches to JSON format output
func SetJSONOutput(level slog.Level) {
	mu.RLock()
	w := out
	mu.RUnlock()
	set(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
}

// ParseLevel maps the --verbosity name and the -v count to a level.
// An explicit name wins over the count.
func ParseLevel(name string, count int) slog.Level {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	switch {
	case count >= 2:
		return LevelTrace
	case count == 1:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New returns a logger tagged with component=name. It follows later
// SetLevel/SetJSONOutput calls, so packages may create it at init time.
func New(component string) *slog.Logger {
	return slog.New(&componentHandler{attrs: []slog.Attr{slog.String("component", component)}})
}

// componentHandler defers to whatever handler is installed when a record
// is handled.
type componentHandler struct {
	attrs []slog.Attr
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return current().Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetRequestID(ctx); id != "" {
		r.AddAttrs(slog.String("requestID", id))
	}
	return current().Handler().WithAttrs(h.attrs).Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &componentHandler{attrs: merged}
}

func (h *componentHandler) WithGroup(string) slog.Handler {
	return h
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// Helper function to add request ID to log attributes if present
func withRequestID(ctx context.Context, args []any) []any {
	requestID := GetRequestID(ctx)
	if requestID != "" {
		return append([]any{"requestID", requestID}, args...)
	}
	return args
}

// Trace logs at TRACE level (very verbose, debug-time only)
func Trace(msg string, args ...any) {
	current().Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, withRequestID(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// WarnContext logs at WARN level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	current().WarnContext(ctx, msg, withRequestID(ctx, args)...)
}

// Error logs at ERROR level (logical bugs that shouldn't happen)
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, withRequestID(ctx, args)...)
}

// Fatal logs at ERROR level and exits (unrecoverable bugs)
func Fatal(msg string, args ...any) {
	current().Error(msg, args...)
	os.Exit(1)
}
