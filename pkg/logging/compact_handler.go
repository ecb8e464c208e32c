package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// CompactHandler writes one line per record for a terminal:
//
//	[LEVEL] HH:MM:SS message | key=value key=value
//
// Level tags are colored when the output is a terminal.
type CompactHandler struct {
	opts   slog.HandlerOptions
	mu     *sync.Mutex
	out    io.Writer
	color  bool
	attrs  []slog.Attr // from WithAttrs, already group-qualified
	prefix string      // "group." prefix from WithGroup
}

type levelTag struct {
	text  string
	color *color.Color
}

var levelTags = map[slog.Level]levelTag{
	LevelTrace:      {"[TRACE] ", color.New(color.FgHiBlack)},
	slog.LevelDebug: {"[DEBUG] ", color.New(color.FgCyan)},
	slog.LevelInfo:  {"[INFO]  ", color.New(color.FgGreen)},
	slog.LevelWarn:  {"[WARN]  ", color.New(color.FgYellow)},
	slog.LevelError: {"[ERROR] ", color.New(color.FgRed, color.Bold)},
}

// NewCompactHandler creates a compact handler writing to w.
func NewCompactHandler(w io.Writer, opts *slog.HandlerOptions) *CompactHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &CompactHandler{
		opts:  *opts,
		mu:    &sync.Mutex{},
		out:   w,
		color: isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (h *CompactHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *CompactHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = h.appendLevel(buf, r.Level)

	if !r.Time.IsZero() {
		buf = r.Time.AppendFormat(buf, time.TimeOnly)
		buf = append(buf, ' ')
	}
	buf = append(buf, r.Message...)

	first := true
	emit := func(key string, v slog.Value) {
		if first {
			buf = append(buf, " |"...)
			first = false
		}
		buf = append(buf, ' ')
		buf = appendAttr(buf, key, v)
	}
	for _, a := range h.attrs {
		emitAttr(a.Key, a.Value, emit)
	}
	r.Attrs(func(a slog.Attr) bool {
		emitAttr(h.prefix+a.Key, a.Value, emit)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

func (h *CompactHandler) appendLevel(buf []byte, level slog.Level) []byte {
	tag, ok := levelTags[level]
	if !ok {
		return append(buf, "["+level.String()+"] "...)
	}
	if h.color {
		return append(buf, tag.color.Sprint(tag.text)...)
	}
	return append(buf, tag.text...)
}

// emitAttr resolves v and flattens groups into dotted keys.
func emitAttr(key string, v slog.Value, emit func(string, slog.Value)) {
	v = v.Resolve()
	if v.Kind() != slog.KindGroup {
		if key != "" || v.Any() != nil {
			emit(key, v)
		}
		return
	}
	for _, ga := range v.Group() {
		k := ga.Key
		if key != "" {
			k = key + "." + ga.Key
		}
		emitAttr(k, ga.Value, emit)
	}
}

func appendAttr(buf []byte, key string, v slog.Value) []byte {
	switch key {
	case "requestID":
		if s := v.String(); len(s) > 8 {
			return append(append(buf, "req="...), s[:8]...)
		}
	case "durationMs":
		buf = append(buf, "duration="...)
		return append(appendValue(buf, v), "ms"...)
	}

	buf = append(buf, key...)
	buf = append(buf, '=')
	return appendValue(buf, v)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendString(buf, v.String())
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	}
	if err, ok := v.Any().(error); ok {
		return strconv.AppendQuote(buf, err.Error())
	}
	return appendString(buf, v.String())
}

func appendString(buf []byte, s string) []byte {
	if needsQuoting(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '"', '=':
			return true
		}
	}
	return false
}

func (h *CompactHandler) clone() *CompactHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

func (h *CompactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *CompactHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix = h.prefix + name + "."
	return c
}
