// Package trace provides lightweight W3C-style trace context for eyeguard.
// Every analyzed frame gets its own span so detector calls and overlay
// decisions can be correlated in logs and on the detection service side.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// Metadata keys for gRPC/HTTP propagation.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context holds trace identifiers for a single span.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New creates a root trace context with fresh IDs.
func New() Context {
	return Context{TraceID: randomHex(16), SpanID: randomHex(8)}
}

// NewChild creates a child context from parent. A zero parent yields a root.
func NewChild(parent Context) Context {
	if parent.TraceID == "" {
		return New()
	}
	return Context{TraceID: parent.TraceID, SpanID: randomHex(8), ParentSpanID: parent.SpanID}
}

// FromContext extracts trace context from context.Context.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext injects trace context into context.Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns existing trace context or creates a new one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Span represents a timed operation within a trace. Spans may be ended on a
// different goroutine than the one that started them.
type Span struct {
	Name      string
	Ctx       Context
	StartTime time.Time

	mu      sync.Mutex
	endTime time.Time
	attrs   map[string]any
}

// StartSpan begins a new span as a child of any span already in ctx.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	tc := NewChild(parent)
	s := &Span{
		Name:      name,
		Ctx:       tc,
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
	return WithContext(ctx, tc), s
}

// End marks the span as complete. Later calls keep the first end time.
func (s *Span) End() {
	s.mu.Lock()
	if s.endTime.IsZero() {
		s.endTime = time.Now()
	}
	s.mu.Unlock()
}

// SetAttr sets a span attribute.
func (s *Span) SetAttr(key string, val any) {
	s.mu.Lock()
	s.attrs[key] = val
	s.mu.Unlock()
}

// Attr returns a span attribute.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Duration returns span duration, zero while the span is open.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTime.IsZero() {
		return 0
	}
	return s.endTime.Sub(s.StartTime)
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("span_name", s.Name),
		slog.String("trace_id", s.Ctx.TraceID),
		slog.String("span_id", s.Ctx.SpanID),
		slog.Duration("duration", s.Duration()),
	}
	if s.Ctx.ParentSpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", s.Ctx.ParentSpanID))
	}
	s.mu.Lock()
	for k, v := range s.attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.mu.Unlock()
	return slog.GroupValue(attrs...)
}

// Logger returns a slog.Logger with trace context.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := make([]any, 0, 6)
	args = append(args, "trace_id", tc.TraceID, "span_id", tc.SpanID)
	if tc.ParentSpanID != "" {
		args = append(args, "parent_span_id", tc.ParentSpanID)
	}
	return slog.Default().With(args...)
}
