// Package notify delivers user-facing notices about pipeline failures.
package notify

import (
	"log/slog"
	"time"
)

// Kind classifies a notice.
type Kind string

const (
	CameraUnavailable   Kind = "camera_unavailable"
	CameraBindFailed    Kind = "camera_bind_failed"
	CameraStreamLost    Kind = "camera_stream_lost"
	DetectorUnavailable Kind = "detector_unavailable"
	OverlayCreateFailed Kind = "overlay_create_failed"
	OverlayRemoveFailed Kind = "overlay_remove_failed"
)

// Notice is one user-visible message.
type Notice struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// New builds a notice stamped with the current time.
func New(kind Kind, msg string, err error) Notice {
	n := Notice{Kind: kind, Message: msg, Time: time.Now()}
	if err != nil {
		n.Error = err.Error()
	}
	return n
}

// Sink receives notices. Implementations must not block.
type Sink interface {
	Notify(n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

func (f SinkFunc) Notify(n Notice) { f(n) }

// LogSink writes notices to slog.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(n Notice) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Warn(n.Message, "kind", n.Kind, "error", n.Error)
}

// Fanout sends each notice to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(n Notice) {
	for _, s := range f {
		if s != nil {
			s.Notify(n)
		}
	}
}
