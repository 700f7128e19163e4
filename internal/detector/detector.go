// Package detector finds faces in camera frames.
package detector

import (
	"context"
	"fmt"
	"strings"
)

// Box is a face bounding box in frame pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width*Height, or 0 for degenerate boxes.
func (b Box) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Result is the outcome of one detection. Exactly one of Faces or Err is
// meaningful; an empty Faces with nil Err means no face was found.
type Result struct {
	Faces []Box
	Err   error
}

// Image is the detector's view of a frame.
type Image struct {
	Data     []byte // JPEG
	Width    int
	Height   int
	Rotation int
}

// Detector runs detections asynchronously. Each call yields exactly one
// Result on the returned channel.
type Detector interface {
	Detect(ctx context.Context, img Image) <-chan Result
	Close() error
}

// Readier is implemented by detectors backed by a service that may still be
// starting.
type Readier interface {
	WaitReady(ctx context.Context) error
}

// Func adapts a synchronous function to Detector.
type Func func(ctx context.Context, img Image) ([]Box, error)

func (fn Func) Detect(ctx context.Context, img Image) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		faces, err := fn(ctx, img)
		out <- Result{Faces: faces, Err: err}
	}()
	return out
}

func (fn Func) Close() error { return nil }

// Mode trades latency for accuracy.
type Mode int

const (
	ModeFast Mode = iota
	ModeAccurate
)

func (m Mode) String() string {
	switch m {
	case ModeFast:
		return "fast"
	case ModeAccurate:
		return "accurate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "fast" or "accurate".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return ModeFast, nil
	case "accurate":
		return ModeAccurate, nil
	default:
		return ModeFast, fmt.Errorf("unknown performance mode %q", s)
	}
}

// DefaultMinFaceSize is the smallest reported face as a fraction of frame area.
const DefaultMinFaceSize = 0.15

// Options configure a detection pass. Landmarks, contours and classification
// are extra work the proximity check never reads.
type Options struct {
	Mode           Mode
	Landmarks      bool
	Contours       bool
	Classification bool
	// MinFaceSize drops faces smaller than this fraction of the frame area.
	MinFaceSize float64
}

// FastOptions is the minimum-latency configuration.
func FastOptions() Options {
	return Options{Mode: ModeFast, MinFaceSize: DefaultMinFaceSize}
}

// keep filters faces below the minimum size for a w×h frame.
func (o Options) keep(faces []Box, w, h int) []Box {
	if o.MinFaceSize <= 0 || w <= 0 || h <= 0 {
		return faces
	}
	frame := float64(w) * float64(h)
	kept := faces[:0]
	for _, f := range faces {
		if f.Area()/frame >= o.MinFaceSize {
			kept = append(kept, f)
		}
	}
	return kept
}
