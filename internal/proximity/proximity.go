// Package proximity decides from face size whether the viewer is too close.
package proximity

import "github.com/GriffinCanCode/eyeguard/internal/detector"

// DefaultThreshold is the largest-face to frame area ratio above which the
// viewer counts as near.
const DefaultThreshold = 0.6

// Verdict is the per-frame proximity decision.
type Verdict int

const (
	Far Verdict = iota
	Near
)

func (v Verdict) String() string {
	if v == Near {
		return "near"
	}
	return "far"
}

// Largest returns the face with the greatest area. Ties keep the earlier face.
func Largest(faces []detector.Box) (detector.Box, bool) {
	if len(faces) == 0 {
		return detector.Box{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best, true
}

// Ratio is the largest face area over the frame area. It is 0 with no faces
// or a degenerate frame.
func Ratio(faces []detector.Box, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	f, ok := Largest(faces)
	if !ok {
		return 0
	}
	return f.Area() / (float64(width) * float64(height))
}

// Evaluate is Near only when the ratio strictly exceeds threshold. Each call
// depends on its inputs alone.
func Evaluate(faces []detector.Box, width, height int, threshold float64) Verdict {
	if Ratio(faces, width, height) > threshold {
		return Near
	}
	return Far
}

// Evaluator binds a threshold.
type Evaluator struct {
	Threshold float64
}

// NewEvaluator falls back to DefaultThreshold when threshold is not positive.
func NewEvaluator(threshold float64) Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Evaluator{Threshold: threshold}
}

func (e Evaluator) Evaluate(faces []detector.Box, width, height int) Verdict {
	return Evaluate(faces, width, height, e.Threshold)
}
