// Package orchestrator owns the monitoring lifecycle and wires camera,
// detector, evaluator and overlay together.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Looper names, as they appear in logs
	SurfaceLooperName  = "surface"
	AnalysisLooperName = "analysis"

	// Upper bound on detector readiness probing plus camera acquisition
	AcquireTimeout = 30 * time.Second
)
