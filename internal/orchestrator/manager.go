package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/GriffinCanCode/eyeguard/internal/camera"
	"github.com/GriffinCanCode/eyeguard/internal/detector"
	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/looper"
	"github.com/GriffinCanCode/eyeguard/internal/notify"
	"github.com/GriffinCanCode/eyeguard/internal/overlay"
	"github.com/GriffinCanCode/eyeguard/internal/proximity"
	"github.com/GriffinCanCode/eyeguard/internal/resilience"
	"github.com/GriffinCanCode/eyeguard/internal/trace"
)

// State is the monitoring lifecycle.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Opener      camera.Opener
	NewDetector func() (detector.Detector, error)
	Surface     overlay.Surface
	Notices     notify.Sink
	Threshold   float64
	Session     camera.SessionOptions
}

// Manager runs the start/stop state machine. Lifecycle state, the overlay
// controller and every per-run resource live on the surface looper; public
// methods hop onto it with Call.
type Manager struct {
	deps    Deps
	main    *looper.Looper
	eval    proximity.Evaluator
	notices notify.Sink

	// confined to main
	state       State
	gen         uint64
	created     bool
	overlay     *overlay.Controller
	det         detector.Detector
	analysis    *looper.Looper
	provider    *camera.Provider
	session     *camera.Session
	cancel      context.CancelFunc
	stats       *pipelineStats
	verdicts    uint64
	lastVerdict proximity.Verdict
	lastErr     string
	startedAt   time.Time
}

// New creates a stopped manager.
func New(deps Deps) *Manager {
	notices := deps.Notices
	if notices == nil {
		notices = notify.LogSink{}
	}
	return &Manager{
		deps:    deps,
		main:    looper.New(SurfaceLooperName),
		eval:    proximity.NewEvaluator(deps.Threshold),
		notices: notices,
		overlay: overlay.NewController(deps.Surface, notices),
		stats:   &pipelineStats{},
	}
}

// Start begins monitoring. It returns once the detector is created and
// camera acquisition is under way; acquisition and binding finish
// asynchronously and report failures through the notice sink. Calling Start
// while Starting or Running does nothing.
func (m *Manager) Start(ctx context.Context) error {
	var err error
	if !m.main.Call(func() { err = m.start(ctx) }) {
		return apperrors.New(apperrors.Unavailable, "manager closed")
	}
	return err
}

func (m *Manager) start(ctx context.Context) error {
	if m.state == Starting || m.state == Running {
		return nil
	}
	log := trace.Logger(ctx)

	det, err := m.deps.NewDetector()
	if err != nil {
		err = apperrors.Wrap(err, apperrors.Unavailable, "create face detector")
		m.lastErr = err.Error()
		m.notices.Notify(notify.New(notify.DetectorUnavailable, "Face detection could not start", err))
		return err
	}

	m.gen++
	m.state = Starting
	m.det = det
	m.analysis = looper.New(AnalysisLooperName)
	m.stats = &pipelineStats{}
	m.lastErr = ""

	base := context.WithoutCancel(ctx)
	actx, cancelAcquire := context.WithTimeout(base, AcquireTimeout)
	rctx, cancelReady := context.WithTimeout(base, AcquireTimeout)
	m.cancel = func() {
		cancelAcquire()
		cancelReady()
	}
	gen := m.gen
	open := m.deps.Opener

	// readiness only warns, so it never holds up the camera
	if r, ok := det.(detector.Readier); ok {
		go func() {
			defer cancelReady()
			if err := r.WaitReady(rctx); err != nil {
				m.main.Post(func() { m.onDetectorNotReady(gen, err) })
			}
		}()
	} else {
		cancelReady()
	}
	go func() {
		defer cancelAcquire()
		acq := <-camera.Acquire(actx, open)
		m.main.Post(func() { m.onAcquired(gen, acq) })
	}()

	log.Info("monitoring starting", "generation", gen)
	return nil
}

// onDetectorNotReady only warns; the circuit breaker keeps per-frame calls
// cheap until the service comes up.
func (m *Manager) onDetectorNotReady(gen uint64, err error) {
	if gen != m.gen || m.state == Stopped {
		return
	}
	slog.Warn("face detector not ready", "generation", gen, "error", err)
	m.notices.Notify(notify.New(notify.DetectorUnavailable, "Face detection service is not responding", err))
}

// onAcquired is the acquisition continuation, run on the surface looper.
func (m *Manager) onAcquired(gen uint64, acq camera.Acquisition) {
	if gen != m.gen || m.state != Starting {
		if acq.Provider != nil {
			acq.Provider.UnbindAll()
		}
		return
	}
	if acq.Err != nil {
		slog.Error("camera acquisition failed", "generation", gen, "error", acq.Err)
		m.fail(notify.CameraUnavailable, "Failed to start camera", acq.Err)
		return
	}

	p := &pipeline{
		ctx:      trace.WithContext(context.Background(), trace.New()),
		gen:      gen,
		det:      m.det,
		analysis: m.analysis,
		eval:     m.eval,
		deliver:  m.deliver,
		stats:    m.stats,
	}
	opts := m.deps.Session
	opts.OnStreamError = func(err error) {
		m.main.Post(func() { m.onStreamLost(gen, err) })
	}

	m.provider = acq.Provider
	session, err := acq.Provider.Bind(context.Background(), camera.LensFront, camera.AlwaysActive{}, m.analysis, p, opts)
	if err != nil {
		slog.Error("camera bind failed", "generation", gen, "error", err)
		m.fail(notify.CameraBindFailed, "Failed to attach to camera", err)
		return
	}
	m.session = session
	m.state = Running
	m.startedAt = time.Now()
	slog.Info("monitoring running", "generation", gen, "session", session.ID,
		"device", acq.Provider.Device().String())
}

// deliver hands a verdict from the analysis looper to the surface looper.
func (m *Manager) deliver(gen uint64, v proximity.Verdict) {
	m.main.Post(func() { m.onVerdict(gen, v) })
}

// onVerdict drops results from a previous run or arriving after Stop, so a
// late detection can never bring the overlay back.
func (m *Manager) onVerdict(gen uint64, v proximity.Verdict) {
	if m.state != Running || gen != m.gen {
		return
	}
	m.verdicts++
	m.lastVerdict = v
	m.overlay.Apply(v)
}

func (m *Manager) onStreamLost(gen uint64, err error) {
	if m.state != Running || gen != m.gen {
		return
	}
	m.fail(notify.CameraStreamLost, "Camera stopped delivering frames", err)
}

// fail reports and tears down from Starting or Running.
func (m *Manager) fail(kind notify.Kind, msg string, err error) {
	m.notices.Notify(notify.New(kind, msg, err))
	m.stop()
	m.lastErr = err.Error()
}

// Stop ends monitoring and hides the overlay. It is idempotent and safe from
// any state. In-flight detections are not cancelled; their results are
// discarded.
func (m *Manager) Stop() {
	if !m.main.Call(m.stop) {
		slog.Debug("stop after close ignored")
	}
}

func (m *Manager) stop() {
	if m.state == Stopped {
		m.overlay.ForceIdle()
		return
	}
	m.state = Stopping
	m.gen++

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.provider != nil {
		m.provider.UnbindAll()
		m.provider = nil
	}
	m.session = nil
	if m.analysis != nil {
		m.analysis.Quit()
		m.analysis = nil
	}
	if m.det != nil {
		if err := m.det.Close(); err != nil {
			slog.Warn("closing face detector", "error", err)
		}
		m.det = nil
	}
	m.overlay.ForceIdle()
	m.state = Stopped
	slog.Info("monitoring stopped", "generation", m.gen)
}

// Close stops monitoring and shuts the surface looper down. The manager
// cannot be restarted afterwards.
func (m *Manager) Close() {
	m.Stop()
	m.main.Quit()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	s := Stopped
	m.main.Call(func() { s = m.state })
	return s
}

// OverlayState returns the overlay controller state.
func (m *Manager) OverlayState() overlay.State {
	s := overlay.Idle
	m.main.Call(func() { s = m.overlay.State() })
	return s
}

// Status is a point-in-time view for the control API.
type Status struct {
	State          string               `json:"state"`
	Generation     uint64               `json:"generation"`
	Overlay        overlay.Stats        `json:"overlay"`
	Camera         *camera.Stats        `json:"camera,omitempty"`
	Detector       *resilience.Snapshot `json:"detector,omitempty"`
	Verdicts       uint64               `json:"verdicts"`
	LastVerdict    string               `json:"last_verdict,omitempty"`
	LastRatio      float64              `json:"last_ratio"`
	Analyzed       uint64               `json:"analyzed"`
	Near           uint64               `json:"near"`
	DetectFailures uint64               `json:"detect_failures"`
	Threshold      float64              `json:"threshold"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`
	LastError      string               `json:"last_error,omitempty"`
}

// breakerReporter is implemented by detectors behind a circuit breaker.
type breakerReporter interface {
	BreakerSnapshot() resilience.Snapshot
}

// Status reports the current state. A closed manager reports "closed".
func (m *Manager) Status() Status {
	st := Status{State: "closed"}
	m.main.Call(func() {
		st = Status{
			State:          m.state.String(),
			Generation:     m.gen,
			Overlay:        m.overlay.Stats(),
			Verdicts:       m.verdicts,
			LastRatio:      math.Float64frombits(m.stats.lastRatio.Load()),
			Analyzed:       m.stats.analyzed.Load(),
			Near:           m.stats.near.Load(),
			DetectFailures: m.stats.detectFailures.Load(),
			Threshold:      m.eval.Threshold,
			LastError:      m.lastErr,
		}
		if m.verdicts > 0 {
			st.LastVerdict = m.lastVerdict.String()
		}
		if m.session != nil {
			cs := m.session.Stats()
			st.Camera = &cs
		}
		if r, ok := m.det.(breakerReporter); ok {
			bs := r.BreakerSnapshot()
			st.Detector = &bs
		}
		if m.state == Running {
			t := m.startedAt
			st.StartedAt = &t
		}
	})
	return st
}
