package orchestrator

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/GriffinCanCode/eyeguard/internal/camera"
	"github.com/GriffinCanCode/eyeguard/internal/detector"
	"github.com/GriffinCanCode/eyeguard/internal/looper"
	"github.com/GriffinCanCode/eyeguard/internal/proximity"
	"github.com/GriffinCanCode/eyeguard/internal/trace"
)

// pipelineStats are written from the analysis looper and read by Status.
type pipelineStats struct {
	analyzed       atomic.Uint64
	near           atomic.Uint64
	detectFailures atomic.Uint64
	lastRatio      atomic.Uint64 // math.Float64bits
}

// pipeline is one running generation of the analysis path. Everything it
// touches is fixed at creation, so it never reads Manager fields.
type pipeline struct {
	ctx      context.Context
	gen      uint64
	det      detector.Detector
	analysis *looper.Looper
	eval     proximity.Evaluator
	deliver  func(gen uint64, v proximity.Verdict)
	stats    *pipelineStats

	failing atomic.Bool
}

// Analyze runs on the analysis looper. It hands the frame to the detector and
// returns at once; the frame stays in flight until complete releases it.
func (p *pipeline) Analyze(f *camera.Frame) {
	ctx, span := trace.StartSpan(p.ctx, "analyze_frame")
	span.SetAttr("seq", f.Seq)

	results := p.det.Detect(ctx, detector.Image{
		Data:     f.Data,
		Width:    f.Width,
		Height:   f.Height,
		Rotation: f.Rotation,
	})
	go func() {
		res := <-results
		if !p.analysis.Post(func() { p.complete(f, res, span) }) {
			// analysis looper already quit
			span.End()
			f.Release()
		}
	}()
}

// complete runs on the analysis looper once detection finishes.
func (p *pipeline) complete(f *camera.Frame, res detector.Result, span *trace.Span) {
	defer span.End()
	defer f.Release()

	if res.Err != nil {
		p.stats.detectFailures.Add(1)
		span.SetAttr("error", res.Err.Error())
		if !p.failing.Swap(true) {
			slog.Warn("face detection failing", "seq", f.Seq, "error", res.Err)
		} else {
			slog.Debug("face detection failed", "seq", f.Seq, "error", res.Err)
		}
		return
	}
	if p.failing.Swap(false) {
		slog.Info("face detection recovered", "seq", f.Seq)
	}

	ratio := proximity.Ratio(res.Faces, f.Width, f.Height)
	v := p.eval.Evaluate(res.Faces, f.Width, f.Height)
	p.stats.analyzed.Add(1)
	p.stats.lastRatio.Store(math.Float64bits(ratio))
	if v == proximity.Near {
		p.stats.near.Add(1)
	}
	span.SetAttr("faces", len(res.Faces))
	span.SetAttr("ratio", ratio)
	span.SetAttr("verdict", v.String())

	p.deliver(p.gen, v)
}
