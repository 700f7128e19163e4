package camera

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/eyeguard/internal/syncx"
	"github.com/google/uuid"
)

// Lifecycle gates frame delivery. Frames arriving while inactive are
// released without analysis.
type Lifecycle interface {
	Active() bool
}

// AlwaysActive is a compatibility shim for Bind's lifecycle parameter. The
// monitoring service has no UI lifecycle of its own, so its session is
// permanently active. It is not a general lifecycle abstraction.
type AlwaysActive struct{}

func (AlwaysActive) Active() bool { return true }

// Analyzer receives each delivered frame on the executor and must Release it.
type Analyzer interface {
	Analyze(f *Frame)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(f *Frame)

func (fn AnalyzerFunc) Analyze(f *Frame) { fn(f) }

// Executor runs analyzer calls. looper.Looper satisfies it.
type Executor interface {
	Post(fn func()) bool
}

// SessionOptions tune a bound session.
type SessionOptions struct {
	Rotation int
	// FreezeCheckEvery samples every Nth frame for freeze detection. 0 disables.
	FreezeCheckEvery int
	// OnStreamError is called once if the device stream ends unexpectedly.
	OnStreamError func(error)
}

// Stats is a snapshot of session counters.
type Stats struct {
	SessionID   string    `json:"session_id"`
	Device      string    `json:"device"`
	Produced    uint64    `json:"produced"`
	Delivered   uint64    `json:"delivered"`
	Dropped     uint64    `json:"dropped"`
	Released    uint64    `json:"released"`
	Corrupt     uint64    `json:"corrupt"`
	LastSeq     uint64    `json:"last_seq"`
	LastFrameAt time.Time `json:"last_frame_at,omitempty"`
	Frozen      bool      `json:"frozen"`
	StreamError string    `json:"stream_error,omitempty"`
}

// Session is one binding of a device stream to an analyzer. A producer
// goroutine reads frames into the keep-latest slot and a dispatcher goroutine
// hands them to the executor one at a time.
type Session struct {
	ID string

	device    Device
	stream    Stream
	exec      Executor
	analyzer  Analyzer
	lifecycle Lifecycle
	opts      SessionOptions

	slot   *slot
	freeze *FreezeWatch

	seq       atomic.Uint64
	produced  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	released  atomic.Uint64
	corrupt   atomic.Uint64

	lastFrameAt *syncx.Value[time.Time]
	streamErr   *syncx.Value[error]

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newSession(d Device, st Stream, exec Executor, a Analyzer, lc Lifecycle, opts SessionOptions) *Session {
	return &Session{
		ID:          uuid.NewString(),
		device:      d,
		stream:      st,
		exec:        exec,
		analyzer:    a,
		lifecycle:   lc,
		opts:        opts,
		slot:        newSlot(),
		freeze:      NewFreezeWatch(opts.FreezeCheckEvery),
		lastFrameAt: syncx.NewValue(time.Time{}),
		streamErr:   syncx.NewValue[error](nil),
	}
}

func (s *Session) start(ctx context.Context, cancel context.CancelFunc) {
	s.cancel = cancel
	s.wg.Add(2)
	go s.produce(ctx)
	go s.dispatch()
	slog.Info("camera session bound", "session", s.ID, "device", s.device.String())
}

func (s *Session) produce(ctx context.Context) {
	defer s.wg.Done()
	for {
		data, err := s.stream.ReadFrame(getBuffer())
		if err != nil {
			putBuffer(data)
			if ctx.Err() == nil {
				s.fail(err)
			}
			return
		}

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			s.corrupt.Add(1)
			putBuffer(data)
			continue
		}

		now := time.Now()
		seq := s.seq.Add(1)
		f := &Frame{
			Data:      data,
			Width:     cfg.Width,
			Height:    cfg.Height,
			Rotation:  s.opts.Rotation,
			Seq:       seq,
			Timestamp: now,
			release:   s.releaseFrame,
		}
		s.lastFrameAt.Store(now)
		s.freeze.Observe(seq, data)

		if old := s.slot.offer(f); old != nil {
			s.dropped.Add(1)
			old.Release()
		}
		s.produced.Add(1)
	}
}

func (s *Session) dispatch() {
	defer s.wg.Done()
	for {
		f := s.slot.take()
		if f == nil {
			return
		}
		if !s.lifecycle.Active() {
			f.Release()
			continue
		}
		s.delivered.Add(1)
		if !s.exec.Post(func() { s.analyzer.Analyze(f) }) {
			f.Release()
		}
	}
}

func (s *Session) releaseFrame(f *Frame) {
	s.slot.finish(f)
	s.released.Add(1)
	data := f.Data
	f.Data = nil
	putBuffer(data)
}

func (s *Session) fail(err error) {
	if !s.streamErr.CompareAndSwap(func(e error) bool { return e == nil }, err) {
		return
	}
	slog.Warn("camera stream ended", "session", s.ID, "device", s.device.String(), "error", err)
	if s.opts.OnStreamError != nil {
		s.opts.OnStreamError(err)
	}
}

// Stop ends capture and waits for both goroutines. A frame already handed to
// the executor stays owned by the analyzer. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		_ = s.stream.Close()
		if p := s.slot.close(); p != nil {
			s.dropped.Add(1)
			p.Release()
		}
		s.wg.Wait()
		slog.Info("camera session unbound", "session", s.ID,
			"produced", s.produced.Load(), "dropped", s.dropped.Load())
	})
}

// Stats returns current counters.
func (s *Session) Stats() Stats {
	st := Stats{
		SessionID:   s.ID,
		Device:      s.device.String(),
		Produced:    s.produced.Load(),
		Delivered:   s.delivered.Load(),
		Dropped:     s.dropped.Load(),
		Released:    s.released.Load(),
		Corrupt:     s.corrupt.Load(),
		LastSeq:     s.seq.Load(),
		LastFrameAt: s.lastFrameAt.Load(),
		Frozen:      s.freeze.Frozen(),
	}
	if err := s.streamErr.Load(); err != nil {
		st.StreamError = err.Error()
	}
	return st
}
