package camera

import (
	"context"
	"sync"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
)

// Provider owns at most one bound session on its device.
type Provider struct {
	device Device

	mu      sync.Mutex
	session *Session
}

func NewProvider(d Device) *Provider {
	return &Provider{device: d}
}

// Device returns the underlying device.
func (p *Provider) Device() Device { return p.device }

// Bind opens the device and starts delivering frames to a on exec. Any
// previous session is unbound first. The session outlives ctx; it ends only
// through UnbindAll.
func (p *Provider) Bind(ctx context.Context, lens Lens, lc Lifecycle, exec Executor, a Analyzer, opts SessionOptions) (*Session, error) {
	p.UnbindAll()

	if lc == nil || exec == nil || a == nil {
		return nil, apperrors.New(apperrors.InvalidArgument, "bind requires lifecycle, executor and analyzer")
	}
	if lens != p.device.Lens() {
		return nil, apperrors.Newf(apperrors.CameraBindFailed, "no %s camera", lens).
			WithMetadata("device", p.device.String())
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := p.device.Open(sctx)
	if err != nil {
		cancel()
		return nil, apperrors.Wrap(err, apperrors.CameraBindFailed, "open camera stream").
			WithMetadata("device", p.device.String())
	}

	s := newSession(p.device, stream, exec, a, lc, opts)
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	s.start(sctx, cancel)
	return s, nil
}

// UnbindAll stops the current session, if any.
func (p *Provider) UnbindAll() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Session returns the bound session or nil.
func (p *Provider) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Acquisition is the outcome of Acquire.
type Acquisition struct {
	Provider *Provider
	Err      error
}

// Opener obtains a provider, typically after checking the device exists.
type Opener func(ctx context.Context) (*Provider, error)

// Acquire runs open on its own goroutine. The returned channel yields exactly
// one Acquisition and is never closed without one. Failures carry
// CameraUnavailable.
func Acquire(ctx context.Context, open Opener) <-chan Acquisition {
	out := make(chan Acquisition, 1)
	go func() {
		if err := ctx.Err(); err != nil {
			out <- Acquisition{Err: apperrors.Wrap(err, apperrors.Cancelled, "camera acquisition cancelled")}
			return
		}
		p, err := open(ctx)
		switch {
		case err != nil && apperrors.IsCode(err, apperrors.CameraUnavailable):
			out <- Acquisition{Err: err}
		case err != nil:
			out <- Acquisition{Err: apperrors.Wrap(err, apperrors.CameraUnavailable, "acquire camera provider")}
		case p == nil:
			out <- Acquisition{Err: apperrors.New(apperrors.CameraUnavailable, "no camera provider")}
		default:
			out <- Acquisition{Provider: p}
		}
	}()
	return out
}

// FFmpegOpener checks that ffmpeg is installed before handing out a provider
// for d.
func FFmpegOpener(d *FFmpegDevice) Opener {
	return func(ctx context.Context) (*Provider, error) {
		if err := d.LookupFFmpeg(); err != nil {
			return nil, err
		}
		if err := probeDevice(d.path()); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CameraUnavailable, "camera device not present").
				WithMetadata("device", d.path())
		}
		return NewProvider(d), nil
	}
}

// StaticOpener hands out a provider for d without any checks.
func StaticOpener(d Device) Opener {
	return func(context.Context) (*Provider, error) {
		return NewProvider(d), nil
	}
}
