package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/looper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindRejectsMissingLens(t *testing.T) {
	dev := NewMemoryDevice("rear")
	dev.Facing = LensBack
	exec := looper.New("analysis")
	defer exec.Quit()

	_, err := NewProvider(dev).Bind(context.Background(), LensFront, AlwaysActive{}, exec, &recorder{}, SessionOptions{})
	assert.True(t, apperrors.IsCode(err, apperrors.CameraBindFailed), "got %v", err)
}

func TestBindOpenFailure(t *testing.T) {
	dev := NewMemoryDevice("busy")
	dev.OpenErr = errors.New("device or resource busy")
	exec := looper.New("analysis")
	defer exec.Quit()

	p := NewProvider(dev)
	_, err := p.Bind(context.Background(), LensFront, AlwaysActive{}, exec, &recorder{}, SessionOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CameraBindFailed))
	assert.ErrorIs(t, err, dev.OpenErr)
	assert.Nil(t, p.Session())
}

func TestBindRequiresCollaborators(t *testing.T) {
	_, err := NewProvider(NewMemoryDevice("cam")).Bind(context.Background(), LensFront, nil, nil, nil, SessionOptions{})
	assert.True(t, apperrors.IsCode(err, apperrors.InvalidArgument))
}

func TestRebindUnbindsPrevious(t *testing.T) {
	dev := NewMemoryDevice("cam")
	exec := looper.New("analysis")
	defer exec.Quit()
	p := NewProvider(dev)
	defer p.UnbindAll()

	first, err := p.Bind(context.Background(), LensFront, AlwaysActive{}, exec, &recorder{}, SessionOptions{})
	require.NoError(t, err)
	second, err := p.Bind(context.Background(), LensFront, AlwaysActive{}, exec, &recorder{}, SessionOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, second, p.Session())

	// the first session's goroutines are gone; Stop returns immediately
	done := make(chan struct{})
	go func() { first.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first session still running")
	}
}

func TestSessionOutlivesBindContext(t *testing.T) {
	dev := NewMemoryDevice("cam")
	exec := looper.New("analysis")
	defer exec.Quit()
	p := NewProvider(dev)
	defer p.UnbindAll()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	_, err := p.Bind(ctx, LensFront, AlwaysActive{}, exec, rec, SessionOptions{})
	require.NoError(t, err)
	cancel()

	require.True(t, dev.Push(encodeJPEG(t, 8, 8, false)))
	require.Eventually(t, func() bool { return len(rec.delivered()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAcquire(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		dev := NewMemoryDevice("cam")
		acq := <-Acquire(context.Background(), StaticOpener(dev))
		require.NoError(t, acq.Err)
		assert.Same(t, dev, acq.Provider.Device())
	})

	t.Run("failure is camera unavailable", func(t *testing.T) {
		acq := <-Acquire(context.Background(), func(context.Context) (*Provider, error) {
			return nil, errors.New("no cameras")
		})
		assert.Nil(t, acq.Provider)
		assert.True(t, apperrors.IsCode(acq.Err, apperrors.CameraUnavailable))
	})

	t.Run("nil provider", func(t *testing.T) {
		acq := <-Acquire(context.Background(), func(context.Context) (*Provider, error) { return nil, nil })
		assert.True(t, apperrors.IsCode(acq.Err, apperrors.CameraUnavailable))
	})

	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		acq := <-Acquire(ctx, func(context.Context) (*Provider, error) {
			called = true
			return nil, nil
		})
		assert.False(t, called)
		assert.True(t, apperrors.IsCode(acq.Err, apperrors.Cancelled))
	})
}

func TestFFmpegOpenerMissingBinary(t *testing.T) {
	d := &FFmpegDevice{Binary: "eyeguard-no-such-ffmpeg"}
	_, err := FFmpegOpener(d)(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CameraUnavailable))
}
