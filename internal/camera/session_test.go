package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/eyeguard/internal/looper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inactive struct{}

func (inactive) Active() bool { return false }

// recorder collects delivered frames and optionally holds them.
type recorder struct {
	mu     sync.Mutex
	seqs   []uint64
	frames []*Frame
	hold   bool
}

func (r *recorder) Analyze(f *Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, f.Seq)
	if r.hold {
		r.frames = append(r.frames, f)
		return
	}
	f.Release()
}

func (r *recorder) delivered() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seqs...)
}

func (r *recorder) releaseHeld() {
	r.mu.Lock()
	held := r.frames
	r.frames = nil
	r.hold = false
	r.mu.Unlock()
	for _, f := range held {
		f.Release()
	}
}

func bind(t *testing.T, dev *MemoryDevice, a Analyzer, lc Lifecycle, opts SessionOptions) *Session {
	t.Helper()
	exec := looper.New("analysis")
	p := NewProvider(dev)
	s, err := p.Bind(context.Background(), LensFront, lc, exec, a, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		p.UnbindAll()
		exec.Quit()
	})
	return s
}

func TestSessionDeliversFrames(t *testing.T) {
	dev := NewMemoryDevice("cam")
	var frames []*Frame
	var mu sync.Mutex
	a := AnalyzerFunc(func(f *Frame) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, f)
		f.Release()
	})
	s := bind(t, dev, a, AlwaysActive{}, SessionOptions{Rotation: 270})

	require.True(t, dev.Push(encodeJPEG(t, 32, 24, false)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	f := frames[0]
	mu.Unlock()
	assert.Equal(t, 32, f.Width)
	assert.Equal(t, 24, f.Height)
	assert.Equal(t, 270, f.Rotation)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Nil(t, f.Data, "data is cleared once released")

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Produced)
	assert.Equal(t, uint64(1), st.Released)
	assert.Equal(t, "memory:cam", st.Device)
}

func TestSessionKeepsOnlyLatestWhileBusy(t *testing.T) {
	dev := NewMemoryDevice("cam")
	rec := &recorder{hold: true}
	s := bind(t, dev, rec, AlwaysActive{}, SessionOptions{})

	img := encodeJPEG(t, 16, 16, false)
	require.True(t, dev.Push(img))
	require.Eventually(t, func() bool { return len(rec.delivered()) == 1 }, time.Second, 5*time.Millisecond)

	// Analyzer is busy with frame 1; frames 2..6 pile up behind it.
	for i := 0; i < 5; i++ {
		require.True(t, dev.Push(img))
	}
	require.Eventually(t, func() bool { return s.Stats().Produced == 6 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{1}, rec.delivered(), "nothing delivered while a frame is in flight")

	rec.releaseHeld()
	require.Eventually(t, func() bool { return len(rec.delivered()) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []uint64{1, 6}, rec.delivered(), "only the most recent frame follows")
	st := s.Stats()
	assert.Equal(t, uint64(4), st.Dropped)
	assert.Equal(t, uint64(2), st.Delivered)
}

func TestSessionInactiveLifecycleReleases(t *testing.T) {
	dev := NewMemoryDevice("cam")
	rec := &recorder{}
	s := bind(t, dev, rec, inactive{}, SessionOptions{})

	require.True(t, dev.Push(encodeJPEG(t, 8, 8, false)))
	require.Eventually(t, func() bool { return s.Stats().Released == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.delivered())
	assert.Zero(t, s.Stats().Delivered)
}

func TestSessionSkipsCorruptFrames(t *testing.T) {
	dev := NewMemoryDevice("cam")
	rec := &recorder{}
	s := bind(t, dev, rec, AlwaysActive{}, SessionOptions{})

	require.True(t, dev.Push([]byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9}))
	require.True(t, dev.Push(encodeJPEG(t, 8, 8, false)))

	require.Eventually(t, func() bool { return len(rec.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), s.Stats().Corrupt)
	assert.Equal(t, []uint64{1}, rec.delivered(), "corrupt frames do not consume a sequence number")
}

func TestSessionStreamError(t *testing.T) {
	dev := NewMemoryDevice("cam")
	errs := make(chan error, 2)
	s := bind(t, dev, &recorder{}, AlwaysActive{}, SessionOptions{
		OnStreamError: func(err error) { errs <- err },
	})

	lost := errors.New("device unplugged")
	dev.Fail(lost)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, lost)
	case <-time.After(time.Second):
		t.Fatal("OnStreamError not called")
	}
	assert.Equal(t, "device unplugged", s.Stats().StreamError)

	s.Stop()
	assert.Empty(t, errs, "stream error reported once")
}

func TestSessionStopIsQuiet(t *testing.T) {
	dev := NewMemoryDevice("cam")
	called := false
	s := bind(t, dev, &recorder{}, AlwaysActive{}, SessionOptions{
		OnStreamError: func(error) { called = true },
	})

	s.Stop()
	s.Stop()
	assert.False(t, called, "a requested stop is not a stream failure")
	assert.False(t, dev.Push([]byte{1}), "stream is closed after Stop")
}

func TestSessionStopReleasesHeldFrameLater(t *testing.T) {
	dev := NewMemoryDevice("cam")
	rec := &recorder{hold: true}
	s := bind(t, dev, rec, AlwaysActive{}, SessionOptions{})

	img := encodeJPEG(t, 8, 8, false)
	require.True(t, dev.Push(img))
	require.Eventually(t, func() bool { return len(rec.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, dev.Push(img))
	require.Eventually(t, func() bool { return s.Stats().Produced == 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	st := s.Stats()
	assert.Equal(t, uint64(1), st.Dropped, "pending frame released on stop")
	assert.Equal(t, uint64(1), st.Released)

	rec.releaseHeld()
	assert.Equal(t, uint64(2), s.Stats().Released)
}
