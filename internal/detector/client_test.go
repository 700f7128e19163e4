package detector

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net"
	"sync"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/resilience"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeService struct {
	mu       sync.Mutex
	requests []Request
	faces    []Box
	err      error
}

func (f *fakeService) handle(_ context.Context, req Request) ([]Box, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return append([]Box(nil), f.faces...), f.err
}

func (f *fakeService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeService) last() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// startServer runs a detection service over bufconn and returns a client
// connection to it.
func startServer(t *testing.T, svc *fakeService, hs *health.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, svc.handle)
	if hs != nil {
		healthpb.RegisterHealthServer(s, hs)
	}
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testImage(t *testing.T, w, h int) Image {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return Image{Data: buf.Bytes(), Width: w, Height: h, Rotation: 270}
}

func detectSync(t *testing.T, c *Client, img Image) Result {
	t.Helper()
	select {
	case r := <-c.Detect(context.Background(), img):
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("detect did not complete")
		return Result{}
	}
}

func TestClientDetect(t *testing.T) {
	svc := &fakeService{faces: []Box{{X: 10, Y: 20, Width: 60, Height: 60}}}
	cfg := DefaultClientConfig()
	cfg.MaxWidth = 0
	c := NewClient(startServer(t, svc, nil), cfg)

	r := detectSync(t, c, testImage(t, 100, 100))
	require.NoError(t, r.Err)
	if diff := cmp.Diff([]Box{{X: 10, Y: 20, Width: 60, Height: 60}}, r.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}

	req := svc.last()
	assert.Equal(t, ModeFast, req.Options.Mode)
	assert.False(t, req.Options.Landmarks)
	assert.False(t, req.Options.Contours)
	assert.False(t, req.Options.Classification)
	assert.InDelta(t, DefaultMinFaceSize, req.Options.MinFaceSize, 1e-9)
	assert.Equal(t, 270, req.Image.Rotation)
	assert.Equal(t, 100, req.Image.Width)
}

func TestClientDropsSmallFaces(t *testing.T) {
	svc := &fakeService{faces: []Box{
		{Width: 10, Height: 10}, // 1% of frame
		{Width: 50, Height: 40}, // 20%
	}}
	cfg := DefaultClientConfig()
	cfg.MaxWidth = 0
	c := NewClient(startServer(t, svc, nil), cfg)

	r := detectSync(t, c, testImage(t, 100, 100))
	require.NoError(t, r.Err)
	assert.Equal(t, []Box{{Width: 50, Height: 40}}, r.Faces)
}

func TestClientDownscalesAndMapsBack(t *testing.T) {
	// service sees a 160px-wide image and reports a box in its coordinates
	svc := &fakeService{faces: []Box{{X: 40, Y: 30, Width: 80, Height: 60}}}
	cfg := DefaultClientConfig()
	cfg.MaxWidth = 160
	c := NewClient(startServer(t, svc, nil), cfg)

	r := detectSync(t, c, testImage(t, 640, 480))
	require.NoError(t, r.Err)
	require.Len(t, r.Faces, 1)
	assert.InDelta(t, 160, r.Faces[0].X, 1e-6)
	assert.InDelta(t, 320, r.Faces[0].Width, 1e-6)
	assert.InDelta(t, 240, r.Faces[0].Height, 1e-6)

	req := svc.last()
	assert.Equal(t, 160, req.Image.Width)
	assert.Equal(t, 120, req.Image.Height)
	cfgUp, err := jpeg.DecodeConfig(bytes.NewReader(req.Image.Data))
	require.NoError(t, err)
	assert.Equal(t, 160, cfgUp.Width)
}

func TestClientNoFaces(t *testing.T) {
	c := NewClient(startServer(t, &fakeService{}, nil), DefaultClientConfig())
	r := detectSync(t, c, testImage(t, 64, 48))
	require.NoError(t, r.Err)
	assert.Empty(t, r.Faces)
}

func TestClientFailure(t *testing.T) {
	svc := &fakeService{err: status.Error(codes.Internal, "model crashed")}
	c := NewClient(startServer(t, svc, nil), DefaultClientConfig())

	r := detectSync(t, c, testImage(t, 64, 48))
	require.Error(t, r.Err)
	assert.True(t, apperrors.IsCode(r.Err, apperrors.DetectionFailed))
	assert.Nil(t, r.Faces)
}

func TestClientBreakerOpens(t *testing.T) {
	svc := &fakeService{err: status.Error(codes.Unavailable, "down")}
	cfg := DefaultClientConfig()
	cfg.Breaker = resilience.Config{Name: "test", Threshold: 2, ResetTimeout: time.Hour, TrialSuccesses: 1}
	c := NewClient(startServer(t, svc, nil), cfg)

	img := testImage(t, 32, 32)
	detectSync(t, c, img)
	detectSync(t, c, img)
	assert.Equal(t, resilience.Open, c.Breaker().State())

	r := detectSync(t, c, img)
	assert.True(t, apperrors.IsCode(r.Err, apperrors.Unavailable))
	assert.ErrorIs(t, r.Err, resilience.ErrOpen)
	assert.Equal(t, 2, svc.count(), "open breaker short-circuits the call")

	snap := c.BreakerSnapshot()
	assert.Equal(t, "open", snap.State)
	assert.EqualValues(t, 1, snap.Opens)
	assert.EqualValues(t, 1, snap.Rejected)
}

func TestClientRejectsBadJPEGWhenDownscaling(t *testing.T) {
	c := NewClient(startServer(t, &fakeService{}, nil), DefaultClientConfig())
	r := detectSync(t, c, Image{Data: []byte("nope"), Width: 1280, Height: 720})
	assert.True(t, apperrors.IsCode(r.Err, apperrors.DetectionFailed))
}

func TestWaitReady(t *testing.T) {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	cfg := DefaultClientConfig()
	cfg.Ready = resilience.RetryConfig{Attempts: 20, BaseDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond}
	c := NewClient(startServer(t, &fakeService{}, hs), cfg)

	go func() {
		time.Sleep(20 * time.Millisecond)
		hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	}()

	require.NoError(t, c.WaitReady(context.Background()))
}

func TestWaitReadyGivesUp(t *testing.T) {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	cfg := DefaultClientConfig()
	cfg.Ready = resilience.RetryConfig{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	c := NewClient(startServer(t, &fakeService{}, hs), cfg)

	err := c.WaitReady(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.Unavailable))
}

func TestFuncDetector(t *testing.T) {
	boom := errors.New("boom")
	var d Detector = Func(func(context.Context, Image) ([]Box, error) { return nil, boom })
	r := <-d.Detect(context.Background(), Image{})
	assert.ErrorIs(t, r.Err, boom)
	assert.NoError(t, d.Close())
}
