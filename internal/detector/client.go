package detector

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/resilience"
	"github.com/GriffinCanCode/eyeguard/internal/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client defaults
const (
	DefaultTimeout  = 2 * time.Second
	DefaultMaxWidth = 320
)

// ClientConfig tunes the gRPC detector client.
type ClientConfig struct {
	Options Options
	// MaxWidth downscales frames wider than this before upload. 0 disables.
	MaxWidth int
	// Timeout bounds a single Detect call.
	Timeout time.Duration
	Breaker resilience.Config
	Ready   resilience.RetryConfig
}

// DefaultClientConfig returns the minimum-latency client setup.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Options:  FastOptions(),
		MaxWidth: DefaultMaxWidth,
		Timeout:  DefaultTimeout,
		Breaker:  resilience.DetectorConfig(),
		Ready:    resilience.ReadyRetryConfig(),
	}
}

// Client calls the detection service over gRPC.
type Client struct {
	conn    *grpc.ClientConn
	owned   bool
	cfg     ClientConfig
	breaker *resilience.Breaker
	health  healthpb.HealthClient
}

// Dial connects to the detection service at addr. The connection is lazy;
// use WaitReady to block until the service is serving.
func Dial(addr string, cfg ClientConfig) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "dial detector").WithMetadata("addr", addr)
	}
	c := NewClient(conn, cfg)
	c.owned = true
	return c, nil
}

// NewClient wraps an existing connection. Close does not close conn.
func NewClient(conn *grpc.ClientConn, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "detector"
	}
	if cfg.Ready.AttemptTimeout <= 0 {
		cfg.Ready.AttemptTimeout = cfg.Timeout
	}
	return &Client{
		conn:    conn,
		cfg:     cfg,
		breaker: resilience.New(cfg.Breaker),
		health:  healthpb.NewHealthClient(conn),
	}
}

// WaitReady polls the standard health service until the detector reports
// SERVING or retries run out.
func (c *Client) WaitReady(ctx context.Context) error {
	err := resilience.Retry(ctx, c.cfg.Ready, func(ctx context.Context) error {
		resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return status.Errorf(codes.Unavailable, "detector %s", resp.GetStatus())
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "detector not ready")
	}
	return nil
}

// Detect runs one detection on its own goroutine. The call is never retried;
// the next frame supplies a fresh attempt.
func (c *Client) Detect(ctx context.Context, img Image) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		faces, err := c.detect(ctx, img)
		out <- Result{Faces: faces, Err: err}
	}()
	return out
}

func (c *Client) detect(ctx context.Context, img Image) ([]Box, error) {
	ctx, span := trace.StartSpan(ctx, "detector.detect")
	defer span.End()

	payload, scale, err := Downscale(img.Data, img.Width, c.cfg.MaxWidth)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.DetectionFailed, "prepare frame")
	}
	up := img
	up.Data = payload
	if scale != 1 {
		up.Width = int(float64(img.Width)*scale + 0.5)
		up.Height = int(float64(img.Height)*scale + 0.5)
	}
	req, err := encodeRequest(up, c.cfg.Options)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.DetectionFailed, "encode request")
	}

	resp, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (*structpb.Struct, error) {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		out := new(structpb.Struct)
		if err := c.conn.Invoke(cctx, DetectMethod, req, out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) {
			return nil, apperrors.Wrap(err, apperrors.Unavailable, "detector circuit open")
		}
		return nil, apperrors.Wrap(apperrors.FromGRPCError(err), apperrors.DetectionFailed, "detect faces")
	}

	faces, err := decodeFaces(resp)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.DetectionFailed, "decode response")
	}
	faces = c.cfg.Options.keep(scaleBoxes(faces, scale), img.Width, img.Height)
	span.SetAttr("faces", len(faces))
	trace.Logger(ctx).Debug("faces detected", "count", len(faces), "scale", scale)
	return faces, nil
}

// Breaker exposes the circuit breaker for transition hooks.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// BreakerSnapshot reports the circuit breaker for status.
func (c *Client) BreakerSnapshot() resilience.Snapshot { return c.breaker.Snapshot() }

// Close releases the connection if Dial created it.
func (c *Client) Close() error {
	if c.owned {
		return c.conn.Close()
	}
	return nil
}
