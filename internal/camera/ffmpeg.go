package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
)

// FFmpegDevice captures from a local camera by running ffmpeg and reading
// MJPEG frames from its stdout. Empty Path and Format pick the platform
// default input.
type FFmpegDevice struct {
	Path   string
	Format string
	FPS    int
	Width  int
	Height int
	Facing Lens
	Binary string
}

func (d *FFmpegDevice) Lens() Lens { return d.Facing }

func (d *FFmpegDevice) String() string {
	return fmt.Sprintf("ffmpeg:%s:%s", d.format(), d.path())
}

func (d *FFmpegDevice) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "ffmpeg"
}

func (d *FFmpegDevice) path() string {
	if d.Path != "" {
		return d.Path
	}
	return defaultDevicePath
}

func (d *FFmpegDevice) format() string {
	if d.Format != "" {
		return d.Format
	}
	return defaultDeviceFormat
}

func (d *FFmpegDevice) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", d.format()}
	if d.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(d.FPS))
	}
	if d.Width > 0 && d.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", d.Width, d.Height))
	}
	return append(args,
		"-i", inputName(d.path()),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	)
}

// Open starts ffmpeg. The process lives until the stream is closed or ctx is
// cancelled.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	if err := probeDevice(d.path()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CameraUnavailable, "camera device not present").
			WithMetadata("device", d.path())
	}

	cmd := exec.CommandContext(ctx, d.binary(), d.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CameraUnavailable, "start ffmpeg").
			WithMetadata("binary", d.binary())
	}
	slog.Debug("camera capture started", "device", d.String(), "pid", cmd.Process.Pid)

	return &ffmpegStream{cmd: cmd, frames: newMJPEGReader(stdout), stderr: stderr}, nil
}

// LookupFFmpeg reports whether the ffmpeg binary can be found.
func (d *FFmpegDevice) LookupFFmpeg() error {
	if _, err := exec.LookPath(d.binary()); err != nil {
		return apperrors.Wrap(err, apperrors.CameraUnavailable, "ffmpeg not found").
			WithMetadata("binary", d.binary())
	}
	return nil
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	frames *mjpegReader
	stderr *tailBuffer

	killOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

func (s *ffmpegStream) ReadFrame(buf []byte) ([]byte, error) {
	out, err := s.frames.Next(buf)
	if err == nil {
		return out, nil
	}
	// Wait only after the last read from stdout.
	s.wait()
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			return out, fmt.Errorf("ffmpeg exited: %s", msg)
		}
		if s.waitErr != nil {
			return out, fmt.Errorf("ffmpeg exited: %w", s.waitErr)
		}
	}
	return out, err
}

func (s *ffmpegStream) wait() {
	s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
}

// Close kills ffmpeg. The pending ReadFrame returns and reaps the process.
func (s *ffmpegStream) Close() error {
	s.killOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
