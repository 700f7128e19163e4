package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/eyeguard/internal/camera"
	"github.com/GriffinCanCode/eyeguard/internal/detector"
	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/looper"
	"github.com/GriffinCanCode/eyeguard/internal/proximity"
)

var (
	probeJSON    bool
	probeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Grab one frame, detect faces and print the proximity verdict",
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "print the result as JSON")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 15*time.Second, "overall probe timeout")
	rootCmd.AddCommand(probeCmd)
}

// probeResult is what probe reports.
type probeResult struct {
	Device    string         `json:"device"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Faces     []detector.Box `json:"faces"`
	Ratio     float64        `json:"ratio"`
	Threshold float64        `json:"threshold"`
	Verdict   string         `json:"verdict"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	cc, err := clientConfig()
	if err != nil {
		return err
	}
	det, err := detector.Dial(cfg.DetectorAddr, cc)
	if err != nil {
		return err
	}
	defer func() { _ = det.Close() }()

	dev := newDevice()
	img, err := grabFrame(ctx, camera.FFmpegOpener(dev))
	if err != nil {
		return err
	}

	if err := det.WaitReady(ctx); err != nil {
		return err
	}
	res := <-det.Detect(ctx, img)
	if res.Err != nil {
		return res.Err
	}

	out := probeResult{
		Device:    dev.String(),
		Width:     img.Width,
		Height:    img.Height,
		Faces:     res.Faces,
		Ratio:     proximity.Ratio(res.Faces, img.Width, img.Height),
		Threshold: cfg.ProximityThreshold,
		Verdict:   proximity.Evaluate(res.Faces, img.Width, img.Height, cfg.ProximityThreshold).String(),
	}
	return printProbe(out)
}

// grabFrame binds the camera just long enough to copy out the first frame.
func grabFrame(ctx context.Context, open camera.Opener) (detector.Image, error) {
	acq := <-camera.Acquire(ctx, open)
	if acq.Err != nil {
		return detector.Image{}, acq.Err
	}
	p := acq.Provider
	exec := looper.New("probe")
	defer func() {
		p.UnbindAll()
		exec.Quit()
	}()

	frames := make(chan detector.Image, 1)
	streamErr := make(chan error, 1)
	analyze := camera.AnalyzerFunc(func(f *camera.Frame) {
		defer f.Release()
		img := detector.Image{
			Data:     append([]byte(nil), f.Data...),
			Width:    f.Width,
			Height:   f.Height,
			Rotation: f.Rotation,
		}
		select {
		case frames <- img:
		default:
		}
	})
	opts := camera.SessionOptions{
		Rotation: cfg.CameraRotation,
		OnStreamError: func(err error) {
			streamErr <- err
		},
	}
	if _, err := p.Bind(ctx, camera.LensFront, camera.AlwaysActive{}, exec, analyze, opts); err != nil {
		return detector.Image{}, err
	}

	select {
	case img := <-frames:
		return img, nil
	case err := <-streamErr:
		return detector.Image{}, apperrors.Wrap(err, apperrors.CameraUnavailable, "camera stream ended before the first frame")
	case <-ctx.Done():
		return detector.Image{}, apperrors.Wrap(ctx.Err(), apperrors.Timeout, "no camera frame")
	}
}

func printProbe(r probeResult) error {
	if probeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "DEVICE\t%s\n", r.Device)
	fmt.Fprintf(w, "FRAME\t%dx%d\n", r.Width, r.Height)
	fmt.Fprintf(w, "FACES\t%d\n", len(r.Faces))
	for i, f := range r.Faces {
		fmt.Fprintf(w, "  #%d\t%.0fx%.0f at (%.0f,%.0f)\n", i, f.Width, f.Height, f.X, f.Y)
	}
	fmt.Fprintf(w, "RATIO\t%.3f (threshold %.2f)\n", r.Ratio, r.Threshold)
	fmt.Fprintf(w, "VERDICT\t%s\n", r.Verdict)
	return w.Flush()
}
