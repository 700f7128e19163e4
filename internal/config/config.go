// Package config handles eyeguard configuration
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Proximity defaults
const (
	DefaultProximityThreshold = 0.6
	DefaultMinFaceSize        = 0.15
)

type Config struct {
	HTTPAddr     string
	DetectorAddr string
	LogLevel     string
	AutoStart    bool // start monitoring at boot

	ProximityThreshold float64 // largest face area / frame area
	MinFaceSize        float64 // fraction of frame area
	PerformanceMode    string  // "fast" or "accurate"
	DetectMaxWidth     int     // 0 disables downscaling before upload
	DetectTimeout      time.Duration

	CameraDevice     string // empty selects the platform default
	CameraFormat     string // ffmpeg input format (v4l2, avfoundation, dshow)
	CameraFPS        int
	CameraWidth      int
	CameraHeight     int
	CameraRotation   int // degrees
	FreezeCheckEvery int // frames between freeze checks, 0 disables
}

func Load() *Config {
	return &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8000"),
		DetectorAddr:       getEnv("DETECTOR_ADDR", "localhost:50051"),
		LogLevel:           getEnv("LOG_LEVEL", "debug"),
		AutoStart:          getEnvBool("AUTO_START", true),
		ProximityThreshold: getEnvFloat("PROXIMITY_THRESHOLD", DefaultProximityThreshold),
		MinFaceSize:        getEnvFloat("MIN_FACE_SIZE", DefaultMinFaceSize),
		PerformanceMode:    getEnv("PERFORMANCE_MODE", "fast"),
		DetectMaxWidth:     getEnvInt("DETECT_MAX_WIDTH", 320),
		DetectTimeout:      getEnvDuration("DETECT_TIMEOUT", 2*time.Second),
		CameraDevice:       getEnv("CAMERA_DEVICE", ""),
		CameraFormat:       getEnv("CAMERA_FORMAT", ""),
		CameraFPS:          getEnvInt("CAMERA_FPS", 15),
		CameraWidth:        getEnvInt("CAMERA_WIDTH", 640),
		CameraHeight:       getEnvInt("CAMERA_HEIGHT", 480),
		CameraRotation:     getEnvInt("CAMERA_ROTATION", 0),
		FreezeCheckEvery:   getEnvInt("FREEZE_CHECK_EVERY", 30),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ProximityThreshold <= 0 || c.ProximityThreshold >= 1 {
		return fmt.Errorf("proximity threshold %v outside (0,1)", c.ProximityThreshold)
	}
	if c.MinFaceSize <= 0 || c.MinFaceSize >= 1 {
		return fmt.Errorf("min face size %v outside (0,1)", c.MinFaceSize)
	}
	if c.PerformanceMode != "fast" && c.PerformanceMode != "accurate" {
		return fmt.Errorf("unknown performance mode %q", c.PerformanceMode)
	}
	if c.CameraFPS <= 0 {
		return fmt.Errorf("camera fps must be positive, got %d", c.CameraFPS)
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return fmt.Errorf("camera size %dx%d must be positive", c.CameraWidth, c.CameraHeight)
	}
	switch c.CameraRotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("camera rotation %d not in {0,90,180,270}", c.CameraRotation)
	}
	if c.DetectMaxWidth < 0 {
		return fmt.Errorf("detect max width must not be negative, got %d", c.DetectMaxWidth)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
