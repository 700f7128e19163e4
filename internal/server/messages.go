package server

import (
	"github.com/GriffinCanCode/eyeguard/internal/notify"
	"github.com/GriffinCanCode/eyeguard/internal/orchestrator"
	"github.com/GriffinCanCode/eyeguard/internal/overlay"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

type OverlayShowMessage struct {
	Type    string          `json:"type"`
	Handle  string          `json:"handle"`
	Layout  overlay.Layout  `json:"layout"`
	Content overlay.Content `json:"content"`
}

type OverlayHideMessage struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
}

type ToastMessage struct {
	Type    string      `json:"type"`
	Kind    notify.Kind `json:"kind"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
}

type StatusMessage struct {
	Type   string              `json:"type"`
	Status orchestrator.Status `json:"status"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
