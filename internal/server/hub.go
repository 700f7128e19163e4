package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/notify"
	"github.com/GriffinCanCode/eyeguard/internal/overlay"
)

// client is one connected display.
type client struct {
	id   string
	send chan any
}

// Hub fans overlay and toast messages out to connected display clients. It is
// the compositor behind overlay.Surface and a notify.Sink for toasts.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	shown   map[overlay.Handle]OverlayShowMessage
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		shown:   make(map[overlay.Handle]OverlayShowMessage),
	}
}

// Add shows an overlay on every display. It fails when no display is
// connected, since nothing would be drawn.
func (h *Hub) Add(layout overlay.Layout, content overlay.Content) (overlay.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return "", apperrors.New(apperrors.OverlayCreateFailed, "no display connected")
	}
	handle := overlay.Handle(uuid.NewString())
	msg := OverlayShowMessage{
		Type:    "overlay_show",
		Handle:  string(handle),
		Layout:  layout,
		Content: content,
	}
	h.shown[handle] = msg
	h.broadcastLocked(msg)
	return handle, nil
}

// Remove hides an overlay everywhere.
func (h *Hub) Remove(handle overlay.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.shown[handle]; !ok {
		return apperrors.New(apperrors.OverlayRemoveFailed, "unknown overlay handle").
			WithMetadata("handle", string(handle))
	}
	delete(h.shown, handle)
	h.broadcastLocked(OverlayHideMessage{Type: "overlay_hide", Handle: string(handle)})
	return nil
}

// Notify broadcasts n as a toast.
func (h *Hub) Notify(n notify.Notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.broadcastLocked(ToastMessage{Type: "toast", Kind: n.Kind, Message: n.Message, Error: n.Error})
}

// Clients returns the number of connected displays.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shown returns the number of overlays currently displayed.
func (h *Hub) Shown() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.shown)
}

// register adds a client and queues every live overlay for it so a display
// that joins late matches the others.
func (h *Hub) register() *client {
	c := &client{id: uuid.NewString(), send: make(chan any, ClientSendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	for _, msg := range h.shown {
		h.enqueue(c, msg)
	}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// broadcastLocked requires h.mu held in either mode.
func (h *Hub) broadcastLocked(msg any) {
	for _, c := range h.clients {
		h.enqueue(c, msg)
	}
}

func (h *Hub) enqueue(c *client, msg any) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("display client too slow, dropping message", "client", c.id)
	}
}
