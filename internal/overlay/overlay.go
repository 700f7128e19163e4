// Package overlay drives the full-screen warning shown while the viewer is
// too close.
package overlay

import (
	"fmt"
	"log/slog"

	"github.com/GriffinCanCode/eyeguard/internal/notify"
	"github.com/GriffinCanCode/eyeguard/internal/proximity"
)

// State of the overlay.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle identifies one shown overlay on a Surface.
type Handle string

// Tier is the z-order band a display draws the overlay in.
type Tier string

// TierTopmost sits above every application window, including other
// system overlays.
const TierTopmost Tier = "topmost"

// Gravity anchors the overlay on screen.
type Gravity string

const GravityTopLeft Gravity = "top-left"

// Layout describes how the overlay sits on screen.
type Layout struct {
	FullScreen  bool    `json:"full_screen"`
	Touchable   bool    `json:"touchable"`
	Focusable   bool    `json:"focusable"`
	Translucent bool    `json:"translucent"`
	Opacity     float64 `json:"opacity"`
	Tier        Tier    `json:"tier"`
	Gravity     Gravity `json:"gravity"`
}

// FullScreenLayout covers the whole display from the top-left corner, above
// everything else, and never takes input.
func FullScreenLayout() Layout {
	return Layout{
		FullScreen:  true,
		Translucent: true,
		Opacity:     0.92,
		Tier:        TierTopmost,
		Gravity:     GravityTopLeft,
	}
}

// Content is what the overlay shows.
type Content struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func DefaultContent() Content {
	return Content{
		Title:   "Too close",
		Message: "Hold the screen farther from your eyes.",
	}
}

// Surface is the display that hosts overlays.
type Surface interface {
	Add(layout Layout, content Content) (Handle, error)
	Remove(h Handle) error
}

// Stats counts controller activity.
type Stats struct {
	State          string `json:"state"`
	Creates        int    `json:"creates"`
	Removes        int    `json:"removes"`
	CreateFailures int    `json:"create_failures"`
	RemoveFailures int    `json:"remove_failures"`
}

// Controller is the Idle/Active state machine. It is not safe for concurrent
// use; the orchestrator confines it to the surface looper.
type Controller struct {
	surface Surface
	notices notify.Sink
	layout  Layout
	content Content

	state  State
	handle Handle
	stats  Stats

	// set while consecutive creates keep failing
	createFailing bool
}

// NewController starts Idle.
func NewController(surface Surface, notices notify.Sink) *Controller {
	if notices == nil {
		notices = notify.LogSink{}
	}
	return &Controller{
		surface: surface,
		notices: notices,
		layout:  FullScreenLayout(),
		content: DefaultContent(),
	}
}

// WithContent replaces the overlay text.
func (c *Controller) WithContent(content Content) *Controller {
	c.content = content
	return c
}

// Apply moves the state machine on one verdict. Only Idle+Near and
// Active+Far touch the surface.
func (c *Controller) Apply(v proximity.Verdict) {
	switch {
	case c.state == Idle && v == proximity.Near:
		c.show()
	case c.state == Active && v == proximity.Far:
		c.hide()
	}
}

// ForceIdle removes a shown overlay. Used on shutdown.
func (c *Controller) ForceIdle() {
	if c.state == Active {
		c.hide()
	}
}

func (c *Controller) show() {
	h, err := c.surface.Add(c.layout, c.content)
	if err != nil {
		c.stats.CreateFailures++
		if c.createFailing {
			slog.Debug("overlay create failed again", "error", err)
			return
		}
		c.createFailing = true
		slog.Warn("overlay create failed", "error", err)
		c.notices.Notify(notify.New(notify.OverlayCreateFailed, "Could not show the distance warning", err))
		return
	}
	c.createFailing = false
	c.handle = h
	c.state = Active
	c.stats.Creates++
	slog.Debug("overlay shown", "handle", h)
}

// hide always ends Idle. A failed removal may leave the overlay on screen
// with nothing tracking it; the next Near creates a fresh one.
func (c *Controller) hide() {
	h := c.handle
	c.handle = ""
	c.state = Idle
	c.stats.Removes++
	if err := c.surface.Remove(h); err != nil {
		c.stats.RemoveFailures++
		slog.Warn("overlay remove failed", "handle", h, "error", err)
		c.notices.Notify(notify.New(notify.OverlayRemoveFailed, "Could not hide the distance warning", err))
		return
	}
	slog.Debug("overlay hidden", "handle", h)
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Handle returns the live overlay handle, empty while Idle.
func (c *Controller) Handle() Handle { return c.handle }

// Stats returns a copy of the counters.
func (c *Controller) Stats() Stats {
	st := c.stats
	st.State = c.state.String()
	return st
}
