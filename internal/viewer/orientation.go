package viewer

import (
	"math"

	"github.com/Lllllllleong/journalbook/internal/models"
)

// Input identifies the pointing device behind a drag.
type Input int

const (
	InputMouse Input = iota
	InputTouch
)

// ParseInput maps "touch" to InputTouch and anything else to InputMouse.
func ParseInput(s string) Input {
	if s == "touch" {
		return InputTouch
	}
	return InputMouse
}

// Point is a pointer position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const (
	MaxPitch = 30.0
	MaxYaw   = 45.0

	// Degrees per pixel. Touch deltas arrive in larger steps, so touch is damped.
	MouseSensitivity = 0.3
	TouchSensitivity = 0.16
)

// InitialPose is the resting tilt before any drag.
var InitialPose = models.Pose{Pitch: -15, Yaw: 20}

// Orientation turns drag gestures into a clamped pitch/yaw pose. It is not
// safe for concurrent use; the Viewer guards it.
type Orientation struct {
	pose        models.Pose
	anchor      Point
	sensitivity float64
	dragging    bool
}

// NewOrientation returns a controller holding InitialPose.
func NewOrientation() *Orientation {
	return &Orientation{pose: InitialPose}
}

// Start begins a gesture anchored at p.
func (o *Orientation) Start(p Point, in Input) {
	if !finite(p) {
		return
	}
	o.dragging = true
	o.anchor = p
	o.sensitivity = MouseSensitivity
	if in == InputTouch {
		o.sensitivity = TouchSensitivity
	}
}

// Move applies the delta since the last anchor and re-anchors at p. Dragging
// down tilts the book back; dragging right turns it right.
func (o *Orientation) Move(p Point) {
	if !o.dragging || !finite(p) {
		return
	}
	dx := p.X - o.anchor.X
	dy := p.Y - o.anchor.Y
	o.pose.Pitch = clamp(o.pose.Pitch-dy*o.sensitivity, -MaxPitch, MaxPitch)
	o.pose.Yaw = clamp(o.pose.Yaw+dx*o.sensitivity, -MaxYaw, MaxYaw)
	o.anchor = p
}

// End finishes the gesture. The pose stays where it is.
func (o *Orientation) End() {
	o.dragging = false
}

// Pose returns the current tilt.
func (o *Orientation) Pose() models.Pose { return o.pose }

// Dragging reports whether a gesture is active. Pose changes during a gesture
// are meant to be shown immediately, without easing.
func (o *Orientation) Dragging() bool { return o.dragging }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
