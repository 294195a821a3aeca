package models

// These structs define the JSON payloads exchanged between the presentation
// layer and the viewer HTTP function.

// Pose is the pitch/yaw tilt of the book in degrees.
type Pose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// ViewerStateResponse is the full presentation state returned after every call.
type ViewerStateResponse struct {
	Cursor     int             `json:"cursor"`
	TotalPages int             `json:"totalPages"`
	Flipping   bool            `json:"flipping"`
	Page       *PageDescriptor `json:"page"`
	PageImage  string          `json:"pageImage,omitempty"` // data URL
	Pose       Pose            `json:"pose"`
	Dragging   bool            `json:"dragging"`
	Cover      Cover           `json:"cover"`
}

// JumpRequest is the input for the jump endpoint. Target is zero-based.
type JumpRequest struct {
	Target float64 `json:"target"`
}

// DragRequest carries a pointer position. Input is "mouse" or "touch" and is
// only read on drag start.
type DragRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Input string  `json:"input,omitempty"`
}

// CoverRequest selects a cover by ID.
type CoverRequest struct {
	ID string `json:"id"`
}

// ReloadRequest asks the viewer to load a document. An empty Ref reloads the
// configured default document.
type ReloadRequest struct {
	Ref string `json:"ref"`
}

// ReloadResponse reports the outcome of a reload.
type ReloadResponse struct {
	Status     string `json:"status"`
	TotalPages int    `json:"totalPages"`
	Error      string `json:"error,omitempty"`
}
