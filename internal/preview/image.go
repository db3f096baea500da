package preview

// Zoom limits of the image viewer.
const (
	MinScale  = 0.5
	MaxScale  = 4.0
	ScaleStep = 0.25
)

// Point is a pan offset in screen pixels.
type Point struct {
	X, Y float64
}

// ImageViewer is the pan/zoom/rotate state of the image renderer. The zero
// value is not ready; use NewImageViewer or Reset.
type ImageViewer struct {
	Scale    float64
	Rotation int
	Pan      Point

	dragging  bool
	dragStart Point
}

// NewImageViewer returns a viewer at 1x with no rotation.
func NewImageViewer() ImageViewer {
	return ImageViewer{Scale: 1}
}

// Reset returns to 1x, no rotation, no pan.
func (v *ImageViewer) Reset() {
	*v = NewImageViewer()
}

// ZoomIn raises the scale by one step up to MaxScale.
func (v *ImageViewer) ZoomIn() {
	v.Scale = min(MaxScale, v.Scale+ScaleStep)
}

// ZoomOut lowers the scale by one step down to MinScale. Arriving at 1x
// recentres the image.
func (v *ImageViewer) ZoomOut() {
	v.Scale = max(MinScale, v.Scale-ScaleStep)
	if v.Scale == 1 {
		v.Pan = Point{}
	}
}

// Rotate turns the image a quarter turn clockwise.
func (v *ImageViewer) Rotate() {
	v.Rotation = (v.Rotation + 90) % 360
}

// BeginPan starts a drag at screen position (x, y). Panning is only
// possible when zoomed in past 1x.
func (v *ImageViewer) BeginPan(x, y float64) bool {
	if v.Scale <= 1 {
		return false
	}
	v.dragging = true
	v.dragStart = Point{X: x - v.Pan.X, Y: y - v.Pan.Y}
	return true
}

// MovePan updates the pan offset while a drag is active.
func (v *ImageViewer) MovePan(x, y float64) {
	if !v.dragging {
		return
	}
	v.Pan = Point{X: x - v.dragStart.X, Y: y - v.dragStart.Y}
}

// EndPan finishes the drag.
func (v *ImageViewer) EndPan() {
	v.dragging = false
}

// Dragging reports whether a pan drag is active.
func (v *ImageViewer) Dragging() bool {
	return v.dragging
}
