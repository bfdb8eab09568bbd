// Package detection holds per-frame object detections and the sources that
// produce them in frame order.
package detection

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Class is the kind of object a detection refers to.
type Class int

const (
	ClassOther Class = iota
	ClassPerson
	ClassBall
)

// COCO class ids emitted by YOLO models trained on COCO.
const (
	COCOPerson     = 0
	COCOSportsBall = 32
	cocoClasses    = 80
)

// ErrMalformed marks a detection that cannot contribute to a frame signal.
var ErrMalformed = errors.New("malformed detection")

func (c Class) String() string {
	switch c {
	case ClassPerson:
		return "person"
	case ClassBall:
		return "ball"
	case ClassOther:
		return "other"
	default:
		return "unknown"
	}
}

// ParseClass maps a class label to a Class. Unrecognised labels are ClassOther.
func ParseClass(name string) Class {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "person", "player":
		return ClassPerson
	case "ball", "sports ball", "sports_ball":
		return ClassBall
	default:
		return ClassOther
	}
}

// ClassFromCOCO maps a COCO class id.
func ClassFromCOCO(id int) (Class, error) {
	if id < 0 || id >= cocoClasses {
		return ClassOther, errors.Wrapf(ErrMalformed, "invalid class id %d", id)
	}
	switch id {
	case COCOPerson:
		return ClassPerson, nil
	case COCOSportsBall:
		return ClassBall, nil
	default:
		return ClassOther, nil
	}
}

// Box is an axis aligned bounding box in pixel or normalized coordinates.
type Box struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Center returns the middle point of the box.
func (b Box) Center() (x, y float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.XMax-b.XMin, b.YMax-b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Validate reports non-finite or inverted coordinates.
func (b Box) Validate() error {
	for _, v := range []float64{b.XMin, b.YMin, b.XMax, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrMalformed, "non-finite box coordinate in %+v", b)
		}
	}
	if b.XMax < b.XMin || b.YMax < b.YMin {
		return errors.Wrapf(ErrMalformed, "inverted box %+v", b)
	}
	return nil
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b Box) float64 {
	inter := Box{
		XMin: math.Max(a.XMin, b.XMin),
		YMin: math.Max(a.YMin, b.YMin),
		XMax: math.Min(a.XMax, b.XMax),
		YMax: math.Min(a.YMax, b.YMax),
	}.Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one object found in one frame.
type Detection struct {
	Class      Class
	Box        Box
	Confidence float64
	FrameIndex int
	Timestamp  float64
}

// Validate checks the class and the box.
func (d Detection) Validate() error {
	if d.Class < ClassOther || d.Class > ClassBall {
		return errors.Wrapf(ErrMalformed, "invalid class %d", int(d.Class))
	}
	if math.IsNaN(d.Confidence) {
		return errors.Wrap(ErrMalformed, "confidence is NaN")
	}
	return d.Box.Validate()
}

// Frame groups the detections of a single video frame.
type Frame struct {
	Index      int
	Detections []Detection
}

// StreamInfo describes the video a detection stream was produced from.
// Width and Height are the coordinate extent of the boxes, 1 for normalized
// boxes. FrameCount is zero when unknown.
type StreamInfo struct {
	FPS        float64
	Width      float64
	Height     float64
	FrameCount int
}

// Validate checks that frame rate and geometry are usable.
func (i StreamInfo) Validate() error {
	if !(i.FPS > 0) || math.IsInf(i.FPS, 0) {
		return errors.Errorf("frame rate must be positive, got %v", i.FPS)
	}
	if !(i.Width > 0) || !(i.Height > 0) {
		return errors.Errorf("frame size must be positive, got %vx%v", i.Width, i.Height)
	}
	if i.FrameCount < 0 {
		return errors.Errorf("frame count cannot be negative, got %d", i.FrameCount)
	}
	return nil
}

// Timestamp converts a frame index to seconds.
func (i StreamInfo) Timestamp(index int) float64 {
	return float64(index) / i.FPS
}
