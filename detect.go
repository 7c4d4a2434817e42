package detect

import (
	"gocv.io/x/gocv"
)

// Box is an axis aligned bounding box given in pixel coordinates of the
// source image
type Box struct {
	// XMin is the left edge
	XMin int
	// YMin is the top edge
	YMin int
	// XMax is the right edge
	XMax int
	// YMax is the bottom edge
	YMax int
}

// Width returns the box width in pixels
func (b Box) Width() int {
	return b.XMax - b.XMin
}

// Height returns the box height in pixels
func (b Box) Height() int {
	return b.YMax - b.YMin
}

// Area returns the box area in pixels
func (b Box) Area() int {
	return b.Width() * b.Height()
}

// Clamp restricts the box edges to the bounds of an image of the given
// width and height
func (b Box) Clamp(width, height int) Box {
	return Box{
		XMin: clampInt(b.XMin, 0, width),
		YMin: clampInt(b.YMin, 0, height),
		XMax: clampInt(b.XMax, 0, width),
		YMax: clampInt(b.YMax, 0, height),
	}
}

// Valid returns true when the box has positive area
func (b Box) Valid() bool {
	return b.XMax > b.XMin && b.YMax > b.YMin
}

func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Detection defines the attributes of a single object detected in a work
// unit
type Detection struct {
	// Class is the line number in the labels file the Model was trained on
	// defining the Class of the detected object
	Class int
	// Label is the human readable name of the Class
	Label string
	// Confidence is the score of the object detected
	Confidence float32
	// Box are the bounding box dimensions of the object location
	Box Box
}

// Record ties a detection to the work unit it was found in and is the row
// unit of the CSV export
type Record struct {
	// Source identifies the work unit, the image file path or the frame
	// identifier for video units
	Source string
	Detection
	// Width is the pixel width of the source media
	Width int
	// Height is the pixel height of the source media
	Height int
}

// Detector is implemented by model backends to run inference on a single
// frame
type Detector interface {
	// Detect runs inference on the image and returns the objects found
	// scoring at or above conf.  The image is BGR colorspace as produced
	// by IMRead
	Detect(img gocv.Mat, conf float32) ([]Detection, error)
	// Close releases resources held by the backend
	Close() error
}

// Filter prunes a detection list and returns the detections to keep
type Filter func([]Detection) []Detection

// Annotator draws detections onto a frame
type Annotator interface {
	Annotate(img *gocv.Mat, dets []Detection)
}

// Exporter receives the accumulated detection records when a batch
// finishes or is cancelled
type Exporter interface {
	Flush(recs []Record) error
}
