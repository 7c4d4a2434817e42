// Package render draws detection annotations, bounding boxes and label
// text, onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-detect"
	"gocv.io/x/gocv"
)

// boxLabel holds the precalculated rendering details of a box label so all
// labels can be drawn as the top most layer
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Detections renders the bounding boxes and labels of the detected objects
// onto the image
func Detections(img *gocv.Mat, dets []detect.Detection, font Font,
	lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0)

	// draw detection boxes
	for _, det := range dets {

		// color by object class so the class keeps a stable color across
		// frames
		useClr := ClassColor(det.Class)

		// draw rectangle around detected object
		rect := image.Rect(det.Box.XMin, det.Box.YMin, det.Box.XMax,
			det.Box.YMax)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		// create text for label
		text := fmt.Sprintf("%s %.2f", det.Label, det.Confidence)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Calculate the alignment of text label
		var centerX int

		switch font.Alignment {
		case Center:
			centerX = (det.Box.XMin + det.Box.XMax) / 2

		case Right:
			centerX = det.Box.XMax - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

		case Left:
			fallthrough
		default:
			centerX = det.Box.XMin + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
		}

		// Adjust the label position so the text is centered horizontally
		labelPosition := image.Pt(centerX-textSize.X/2, det.Box.YMin-font.BottomPad)

		// create box for placing text on
		bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
			det.Box.YMin-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, det.Box.YMin)

		// record label rendering details
		nextLabel := boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		}
		boxLabels = append(boxLabels, nextLabel)
	}

	// draw all precalculated box labels so they are the top most layer on
	// the image and don't get overlapped by neighbouring boxes
	for _, box := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		if font.TTF != nil {
			drawTTF(img, box.text, box.textPos, font)
			continue
		}

		// Draw the label over box
		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// Renderer draws detection annotations onto frames using a configured
// font and box style
type Renderer struct {
	// Font used for box labels
	Font Font
	// LineThickness of the bounding boxes
	LineThickness int
}

// NewRenderer returns a Renderer with default styling
func NewRenderer() *Renderer {
	return &Renderer{
		Font:          DefaultFont(),
		LineThickness: 2,
	}
}

// Annotate draws the detections onto the frame
func (r *Renderer) Annotate(img *gocv.Mat, dets []detect.Detection) {
	Detections(img, dets, r.Font, r.LineThickness)
}
