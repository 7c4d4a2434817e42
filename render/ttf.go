package render

import (
	"image"
	"image/color"
	"image/draw"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// drawTTF renders label text using the TrueType face.  Rendering goes
// through a transparent RGBA overlay composited onto the frame as OpenCV
// cannot draw TrueType fonts directly
func drawTTF(img *gocv.Mat, text string, pos image.Point, f Font) {

	rgba := image.NewRGBA(image.Rect(0, 0, img.Cols(), img.Rows()))

	draw.Draw(rgba, rgba.Bounds(),
		image.NewUniform(color.RGBA{R: 0, G: 0, B: 0, A: 0}),
		image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(f.Color),
		Face: f.TTF,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(pos.X * 64),
			Y: fixed.Int26_6(pos.Y * 64),
		},
	}

	drawer.DrawString(text)

	overlay, err := gocv.NewMatFromBytes(img.Rows(), img.Cols(),
		gocv.MatTypeCV8UC4, rgba.Pix)

	if err != nil || overlay.Empty() {
		return
	}

	defer overlay.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	gocv.CvtColor(overlay, &bgr, gocv.ColorRGBAToBGR)

	gocv.AddWeighted(*img, 1.0, bgr, 1.0, 0, img)
}
