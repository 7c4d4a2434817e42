package preprocess

import (
	"gocv.io/x/gocv"
	"image/color"
	"testing"
)

var (
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

func TestLetterBoxResize(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		resizeWidth   int
		resizeHeight  int
		expectedXPad  int
		expectedYPad  int
		expectedScale float32
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
	}

	for _, tc := range tests {
		img := gocv.NewMatWithSize(tc.srcHeight, tc.srcWidth, gocv.MatTypeCV8UC1)

		resizedImg := gocv.NewMat()

		resizer := NewResizer(tc.srcWidth, tc.srcHeight, tc.resizeWidth, tc.resizeHeight)

		resizer.LetterBoxResize(img, &resizedImg, black)

		if resizer.XPad() != tc.expectedXPad || resizer.YPad() != tc.expectedYPad {
			t.Errorf("Test failed for src (%d, %d): Padding values wrong, expected XPad=%d, YPad=%d, got xPad=%d, yPad=%d",
				tc.srcWidth, tc.srcHeight, tc.expectedXPad, tc.expectedYPad, resizer.XPad(), resizer.YPad())
		}

		if resizer.ScaleFactor() != tc.expectedScale {
			t.Errorf("Test failed for src (%d, %d): Scalefactor incorrect, expected %f, got %f",
				tc.srcWidth, tc.srcHeight, tc.expectedScale, resizer.ScaleFactor())
		}

		img.Close()
		resizedImg.Close()
		resizer.Close()
	}
}

func TestTranslateBox(t *testing.T) {

	tests := []struct {
		srcWidth  int
		srcHeight int
		box       [4]float32
		expected  [4]int
	}{
		// 1280x720 into 640x640 scales by 0.5 with yPad=140
		{1280, 720, [4]float32{100, 240, 300, 440}, [4]int{200, 200, 600, 600}},
		// coordinates inside the padding clamp to the image edge
		{1280, 720, [4]float32{10, 0, 320, 500}, [4]int{20, 0, 640, 720}},
		// 800x1000 into 640x640 scales by 0.64 with xPad=64
		{800, 1000, [4]float32{64, 0, 384, 320}, [4]int{0, 0, 500, 500}},
	}

	for _, tc := range tests {
		resizer := NewResizer(tc.srcWidth, tc.srcHeight, 640, 640)

		left, top, right, bottom := resizer.TranslateBox(
			tc.box[0], tc.box[1], tc.box[2], tc.box[3])

		got := [4]int{left, top, right, bottom}

		if got != tc.expected {
			t.Errorf("Test failed for src (%d, %d) box %v: expected %v, got %v",
				tc.srcWidth, tc.srcHeight, tc.box, tc.expected, got)
		}

		resizer.Close()
	}
}
