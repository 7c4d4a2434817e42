package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// VideoFeed decodes a video file into per frame work units.  It is a
// single pass over the decoder
type VideoFeed struct {
	cap  *gocv.VideoCapture
	stem string
	next int
	done bool
}

// openVideo opens the decoder for the given video file
func openVideo(path string) (*VideoFeed, error) {

	cap, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, fmt.Errorf("error opening video %s: %w", path, err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	return &VideoFeed{cap: cap, stem: stem}, nil
}

// Next decodes the next frame.  The caller owns the frame Mat and must
// close it after processing
func (f *VideoFeed) Next() (*Unit, error) {

	if f.done {
		return nil, io.EOF
	}

	frame := gocv.NewMat()

	if ok := f.cap.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		f.done = true
		return nil, io.EOF
	}

	unit := &Unit{
		Seq:   f.next,
		Name:  fmt.Sprintf("%s_%06d", f.stem, f.next),
		Frame: frame,
		Index: f.next,
	}

	f.next++

	return unit, nil
}

// FPS returns the source frame rate
func (f *VideoFeed) FPS() float64 {
	return f.cap.Get(gocv.VideoCaptureFPS)
}

// FrameSize returns the frame width and height in pixels
func (f *VideoFeed) FrameSize() (int, int) {
	return int(f.cap.Get(gocv.VideoCaptureFrameWidth)),
		int(f.cap.Get(gocv.VideoCaptureFrameHeight))
}

// FrameCount returns the number of frames reported by the container,
// which is zero for containers that do not record it
func (f *VideoFeed) FrameCount() int {

	count := int(f.cap.Get(gocv.VideoCaptureFrameCount))

	if count < 0 {
		return 0
	}

	return count
}

// Stem returns the video file name without its extension, used to derive
// frame identifiers and the annotated video name
func (f *VideoFeed) Stem() string {
	return f.stem
}

func (f *VideoFeed) Close() error {
	return f.cap.Close()
}
