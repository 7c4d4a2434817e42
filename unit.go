package detect

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-detect/source"
	"gocv.io/x/gocv"
)

// batch holds the per run state shared between Run and unit processing
type batch struct {
	feed    source.Feed
	predDir string
	// video is set when the feed decodes a video file
	video *source.VideoFeed
	// writer re-encodes annotated video frames, opened on the first frame
	writer *gocv.VideoWriter
}

// close releases the feed and any open video writer
func (b *batch) close() {

	if b.writer != nil {
		b.writer.Close()
		b.writer = nil
	}

	b.feed.Close()
}

// processUnit runs one work unit through the detector and returns the kept
// detections and their records.  An error means the unit failed and
// contributes nothing to the batch records
func (r *Runner) processUnit(b *batch, unit *source.Unit) ([]Detection, []Record, error) {

	var img gocv.Mat

	if unit.Path != "" {
		img = gocv.IMRead(unit.Path, gocv.IMReadColor)
	} else {
		img = unit.Frame
	}

	defer img.Close()

	if img.Empty() {
		return nil, nil, fmt.Errorf("decoding %s failed", unit.Name)
	}

	dets, err := r.det.Detect(img, r.cfg.Conf)

	if err != nil {
		return nil, nil, &InferenceError{Unit: unit.Name, Err: err}
	}

	if r.Filter != nil {
		dets = r.Filter(dets)
	}

	width := img.Cols()
	height := img.Rows()

	// clamp boxes to the source bounds and drop anything degenerate or
	// below threshold so records always satisfy the export contract
	kept := make([]Detection, 0, len(dets))
	recs := make([]Record, 0, len(dets))

	for _, det := range dets {
		det.Box = det.Box.Clamp(width, height)

		if !det.Box.Valid() || det.Confidence < r.cfg.Conf {
			continue
		}

		kept = append(kept, det)

		recs = append(recs, Record{
			Source:    unit.ID(),
			Detection: det,
			Width:     width,
			Height:    height,
		})
	}

	if r.cfg.Annotate {
		r.Annotator.Annotate(&img, kept)

		if err := r.persist(b, unit, img); err != nil {
			return nil, nil, err
		}
	}

	return kept, recs, nil
}

// persist writes the annotated frame, either as an image file alongside
// its original name or appended to the single annotated video
func (r *Runner) persist(b *batch, unit *source.Unit, img gocv.Mat) error {

	if unit.Path != "" {
		dest := filepath.Join(b.predDir, filepath.Base(unit.Path))

		if ok := gocv.IMWrite(dest, img); !ok {
			return fmt.Errorf("error writing annotated image to %s", dest)
		}

		return nil
	}

	if b.writer == nil {
		if err := r.openWriter(b, img); err != nil {
			return err
		}
	}

	if err := b.writer.Write(img); err != nil {
		return fmt.Errorf("error writing annotated video frame: %w", err)
	}

	return nil
}

// openWriter opens the annotated video writer using the source frame rate
// and the dimensions of the first frame
func (r *Runner) openWriter(b *batch, img gocv.Mat) error {

	name := filepath.Join(b.predDir, b.video.Stem()+".mp4")

	fps := b.video.FPS()

	if fps <= 0 {
		// container did not record a frame rate
		fps = 30
	}

	writer, err := gocv.VideoWriterFile(name, "mp4v", fps,
		img.Cols(), img.Rows(), true)

	if err != nil {
		return fmt.Errorf("error opening annotated video %s: %w", name, err)
	}

	if !writer.IsOpened() {
		writer.Close()
		return fmt.Errorf("error opening annotated video %s", name)
	}

	b.writer = writer

	r.Log.WithFields(logrus.Fields{
		"file": name,
		"fps":  fps,
	}).Debug("annotated video writer opened")

	return nil
}
