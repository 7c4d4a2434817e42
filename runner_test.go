package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/swdee/go-detect/source"
	"gocv.io/x/gocv"
)

// detectFunc adapts a function to the Detector interface for testing
type detectFunc func(img gocv.Mat, conf float32) ([]Detection, error)

func (f detectFunc) Detect(img gocv.Mat, conf float32) ([]Detection, error) {
	return f(img, conf)
}

func (f detectFunc) Close() error {
	return nil
}

// annotateFunc adapts a function to the Annotator interface for testing
type annotateFunc func(img *gocv.Mat, dets []Detection)

func (f annotateFunc) Annotate(img *gocv.Mat, dets []Detection) {
	f(img, dets)
}

// captureExporter records flush calls for inspection
type captureExporter struct {
	recs    []Record
	flushes int
	err     error
}

func (c *captureExporter) Flush(recs []Record) error {

	c.flushes++
	c.recs = recs

	return c.err
}

// writeImages writes small images with the given names under dir
func writeImages(t *testing.T, dir string, names ...string) {

	t.Helper()

	img := gocv.NewMatWithSize(40, 60, gocv.MatTypeCV8UC3)
	defer img.Close()

	for _, name := range names {
		path := filepath.Join(dir, name)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Error creating dir for %s: %v", name, err)
		}

		if ok := gocv.IMWrite(path, img); !ok {
			t.Fatalf("Error writing test image %s", name)
		}
	}
}

// classify resolves a path into a source or fails the test
func classify(t *testing.T, path string) *source.Source {

	t.Helper()

	src, err := source.Classify(path)

	if err != nil {
		t.Fatalf("Classify failed for %s: %v", path, err)
	}

	return src
}

// oneBox returns a detector yielding a single fixed detection per unit
func oneBox(conf float32) detectFunc {
	return func(img gocv.Mat, _ float32) ([]Detection, error) {
		return []Detection{
			{Class: 0, Label: "person", Confidence: conf,
				Box: Box{XMin: 5, YMin: 5, XMax: 25, YMax: 35}},
		}, nil
	}
}

func TestRunnerBatchOrder(t *testing.T) {

	dir := t.TempDir()
	writeImages(t, dir, "c.jpg", "a.jpg", filepath.Join("sub", "b.jpg"))

	runner, err := NewRunner(oneBox(0.9), Config{Conf: 0.25})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	exp := &captureExporter{}
	runner.Exporter = exp

	var order []string

	runner.Progress = func(pr Progress) {
		if pr.Seq != len(order) {
			t.Errorf("Progress out of order: expected seq %d, got %d", len(order), pr.Seq)
		}
		order = append(order, pr.Name)
	}

	sum, err := runner.Run(context.Background(), classify(t, dir))

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// recursive walk sorted by path: a.jpg, c.jpg, sub/b.jpg
	expected := []string{"a.jpg", "c.jpg", "b.jpg"}

	if len(order) != len(expected) {
		t.Fatalf("Expected %d progress calls, got %d", len(expected), len(order))
	}

	for i, name := range expected {
		if order[i] != name {
			t.Errorf("Unit %d: expected %s, got %s", i, name, order[i])
		}
	}

	if sum.Total != 3 || sum.Succeeded != 3 || sum.Failed != 0 {
		t.Errorf("Wrong summary counts: %+v", sum)
	}

	if sum.State != Completed {
		t.Errorf("Expected state Completed, got %s", sum.State)
	}

	if exp.flushes != 1 || len(exp.recs) != 3 {
		t.Fatalf("Expected 1 flush of 3 records, got %d flushes of %d records",
			exp.flushes, len(exp.recs))
	}

	// records follow batch order and carry the full source path
	if exp.recs[0].Source != filepath.Join(dir, "a.jpg") {
		t.Errorf("Record 0 source wrong: %s", exp.recs[0].Source)
	}

	if exp.recs[2].Source != filepath.Join(dir, "sub", "b.jpg") {
		t.Errorf("Record 2 source wrong: %s", exp.recs[2].Source)
	}
}

func TestRunnerRecordBounds(t *testing.T) {

	dir := t.TempDir()
	writeImages(t, dir, "a.jpg")

	// detector returns one box exceeding the 60x40 image and one below
	// the confidence threshold
	det := detectFunc(func(img gocv.Mat, conf float32) ([]Detection, error) {
		return []Detection{
			{Class: 0, Label: "person", Confidence: 0.9,
				Box: Box{XMin: -10, YMin: -5, XMax: 100, YMax: 100}},
			{Class: 2, Label: "car", Confidence: 0.1,
				Box: Box{XMin: 5, YMin: 5, XMax: 20, YMax: 20}},
		}, nil
	})

	runner, err := NewRunner(det, Config{Conf: 0.25})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	exp := &captureExporter{}
	runner.Exporter = exp

	sum, err := runner.Run(context.Background(), classify(t, dir))

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Detections != 1 || len(exp.recs) != 1 {
		t.Fatalf("Expected 1 record, got %d (summary %d)", len(exp.recs), sum.Detections)
	}

	rec := exp.recs[0]

	// box clamped to the image bounds
	if rec.Box.XMin != 0 || rec.Box.YMin != 0 || rec.Box.XMax != 60 || rec.Box.YMax != 40 {
		t.Errorf("Box not clamped to image bounds: %+v", rec.Box)
	}

	if rec.Width != 60 || rec.Height != 40 {
		t.Errorf("Wrong record dimensions: %dx%d", rec.Width, rec.Height)
	}
}

func TestRunnerFailureIsolation(t *testing.T) {

	dir := t.TempDir()
	writeImages(t, dir, "a.jpg", "b.jpg", "c.jpg")

	calls := 0

	det := detectFunc(func(img gocv.Mat, conf float32) ([]Detection, error) {
		calls++

		if calls == 2 {
			return nil, errors.New("tensor shape mismatch")
		}

		return []Detection{
			{Class: 0, Label: "person", Confidence: 0.9,
				Box: Box{XMin: 1, YMin: 1, XMax: 10, YMax: 10}},
		}, nil
	})

	runner, err := NewRunner(det, Config{Conf: 0.25})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	exp := &captureExporter{}
	runner.Exporter = exp

	var failed []string

	runner.Progress = func(pr Progress) {
		if pr.Err != nil {
			failed = append(failed, pr.Name)

			var infErr *InferenceError
			if !errors.As(pr.Err, &infErr) {
				t.Errorf("Expected *InferenceError, got %T", pr.Err)
			}
		}
	}

	sum, err := runner.Run(context.Background(), classify(t, dir))

	if err != nil {
		t.Fatalf("Run must not fail on a per unit error: %v", err)
	}

	if sum.Total != 3 || sum.Succeeded != 2 || sum.Failed != 1 {
		t.Errorf("Wrong summary counts: %+v", sum)
	}

	if len(failed) != 1 || failed[0] != "b.jpg" {
		t.Errorf("Expected b.jpg to fail, got %v", failed)
	}

	// records from the failed unit are absent
	if len(exp.recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(exp.recs))
	}

	for _, rec := range exp.recs {
		if filepath.Base(rec.Source) == "b.jpg" {
			t.Errorf("Failed unit contributed a record: %s", rec.Source)
		}
	}
}

func TestRunnerCancel(t *testing.T) {

	dir := t.TempDir()
	writeImages(t, dir, "a.jpg", "b.jpg", "c.jpg", "d.jpg")

	runner, err := NewRunner(oneBox(0.9), Config{Conf: 0.25})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	exp := &captureExporter{}
	runner.Exporter = exp

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.Progress = func(pr Progress) {
		if pr.Seq == 0 {
			cancel()
		}
	}

	sum, err := runner.Run(ctx, classify(t, dir))

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	if sum.State != Aborted {
		t.Errorf("Expected state Aborted, got %s", sum.State)
	}

	if sum.Total != 1 {
		t.Errorf("Expected 1 unit processed before cancellation, got %d", sum.Total)
	}

	// records gathered before cancellation are flushed
	if exp.flushes != 1 || len(exp.recs) != 1 {
		t.Errorf("Expected 1 flush of 1 record, got %d flushes of %d records",
			exp.flushes, len(exp.recs))
	}

	if runner.State() != Aborted {
		t.Errorf("Expected runner state Aborted, got %s", runner.State())
	}
}

func TestRunnerEmptyDir(t *testing.T) {

	dir := t.TempDir()

	runner, err := NewRunner(oneBox(0.9), Config{Conf: 0.25})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	exp := &captureExporter{}
	runner.Exporter = exp

	sum, err := runner.Run(context.Background(), classify(t, dir))

	if err != nil {
		t.Fatalf("Run failed on empty dir: %v", err)
	}

	if sum.Total != 0 || sum.State != Completed {
		t.Errorf("Expected empty completed batch, got %+v", sum)
	}

	// the exporter still runs so a header only file gets written
	if exp.flushes != 1 || len(exp.recs) != 0 {
		t.Errorf("Expected 1 flush of 0 records, got %d flushes of %d records",
			exp.flushes, len(exp.recs))
	}
}

func TestRunnerSingleUse(t *testing.T) {

	dir := t.TempDir()
	writeImages(t, dir, "a.jpg")

	runner, err := NewRunner(oneBox(0.9), Config{Conf: 0.25})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	if _, err := runner.Run(context.Background(), classify(t, dir)); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	if _, err := runner.Run(context.Background(), classify(t, dir)); err == nil {
		t.Errorf("Expected error on second run")
	}
}

func TestRunnerAnnotates(t *testing.T) {

	dir := t.TempDir()
	writeImages(t, dir, "a.jpg", "b.jpg")

	outDir := t.TempDir()

	runner, err := NewRunner(oneBox(0.9), Config{
		Conf:     0.25,
		OutDir:   outDir,
		Annotate: true,
	})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	annotated := 0

	runner.Annotator = annotateFunc(func(img *gocv.Mat, dets []Detection) {
		annotated++

		if len(dets) != 1 {
			t.Errorf("Expected 1 detection to annotate, got %d", len(dets))
		}
	})

	if _, err := runner.Run(context.Background(), classify(t, dir)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if annotated != 2 {
		t.Errorf("Expected 2 annotate calls, got %d", annotated)
	}

	// annotated copies keep the source base name under the pred dir
	for _, name := range []string{"a.jpg", "b.jpg"} {
		path := filepath.Join(outDir, PredDir, name)

		if _, err := os.Stat(path); err != nil {
			t.Errorf("Annotated copy missing: %v", err)
		}
	}
}

func TestRunnerAnnotatorRequired(t *testing.T) {

	dir := t.TempDir()
	writeImages(t, dir, "a.jpg")

	runner, err := NewRunner(oneBox(0.9), Config{
		Conf:     0.25,
		OutDir:   t.TempDir(),
		Annotate: true,
	})

	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	_, err = runner.Run(context.Background(), classify(t, dir))

	var cfgErr *InvalidConfigError

	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *InvalidConfigError, got %v", err)
	}

	// the batch never started so the runner can still be used
	if runner.State() != Idle {
		t.Errorf("Expected state Idle, got %s", runner.State())
	}
}

func TestRunnerMissingSource(t *testing.T) {

	_, err := source.Classify(filepath.Join(t.TempDir(), "nope"))

	var notFound *source.SourceNotFoundError

	if !errors.As(err, &notFound) {
		t.Fatalf("Expected *SourceNotFoundError, got %v", err)
	}
}

func TestNewRunnerValidation(t *testing.T) {

	if _, err := NewRunner(nil, Config{Conf: 0.25}); err == nil {
		t.Errorf("Expected error for nil detector")
	}

	if _, err := NewRunner(oneBox(0.9), Config{Conf: 1.5}); err == nil {
		t.Errorf("Expected error for out of range confidence")
	}

	if _, err := NewRunner(oneBox(0.9), Config{Conf: -0.1}); err == nil {
		t.Errorf("Expected error for negative confidence")
	}

	if _, err := NewRunner(oneBox(0.9), Config{Conf: 0.25, Annotate: true}); err == nil {
		t.Errorf("Expected error for annotation without an output dir")
	}
}

func TestStateString(t *testing.T) {

	tests := []struct {
		state    State
		expected string
	}{
		{Idle, "Idle"},
		{Running, "Running"},
		{Completed, "Completed"},
		{Aborted, "Aborted"},
	}

	for _, tc := range tests {
		if got := tc.state.String(); got != tc.expected {
			t.Errorf("Expected %s, got %s", tc.expected, got)
		}
	}
}
