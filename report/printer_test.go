package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/swdee/go-detect"
)

func TestUnitLine(t *testing.T) {

	var buf bytes.Buffer

	p := NewPrinter(&buf)
	p.Total = 3

	p.Unit(detect.Progress{
		Seq:  0,
		Name: "street.jpg",
		Detections: []detect.Detection{
			{Label: "person", Confidence: 0.91},
			{Label: "car", Confidence: 0.55},
			{Label: "person", Confidence: 0.62},
		},
	})

	got := buf.String()
	expected := "[1/3] street.jpg\n  → car (0.55), person (0.91)\n"

	if got != expected {
		t.Errorf("Wrong unit report:\nexpected %q\ngot      %q", expected, got)
	}
}

func TestUnitLineNoDetections(t *testing.T) {

	var buf bytes.Buffer

	p := NewPrinter(&buf)
	p.Total = 1

	p.Unit(detect.Progress{Seq: 0, Name: "empty.jpg"})

	got := buf.String()
	expected := "[1/1] empty.jpg\n  → No objects detected above threshold\n"

	if got != expected {
		t.Errorf("Wrong unit report:\nexpected %q\ngot      %q", expected, got)
	}
}

func TestUnitLineFailed(t *testing.T) {

	var buf bytes.Buffer

	p := NewPrinter(&buf)

	p.Unit(detect.Progress{
		Seq:  4,
		Name: "broken.jpg",
		Err:  errors.New("decoding broken.jpg failed"),
	})

	got := buf.String()
	expected := "[5] broken.jpg\n  → failed: decoding broken.jpg failed\n"

	if got != expected {
		t.Errorf("Wrong unit report:\nexpected %q\ngot      %q", expected, got)
	}
}

func TestDoneSummary(t *testing.T) {

	var buf bytes.Buffer

	p := NewPrinter(&buf)
	p.OutDir = "runs/detect"
	p.CSVPath = "out.csv"

	p.Done(detect.Summary{
		Total:      3,
		Succeeded:  2,
		Failed:     1,
		Detections: 5,
		Elapsed:    1500 * time.Millisecond,
		State:      detect.Completed,
	})

	got := buf.String()

	if !strings.Contains(got, "Done in 1.50s: 3 unit(s) processed, 2 succeeded, 1 failed, 5 object(s) detected.") {
		t.Errorf("Summary line missing or wrong, got %q", got)
	}

	if !strings.Contains(got, "Outputs saved under: runs/detect/pred") {
		t.Errorf("Outputs line missing, got %q", got)
	}

	if !strings.Contains(got, "CSV saved to: out.csv") {
		t.Errorf("CSV line missing, got %q", got)
	}

	if strings.Contains(got, "aborted") {
		t.Errorf("Completed run must not report an abort, got %q", got)
	}
}

func TestDoneAborted(t *testing.T) {

	var buf bytes.Buffer

	p := NewPrinter(&buf)

	p.Done(detect.Summary{
		Total:   1,
		Elapsed: time.Second,
		State:   detect.Aborted,
	})

	if !strings.Contains(buf.String(), "Batch aborted before completion.") {
		t.Errorf("Aborted run must be reported, got %q", buf.String())
	}
}

func TestStatsBlock(t *testing.T) {

	var buf bytes.Buffer

	p := NewPrinter(&buf)
	p.Stats = true

	p.Unit(detect.Progress{
		Seq:  0,
		Name: "a.jpg",
		Detections: []detect.Detection{
			{Label: "person", Confidence: 0.8},
			{Label: "person", Confidence: 0.6},
		},
	})

	p.Unit(detect.Progress{
		Seq:  1,
		Name: "b.jpg",
		Detections: []detect.Detection{
			{Label: "car", Confidence: 0.5},
		},
	})

	buf.Reset()

	p.Done(detect.Summary{Total: 2, Succeeded: 2, Detections: 3,
		State: detect.Completed})

	got := buf.String()

	if !strings.Contains(got, "Per label:") {
		t.Fatalf("Stats block missing, got %q", got)
	}

	if !strings.Contains(got, "car: 1 (best 0.50, mean 0.50)") {
		t.Errorf("Car stats wrong, got %q", got)
	}

	if !strings.Contains(got, "person: 2 (best 0.80, mean 0.70)") {
		t.Errorf("Person stats wrong, got %q", got)
	}
}
