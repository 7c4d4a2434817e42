package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/swdee/go-detect"
)

func sampleRecords() []detect.Record {
	return []detect.Record{
		{
			Source: "images/street.jpg",
			Detection: detect.Detection{
				Class: 0, Label: "person", Confidence: 0.875,
				Box: detect.Box{XMin: 10, YMin: 20, XMax: 110, YMax: 220},
			},
			Width: 640, Height: 480,
		},
		{
			Source: "images/street.jpg",
			Detection: detect.Detection{
				Class: 2, Label: "car", Confidence: 0.5,
				Box: detect.Box{XMin: 0, YMin: 0, XMax: 640, YMax: 480},
			},
			Width: 640, Height: 480,
		},
	}
}

// readRows parses the CSV file back into rows
func readRows(t *testing.T, path string) [][]string {

	f, err := os.Open(path)

	if err != nil {
		t.Fatalf("Error opening csv: %v", err)
	}

	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()

	if err != nil {
		t.Fatalf("Error reading csv: %v", err)
	}

	return rows
}

func TestFlushRoundTrip(t *testing.T) {

	path := filepath.Join(t.TempDir(), "detections.csv")

	exp := NewCSV(path)

	if err := exp.Flush(sampleRecords()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	rows := readRows(t, path)

	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d rows", len(rows))
	}

	expectedHeader := "image,label,confidence,x_min,y_min,x_max,y_max,width,height"

	if strings.Join(rows[0], ",") != expectedHeader {
		t.Errorf("Wrong header: got %q", strings.Join(rows[0], ","))
	}

	expectedRow := []string{"images/street.jpg", "person", "0.88",
		"10", "20", "110", "220", "640", "480"}

	for i, val := range expectedRow {
		if rows[1][i] != val {
			t.Errorf("Row 1 column %d: expected %q, got %q", i, val, rows[1][i])
		}
	}

	// confidence is rounded to 2 decimal places
	if rows[2][2] != "0.50" {
		t.Errorf("Expected confidence 0.50, got %q", rows[2][2])
	}
}

func TestFlushEmptyWritesHeader(t *testing.T) {

	path := filepath.Join(t.TempDir(), "detections.csv")

	if err := NewCSV(path).Flush(nil); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	rows := readRows(t, path)

	if len(rows) != 1 {
		t.Fatalf("Expected header only file, got %d rows", len(rows))
	}
}

func TestFlushCreatesParentDirs(t *testing.T) {

	path := filepath.Join(t.TempDir(), "a", "b", "detections.csv")

	if err := NewCSV(path).Flush(sampleRecords()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Destination not created: %v", err)
	}
}

func TestFlushLeavesNoTempFiles(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "detections.csv")

	if err := NewCSV(path).Flush(sampleRecords()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	entries, err := os.ReadDir(dir)

	if err != nil {
		t.Fatalf("Error reading dir: %v", err)
	}

	if len(entries) != 1 || entries[0].Name() != "detections.csv" {
		names := make([]string, 0, len(entries))

		for _, e := range entries {
			names = append(names, e.Name())
		}

		t.Errorf("Expected only the destination file, got %v", names)
	}
}

func TestFlushReportsWriteError(t *testing.T) {

	// destination inside a file rather than a directory cannot be created
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")

	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Error writing blocker file: %v", err)
	}

	err := NewCSV(filepath.Join(blocker, "detections.csv")).Flush(sampleRecords())

	if err == nil {
		t.Fatalf("Expected error for unwritable destination")
	}

	if _, ok := err.(*WriteError); !ok {
		t.Errorf("Expected *WriteError, got %T", err)
	}
}
