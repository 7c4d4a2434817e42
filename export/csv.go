// Package export writes the accumulated detection records of a batch run
// to external destinations.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/swdee/go-detect"
)

// header is the fixed column layout of the detections CSV
var header = []string{
	"image", "label", "confidence",
	"x_min", "y_min", "x_max", "y_max",
	"width", "height",
}

// WriteError indicates the export destination could not be written.  The
// records held by the caller are untouched and may be flushed again to a
// different destination
type WriteError struct {
	// Path is the destination that failed
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write csv %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// CSV writes detection records to a CSV file.  The file is written under a
// temporary name and renamed into place so a failed write never leaves a
// truncated destination behind
type CSV struct {
	// Path is the destination file.  Missing parent directories are
	// created on flush
	Path string
}

// NewCSV returns a CSV exporter writing to path
func NewCSV(path string) *CSV {
	return &CSV{Path: path}
}

// Flush writes the header and one row per record in the order given.  An
// empty record list produces a header only file
func (c *CSV) Flush(recs []detect.Record) error {

	dir := filepath.Dir(c.Path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: c.Path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".tmp")

	if err != nil {
		return &WriteError{Path: c.Path, Err: err}
	}

	tmpName := tmp.Name()

	if err := c.write(tmp, recs); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: c.Path, Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: c.Path, Err: err}
	}

	if err := os.Rename(tmpName, c.Path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: c.Path, Err: err}
	}

	return nil
}

// write streams the header and record rows to the open file
func (c *CSV) write(f *os.File, recs []detect.Record) error {

	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range recs {
		row := []string{
			rec.Source,
			rec.Label,
			strconv.FormatFloat(float64(rec.Confidence), 'f', 2, 32),
			strconv.Itoa(rec.Box.XMin),
			strconv.Itoa(rec.Box.YMin),
			strconv.Itoa(rec.Box.XMax),
			strconv.Itoa(rec.Box.YMax),
			strconv.Itoa(rec.Width),
			strconv.Itoa(rec.Height),
		}

		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}
