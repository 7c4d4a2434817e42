// Package report renders per unit progress lines and the final summary of
// a batch run in the format of the command line front end.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/swdee/go-detect"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Printer renders progress and summary report lines.  Wire Unit in as the
// Runner's ProgressFunc and call Done with the batch summary
type Printer struct {
	// Out is where report lines are written
	Out io.Writer
	// Total is the number of units in the batch when known ahead of time.
	// Zero leaves the total out of the progress lines, video containers do
	// not always record a frame count
	Total int
	// OutDir is the output directory named in the summary.  Empty when
	// annotation is disabled
	OutDir string
	// CSVPath is the export destination named in the summary.  Empty when
	// export is disabled
	CSVPath string
	// Stats enables the per label statistics block in the summary
	Stats bool

	// confidence scores per label gathered for the statistics block
	byLabel map[string][]float64
}

// NewPrinter returns a Printer writing to out
func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		Out:     out,
		byLabel: make(map[string][]float64),
	}
}

// Unit prints the report line for one processed work unit
func (p *Printer) Unit(pr detect.Progress) {

	if p.Total > 0 {
		fmt.Fprintf(p.Out, "[%d/%d] %s\n", pr.Seq+1, p.Total, pr.Name)
	} else {
		fmt.Fprintf(p.Out, "[%d] %s\n", pr.Seq+1, pr.Name)
	}

	if pr.Err != nil {
		fmt.Fprintf(p.Out, "  → failed: %v\n", pr.Err)
		return
	}

	if len(pr.Detections) == 0 {
		fmt.Fprintln(p.Out, "  → No objects detected above threshold")
		return
	}

	// report the best score per label, sorted by label
	best := make(map[string]float32)

	for _, det := range pr.Detections {
		if det.Confidence > best[det.Label] {
			best[det.Label] = det.Confidence
		}

		if p.Stats {
			if p.byLabel == nil {
				p.byLabel = make(map[string][]float64)
			}
			p.byLabel[det.Label] = append(p.byLabel[det.Label],
				float64(det.Confidence))
		}
	}

	labels := make([]string, 0, len(best))

	for label := range best {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	parts := make([]string, 0, len(labels))

	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", label, best[label]))
	}

	fmt.Fprintf(p.Out, "  → %s\n", strings.Join(parts, ", "))
}

// Done prints the final batch summary
func (p *Printer) Done(sum detect.Summary) {

	fmt.Fprintf(p.Out,
		"Done in %.2fs: %d unit(s) processed, %d succeeded, %d failed, %d object(s) detected.\n",
		sum.Elapsed.Seconds(), sum.Total, sum.Succeeded, sum.Failed,
		sum.Detections)

	if sum.State == detect.Aborted {
		fmt.Fprintln(p.Out, "Batch aborted before completion.")
	}

	if p.Stats {
		p.printStats()
	}

	if p.OutDir != "" {
		fmt.Fprintf(p.Out, "Outputs saved under: %s\n",
			filepath.Join(p.OutDir, detect.PredDir))
	}

	if p.CSVPath != "" {
		fmt.Fprintf(p.Out, "CSV saved to: %s\n", p.CSVPath)
	}
}

// printStats prints the per label count, best, and mean confidence
func (p *Printer) printStats() {

	if len(p.byLabel) == 0 {
		return
	}

	fmt.Fprintln(p.Out, "Per label:")

	labels := make([]string, 0, len(p.byLabel))

	for label := range p.byLabel {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	for _, label := range labels {
		scores := p.byLabel[label]

		fmt.Fprintf(p.Out, "  %s: %d (best %.2f, mean %.2f)\n",
			label, len(scores), floats.Max(scores), stat.Mean(scores, nil))
	}
}
