package detect

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-detect/source"
)

// State is the lifecycle state of a Runner
type State int

const (
	// Idle is the state before Run is called
	Idle State = iota
	// Running is the state whilst work units are being processed
	Running
	// Completed is the terminal state after all units have been processed
	Completed
	// Aborted is the terminal state after a fatal error or cancellation
	Aborted
)

// String returns the state name
func (s State) String() string {

	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Aborted:
		return "Aborted"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Progress is the notification passed to the ProgressFunc after each work
// unit has been processed
type Progress struct {
	// Seq is the zero based ordinal of the unit in the batch
	Seq int
	// Name is the unit identifier, the image file name or the frame
	// identifier for video units
	Name string
	// Detections are the objects found in the unit after filtering
	Detections []Detection
	// Err is set when the unit failed
	Err error
	// Elapsed is the time since the batch started
	Elapsed time.Duration
}

// ProgressFunc receives per unit progress notifications.  It is called
// from the goroutine running the batch, once per unit in batch order
type ProgressFunc func(Progress)

// Summary is the aggregate outcome of a batch run
type Summary struct {
	// Total is the number of work units processed
	Total int
	// Succeeded is the number of units processed without error
	Succeeded int
	// Failed is the number of units that failed
	Failed int
	// Detections is the total number of objects recorded
	Detections int
	// Elapsed is the batch run time
	Elapsed time.Duration
	// State is the terminal state of the runner
	State State
}

// Runner drives the work units of a source through a Detector in order,
// isolating per unit failures and accumulating detection records.  A
// Runner is single use, create a new one for each batch
type Runner struct {
	// Annotator draws detections onto the annotated copies of the source
	// media.  Required when annotation is enabled in the Config
	Annotator Annotator
	// Exporter receives the accumulated records when the batch finishes or
	// is cancelled.  Optional
	Exporter Exporter
	// Progress receives per unit notifications.  Optional
	Progress ProgressFunc
	// Filter prunes detections after inference.  Optional
	Filter Filter
	// Log receives diagnostic logging
	Log *logrus.Logger

	det Detector
	cfg Config

	mu      sync.Mutex
	state   State
	records []Record
}

// NewRunner returns a Runner that uses det for inference on each work unit
func NewRunner(det Detector, cfg Config) (*Runner, error) {

	if det == nil {
		return nil, &InvalidConfigError{
			Field:  "Detector",
			Reason: "a detector is required",
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		det:   det,
		cfg:   cfg,
		Log:   logrus.StandardLogger(),
		state: Idle,
	}, nil
}

// State returns the current lifecycle state.  It is safe to call from
// other goroutines whilst the batch runs
func (r *Runner) State() State {

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *Runner) setState(s State) {

	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Records returns the detection records accumulated so far.  After a
// failed flush the caller may pass these to a different Exporter, the
// records are not discarded on export failure
func (r *Runner) Records() []Record {

	r.mu.Lock()
	defer r.mu.Unlock()

	recs := make([]Record, len(r.records))
	copy(recs, r.records)

	return recs
}

// Run processes every work unit of src in order and returns the batch
// summary.  Per unit failures are counted and do not stop the batch,
// cancelling ctx stops it between units, flushing the records gathered up
// to that point.  Run may be called once
func (r *Runner) Run(ctx context.Context, src *source.Source) (Summary, error) {

	r.mu.Lock()
	if r.state != Idle {
		state := r.state
		r.mu.Unlock()
		return Summary{State: state}, fmt.Errorf("runner already used, state is %s", state)
	}

	if r.cfg.Annotate && r.Annotator == nil {
		r.mu.Unlock()
		return Summary{State: Idle}, &InvalidConfigError{
			Field:  "Annotator",
			Reason: "an annotator is required when annotation is enabled",
		}
	}

	r.state = Running
	r.mu.Unlock()

	start := time.Now()
	sum := Summary{}

	b, err := r.openBatch(src)

	if err != nil {
		r.setState(Aborted)
		sum.State = Aborted
		sum.Elapsed = time.Since(start)
		return sum, err
	}

	defer b.close()

	for {
		// cooperative cancellation between units
		if cerr := ctx.Err(); cerr != nil {
			r.Log.WithField("processed", sum.Total).Info("batch cancelled")
			r.finish(&sum, start, Aborted)
			r.flushOnCancel()
			return sum, cerr
		}

		unit, err := b.feed.Next()

		if err == io.EOF {
			break
		}

		if err != nil {
			// a broken feed cannot yield the remaining units
			r.finish(&sum, start, Aborted)
			return sum, fmt.Errorf("reading work unit: %w", err)
		}

		dets, recs, perr := r.processUnit(b, unit)

		sum.Total++

		if perr != nil {
			sum.Failed++
			r.Log.WithFields(logrus.Fields{
				"unit": unit.Name,
				"seq":  unit.Seq,
			}).WithError(perr).Warn("work unit failed")
		} else {
			sum.Succeeded++
			sum.Detections += len(recs)

			r.mu.Lock()
			r.records = append(r.records, recs...)
			r.mu.Unlock()
		}

		if r.Progress != nil {
			r.Progress(Progress{
				Seq:        unit.Seq,
				Name:       unit.Name,
				Detections: dets,
				Err:        perr,
				Elapsed:    time.Since(start),
			})
		}
	}

	r.finish(&sum, start, Completed)

	if r.Exporter != nil {
		if err := r.Exporter.Flush(r.records); err != nil {
			return sum, err
		}
	}

	return sum, nil
}

// finish records the terminal state on the runner and summary
func (r *Runner) finish(sum *Summary, start time.Time, state State) {

	r.setState(state)
	sum.State = state
	sum.Elapsed = time.Since(start)
}

// flushOnCancel exports the records gathered before cancellation.  A flush
// failure here is logged rather than returned, the cancellation cause
// takes precedence and the records remain available through Records
func (r *Runner) flushOnCancel() {

	if r.Exporter == nil {
		return
	}

	if err := r.Exporter.Flush(r.records); err != nil {
		r.Log.WithError(err).Error("flush after cancellation failed")
	}
}

// openBatch prepares the per run state, enumerating the source and
// creating the artifact directory when annotation is enabled
func (r *Runner) openBatch(src *source.Source) (*batch, error) {

	if src == nil {
		return nil, &InvalidConfigError{
			Field:  "Source",
			Reason: "a source is required",
		}
	}

	feed, err := src.Open()

	if err != nil {
		return nil, err
	}

	b := &batch{feed: feed}

	if r.cfg.Annotate {
		b.predDir = filepath.Join(r.cfg.OutDir, PredDir)

		if err := os.MkdirAll(b.predDir, 0o755); err != nil {
			feed.Close()
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	// video sources write a single re-encoded annotated video, so hold on
	// to the decoder for its frame rate and naming
	if vf, ok := feed.(*source.VideoFeed); ok {
		b.video = vf
	}

	return b, nil
}
