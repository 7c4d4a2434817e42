// Package main implements the godetect command, batch object detection
// over an image, a directory of images, or a video file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	detect "github.com/swdee/go-detect"
	"github.com/swdee/go-detect/backend/dnn"
	"github.com/swdee/go-detect/backend/onnx"
	"github.com/swdee/go-detect/export"
	"github.com/swdee/go-detect/filter"
	"github.com/swdee/go-detect/render"
	"github.com/swdee/go-detect/report"
	"github.com/swdee/go-detect/source"
)

func main() {

	// pick up a .env file when present, flag values still win over the
	// environment bindings
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "godetect",
		Usage: "run object detection over images, image directories, and videos",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "image file, directory of images, or video file to process",
				EnvVars:  []string{"DETECT_SOURCE"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Value:   "yolov8n.onnx",
				Usage:   "model weights file",
				EnvVars: []string{"DETECT_MODEL"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Value: "dnn",
				Usage: "inference backend, dnn or onnx",
			},
			&cli.StringFlag{
				Name:  "kind",
				Value: "yolov8",
				Usage: "model output layout for the dnn backend, yolov8 or ssd",
			},
			&cli.StringFlag{
				Name:  "graph",
				Usage: "network definition file for caffe or tensorflow models",
			},
			&cli.StringFlag{
				Name:  "labels",
				Usage: "class labels file, .txt one per line or dataset .yaml, defaults to COCO",
			},
			&cli.Float64Flag{
				Name:  "conf",
				Value: float64(detect.DefaultConf),
				Usage: "confidence threshold in the range 0 to 1",
			},
			&cli.StringFlag{
				Name:  "device",
				Value: "auto",
				Usage: "compute device, auto, cpu, cuda, cuda-fp16, or opencl",
			},
			&cli.IntFlag{
				Name:  "size",
				Usage: "square model input size in pixels, default 640, ssd 300",
			},
			&cli.StringFlag{
				Name:    "ort-lib",
				Usage:   "path to the onnxruntime shared library for the onnx backend",
				EnvVars: []string{"ONNXRUNTIME_SHARED_LIBRARY_PATH"},
			},
			&cli.BoolFlag{
				Name:  "half",
				Usage: "model was exported with float16 tensors, onnx backend only",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   detect.DefaultOutDir,
				Usage:   "output directory for annotated media",
			},
			&cli.BoolFlag{
				Name:  "save",
				Value: true,
				Usage: "write annotated copies of the input media",
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "write a CSV record of every detection to this path",
			},
			&cli.StringSliceFlag{
				Name:  "class",
				Usage: "only keep detections with this label, repeatable",
			},
			&cli.IntFlag{
				Name:  "min-area",
				Usage: "drop detections whose box covers fewer pixels than this",
			},
			&cli.StringFlag{
				Name:  "zone",
				Usage: "polygon zone as space separated x,y pairs, keep detections overlapping it",
			},
			&cli.Float64Flag{
				Name:  "zone-overlap",
				Usage: "minimum fraction of a box that must fall inside the zone",
			},
			&cli.StringFlag{
				Name:  "font",
				Usage: "TTF font file for box labels, defaults to the builtin hershey font",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "print per label statistics after the run",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the pipeline together from the command line flags and drives
// the batch
func run(c *cli.Context) error {

	log := newLogger(c.Bool("verbose"))

	src, err := source.Classify(c.String("source"))

	if err != nil {
		var notFound *source.SourceNotFoundError

		if errors.As(err, &notFound) {
			return cli.Exit(err.Error(), 2)
		}

		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	labels, err := loadLabels(c.String("labels"))

	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	det, err := buildDetector(c, labels)

	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	defer det.Close()

	cfg := detect.Config{
		Conf:     float32(c.Float64("conf")),
		OutDir:   c.String("output"),
		Annotate: c.Bool("save"),
	}

	runner, err := detect.NewRunner(det, cfg)

	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	runner.Log = log

	fl, err := buildFilter(c)

	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	runner.Filter = fl

	if cfg.Annotate {
		r := render.NewRenderer()

		if file := c.String("font"); file != "" {
			face, err := render.LoadTTF(file, 14)

			if err != nil {
				return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
			}

			r.Font.TTF = face
		}

		runner.Annotator = r
	}

	csvPath := c.String("csv")

	if csvPath != "" {
		runner.Exporter = export.NewCSV(csvPath)
	}

	total, err := src.Count()

	if err != nil {
		// the count is only used for progress display
		log.WithError(err).Debug("counting work units failed")
		total = 0
	}

	printer := report.NewPrinter(os.Stdout)
	printer.Total = total
	printer.CSVPath = csvPath
	printer.Stats = c.Bool("stats")

	if cfg.Annotate {
		printer.OutDir = cfg.OutDir
	}

	runner.Progress = printer.Unit

	if src.Kind == source.Video {
		fmt.Printf("Running detection on video %s using %s…\n",
			src.Path, c.String("model"))
	} else {
		fmt.Printf("Running detection on %d image(s) using %s…\n",
			total, c.String("model"))
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := runner.Run(ctx, src)

	// the partial summary is still reported after an abort
	printer.Done(sum)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cli.Exit("interrupted", 1)
		}

		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	return nil
}

// newLogger builds the command logger, level comes from LOG_LEVEL with the
// verbose flag forcing debug
func newLogger(verbose bool) *logrus.Logger {

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.InfoLevel

	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := logrus.ParseLevel(env); err == nil {
			level = parsed
		}
	}

	if verbose {
		level = logrus.DebugLevel
	}

	log.SetLevel(level)

	return log
}

// loadLabels resolves the label set, the builtin COCO labels when no file
// is given
func loadLabels(file string) ([]string, error) {

	if file == "" {
		return detect.COCOLabels(), nil
	}

	ext := strings.ToLower(filepath.Ext(file))

	if ext == ".yaml" || ext == ".yml" {
		return detect.LoadLabelsYAML(file)
	}

	return detect.LoadLabels(file)
}

// buildDetector creates the inference backend selected by the flags
func buildDetector(c *cli.Context, labels []string) (detect.Detector, error) {

	switch strings.ToLower(c.String("backend")) {
	case "", "dnn":
		return dnn.New(dnn.Config{
			Model:     c.String("model"),
			Graph:     c.String("graph"),
			Labels:    labels,
			Kind:      dnn.ModelKind(strings.ToLower(c.String("kind"))),
			Device:    c.String("device"),
			InputSize: c.Int("size"),
		})

	case "onnx":
		return onnx.New(onnx.Config{
			Model:     c.String("model"),
			Labels:    labels,
			Library:   c.String("ort-lib"),
			Device:    c.String("device"),
			InputSize: c.Int("size"),
			Half:      c.Bool("half"),
		})
	}

	return nil, &detect.InvalidConfigError{
		Field:  "backend",
		Reason: fmt.Sprintf("unknown backend %q", c.String("backend")),
	}
}

// buildFilter composes the detection filters selected by the flags, nil
// when no filtering was requested
func buildFilter(c *cli.Context) (detect.Filter, error) {

	var filters []detect.Filter

	if classes := c.StringSlice("class"); len(classes) > 0 {
		filters = append(filters, filter.ByLabel(classes...))
	}

	if px := c.Int("min-area"); px > 0 {
		filters = append(filters, filter.MinArea(px))
	}

	if arg := c.String("zone"); arg != "" {
		zone, err := filter.ParseZone(arg)

		if err != nil {
			return nil, err
		}

		zone.MinOverlap = c.Float64("zone-overlap")
		filters = append(filters, filter.InZone(zone))
	}

	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	}

	return filter.Chain(filters...), nil
}
