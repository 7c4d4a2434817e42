package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/swdee/go-detect"
	"github.com/swdee/go-detect/backend/dnn"
	"github.com/swdee/go-detect/export"
	"github.com/swdee/go-detect/render"
	"github.com/swdee/go-detect/report"
	"github.com/swdee/go-detect/source"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	modelFile := flag.String("m", "yolov8n.onnx", "YOLOv8 ONNX model file")
	srcPath := flag.String("i", "images", "Directory of images to run object detection on")
	outDir := flag.String("o", "runs/detect", "Output directory for annotated images")
	csvFile := flag.String("c", "detections.csv", "CSV file to write detection records to")

	flag.Parse()

	// classify the input path into a work unit source
	src, err := source.Classify(*srcPath)

	if err != nil {
		log.Fatal("Error reading source: ", err)
	}

	// create detector backed by the OpenCV DNN module
	det, err := dnn.New(dnn.Config{
		Model:  *modelFile,
		Labels: detect.COCOLabels(),
	})

	if err != nil {
		log.Fatal("Error loading model: ", err)
	}

	defer det.Close()

	runner, err := detect.NewRunner(det, detect.Config{
		Conf:     detect.DefaultConf,
		OutDir:   *outDir,
		Annotate: true,
	})

	if err != nil {
		log.Fatal("Error creating runner: ", err)
	}

	// report progress for each image as it is processed
	printer := report.NewPrinter(os.Stdout)
	printer.OutDir = *outDir
	printer.CSVPath = *csvFile

	if total, cerr := src.Count(); cerr == nil {
		printer.Total = total
	}

	runner.Annotator = render.NewRenderer()
	runner.Exporter = export.NewCSV(*csvFile)
	runner.Progress = printer.Unit

	sum, err := runner.Run(context.Background(), src)

	if err != nil {
		log.Fatal("Batch failed with error: ", err)
	}

	printer.Done(sum)
}
