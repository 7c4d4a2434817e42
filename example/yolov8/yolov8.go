package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/swdee/go-detect"
	"github.com/swdee/go-detect/backend/dnn"
	"github.com/swdee/go-detect/render"
	"gocv.io/x/gocv"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	modelFile := flag.String("m", "yolov8n.onnx", "YOLOv8 ONNX model file")
	imgFile := flag.String("i", "bus.jpg", "Image file to run object detection on")
	saveFile := flag.String("o", "bus-out.jpg", "Output file to save annotated image to")

	flag.Parse()

	// create detector backed by the OpenCV DNN module
	det, err := dnn.New(dnn.Config{
		Model:  *modelFile,
		Labels: detect.COCOLabels(),
	})

	if err != nil {
		log.Fatal("Error loading model: ", err)
	}

	defer det.Close()

	// load image
	img := gocv.IMRead(*imgFile, gocv.IMReadColor)

	if img.Empty() {
		log.Fatal("Error reading image from: ", *imgFile)
	}

	defer img.Close()

	// perform inference on image file
	dets, err := det.Detect(img, detect.DefaultConf)

	if err != nil {
		log.Fatal("Inference failed with error: ", err)
	}

	for _, d := range dets {
		fmt.Printf("%s @ (%d %d %d %d) %f\n", d.Label, d.Box.XMin, d.Box.YMin,
			d.Box.XMax, d.Box.YMax, d.Confidence)
	}

	// draw detection boxes on the image and save the result
	render.NewRenderer().Annotate(&img, dets)

	if ok := gocv.IMWrite(*saveFile, img); !ok {
		log.Fatal("Failed to save the image to: ", *saveFile)
	}

	log.Println("done")
}
