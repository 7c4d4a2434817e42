// Package dnn runs object detection inference through the OpenCV DNN
// module, loading ONNX, TensorFlow, and Caffe model files.
package dnn

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/swdee/go-detect"
	"github.com/swdee/go-detect/postprocess"
	"github.com/swdee/go-detect/preprocess"
	"gocv.io/x/gocv"
)

// ModelKind selects the output decoding applied to the loaded network
type ModelKind string

const (
	// YOLOv8 decodes the single [1, 4+classes, anchors] output tensor of
	// YOLOv8 family exports
	YOLOv8 ModelKind = "yolov8"
	// SSD decodes the [1, 1, N, 7] detection output of SSD family models
	SSD ModelKind = "ssd"
)

// padColor fills the letterbox borders, the gray used by YOLO training
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Config defines the settings for loading a model into the DNN module
type Config struct {
	// Model is the path to the model weights file
	Model string
	// Graph is an optional model graph file required by some formats,
	// such as .pbtxt for TensorFlow or .prototxt for Caffe
	Graph string
	// Labels are the class names of the label set the model was trained
	// on
	Labels []string
	// Kind selects the output decoding, default YOLOv8
	Kind ModelKind
	// Device selects where inference runs: auto, cpu, cuda, cuda-fp16, or
	// opencl.  auto resolves to cpu so runs are deterministic
	Device string
	// InputSize is the square model input size in pixels.  Defaults to
	// 640 for YOLOv8 and 300 for SSD
	InputSize int
	// NMSThreshold overrides the default intersection over union limit of
	// 0.45 used during non-maximum suppression
	NMSThreshold float32
}

// Detector runs object detection using the OpenCV DNN module
type Detector struct {
	net  gocv.Net
	cfg  Config
	yolo *postprocess.YOLOv8
	ssd  *postprocess.SSD
}

// New loads the model and prepares the network for inference on the
// configured device
func New(cfg Config) (*Detector, error) {

	if cfg.Model == "" {
		return nil, &detect.ModelLoadError{
			Model: cfg.Model,
			Err:   fmt.Errorf("no model file given"),
		}
	}

	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	if cfg.Kind == "" {
		cfg.Kind = YOLOv8
	}

	if cfg.Kind != YOLOv8 && cfg.Kind != SSD {
		return nil, &detect.InvalidConfigError{
			Field:  "Kind",
			Reason: fmt.Sprintf("unknown model kind %q", cfg.Kind),
		}
	}

	if cfg.InputSize == 0 {
		if cfg.Kind == SSD {
			cfg.InputSize = 300
		} else {
			cfg.InputSize = 640
		}
	}

	if cfg.NMSThreshold == 0 {
		cfg.NMSThreshold = 0.45
	}

	backend, target, err := resolveDevice(cfg.Device)

	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(cfg.Model, cfg.Graph)

	if net.Empty() {
		return nil, &detect.ModelLoadError{
			Model: cfg.Model,
			Err:   fmt.Errorf("reading network failed"),
		}
	}

	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	d := &Detector{net: net, cfg: cfg}

	switch cfg.Kind {
	case SSD:
		params := postprocess.SSDCOCOParams()
		d.ssd = postprocess.NewSSD(params)

	default:
		params := postprocess.YOLOv8COCOParams()
		params.NMSThreshold = cfg.NMSThreshold

		if len(cfg.Labels) > 0 {
			params.ObjectClassNum = len(cfg.Labels)
		}

		d.yolo = postprocess.NewYOLOv8(params)
	}

	return d, nil
}

// Detect runs inference on the image and returns the objects found
// scoring at or above conf
func (d *Detector) Detect(img gocv.Mat, conf float32) ([]detect.Detection, error) {

	if img.Empty() {
		return nil, fmt.Errorf("empty input image")
	}

	if d.cfg.Kind == SSD {
		return d.detectSSD(img, conf)
	}

	return d.detectYOLO(img, conf)
}

// detectYOLO letterboxes the frame to the input size and decodes the
// single output tensor
func (d *Detector) detectYOLO(img gocv.Mat, conf float32) ([]detect.Detection, error) {

	size := d.cfg.InputSize

	resizer := preprocess.NewResizer(img.Cols(), img.Rows(), size, size)
	defer resizer.Close()

	boxed := gocv.NewMat()
	defer boxed.Close()

	resizer.LetterBoxResize(img, &boxed, padColor)

	blob := gocv.BlobFromImage(boxed, 1.0/255.0, image.Pt(size, size),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	out := d.net.Forward("")
	defer out.Close()

	tensor, err := out.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("reading output tensor: %w", err)
	}

	d.yolo.Params.BoxThreshold = conf
	results := d.yolo.DetectObjects(tensor, resizer)

	return toDetections(results, d.cfg.Labels), nil
}

// detectSSD scales the frame to the input size with mean subtraction and
// decodes the detection rows
func (d *Detector) detectSSD(img gocv.Mat, conf float32) ([]detect.Detection, error) {

	size := d.cfg.InputSize

	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	out := d.net.Forward("")
	defer out.Close()

	tensor, err := out.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("reading output tensor: %w", err)
	}

	d.ssd.Params.BoxThreshold = conf
	results := d.ssd.DetectObjects(tensor, img.Cols(), img.Rows())

	return toDetections(results, d.cfg.Labels), nil
}

// Close releases the network
func (d *Detector) Close() error {
	return d.net.Close()
}

// toDetections converts post processing results to pipeline detections,
// attaching the label of each class
func toDetections(results []postprocess.DetectResult,
	labels []string) []detect.Detection {

	dets := make([]detect.Detection, 0, len(results))

	for _, res := range results {
		dets = append(dets, detect.Detection{
			Class:      res.Class,
			Label:      detect.LabelFor(labels, res.Class),
			Confidence: res.Probability,
			Box: detect.Box{
				XMin: res.Box.Left,
				YMin: res.Box.Top,
				XMax: res.Box.Right,
				YMax: res.Box.Bottom,
			},
		})
	}

	return dets
}
