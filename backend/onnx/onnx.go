// Package onnx runs object detection inference through ONNX Runtime,
// loading .onnx model files with optional CUDA acceleration and float16
// tensor support.
package onnx

import (
	"fmt"
	"image/color"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/swdee/go-detect"
	"github.com/swdee/go-detect/postprocess"
	"github.com/swdee/go-detect/preprocess"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// padColor fills the letterbox borders, the gray used by YOLO training
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Config defines the settings for loading a model into ONNX Runtime
type Config struct {
	// Model is the path to the .onnx model file
	Model string
	// Labels are the class names of the label set the model was trained
	// on
	Labels []string
	// Library is the path to the onnxruntime shared library.  When empty
	// a platform default name is used, relying on the system loader
	// search path
	Library string
	// Device selects where inference runs: auto, cpu, cuda, or a GPU
	// index such as "0".  auto resolves to cpu
	Device string
	// InputSize is the square model input size in pixels, default 640
	InputSize int
	// InputName is the model graph input tensor name, default "images" as
	// used by YOLOv8 exports
	InputName string
	// OutputName is the model graph output tensor name, default "output0"
	OutputName string
	// Half marks the model as exported with float16 tensors
	Half bool
	// NMSThreshold overrides the default intersection over union limit of
	// 0.45 used during non-maximum suppression
	NMSThreshold float32
}

// the onnxruntime environment is process wide and initialised once
var (
	initOnce sync.Once
	initErr  error
)

// initEnvironment points the runtime at the shared library and initialises
// the process wide environment
func initEnvironment(library string) error {

	initOnce.Do(func() {
		if library == "" {
			library = defaultLibrary()
		}

		ort.SetSharedLibraryPath(library)
		initErr = ort.InitializeEnvironment()
	})

	return initErr
}

// defaultLibrary returns the platform default shared library name
func defaultLibrary() string {

	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	}

	return "libonnxruntime.so"
}

// Detector runs object detection using ONNX Runtime
type Detector struct {
	session *ort.DynamicAdvancedSession
	cfg     Config
	yolo    *postprocess.YOLOv8
}

// New loads the model and prepares an inference session on the configured
// device
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

	if cfg.InputSize == 0 {
		cfg.InputSize = 640
	}

	if cfg.InputName == "" {
		cfg.InputName = "images"
	}

	if cfg.OutputName == "" {
		cfg.OutputName = "output0"
	}

	if cfg.NMSThreshold == 0 {
		cfg.NMSThreshold = 0.45
	}

	if err := initEnvironment(cfg.Library); err != nil {
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	opts, err := ort.NewSessionOptions()

	if err != nil {
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	defer opts.Destroy()

	threads := runtime.NumCPU()

	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	if err := opts.SetInterOpNumThreads(threads); err != nil {
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	if err := configureDevice(opts, cfg.Device); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.Model,
		[]string{cfg.InputName}, []string{cfg.OutputName}, opts)

	if err != nil {
		return nil, &detect.ModelLoadError{Model: cfg.Model, Err: err}
	}

	params := postprocess.YOLOv8COCOParams()
	params.NMSThreshold = cfg.NMSThreshold

	if len(cfg.Labels) > 0 {
		params.ObjectClassNum = len(cfg.Labels)
	}

	return &Detector{
		session: session,
		cfg:     cfg,
		yolo:    postprocess.NewYOLOv8(params),
	}, nil
}

// configureDevice appends the execution provider for the selected device.
// The cpu provider is always present as the fallback
func configureDevice(opts *ort.SessionOptions, device string) error {

	device = strings.ToLower(device)

	gpu := "0"

	switch device {
	case "", "auto", "cpu":
		return nil

	case "cuda":
		// first GPU

	default:
		if _, err := strconv.Atoi(device); err != nil {
			return &detect.InvalidConfigError{
				Field:  "Device",
				Reason: fmt.Sprintf("unknown device %q", device),
			}
		}
		gpu = device
	}

	cudaOpts, err := ort.NewCUDAProviderOptions()

	if err != nil {
		return &detect.ModelLoadError{Model: "cuda provider", Err: err}
	}

	defer cudaOpts.Destroy()

	if err := cudaOpts.Update(map[string]string{"device_id": gpu}); err != nil {
		return &detect.ModelLoadError{Model: "cuda provider", Err: err}
	}

	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return &detect.ModelLoadError{Model: "cuda provider", Err: err}
	}

	return nil
}

// Detect runs inference on the image and returns the objects found
// scoring at or above conf
func (d *Detector) Detect(img gocv.Mat, conf float32) ([]detect.Detection, error) {

	if img.Empty() {
		return nil, fmt.Errorf("empty input image")
	}

	size := d.cfg.InputSize

	resizer := preprocess.NewResizer(img.Cols(), img.Rows(), size, size)
	defer resizer.Close()

	boxed := gocv.NewMat()
	defer boxed.Close()

	resizer.LetterBoxResize(img, &boxed, padColor)

	input, err := chwTensor(boxed)

	if err != nil {
		return nil, err
	}

	var tensor []float32

	if d.cfg.Half {
		tensor, err = d.runHalf(input, size)
	} else {
		tensor, err = d.run(input, size)
	}

	if err != nil {
		return nil, err
	}

	d.yolo.Params.BoxThreshold = conf
	results := d.yolo.DetectObjects(tensor, resizer)

	return toDetections(results, d.cfg.Labels), nil
}

// run executes the session with float32 tensors and returns a copy of the
// output tensor data
func (d *Detector) run(input []float32, size int) ([]float32, error) {

	inShape := ort.NewShape(1, 3, int64(size), int64(size))

	inTensor, err := ort.NewTensor(inShape, input)

	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}

	defer inTensor.Destroy()

	rows := 4 + d.yolo.Params.ObjectClassNum
	anchors := anchorCount(size)

	outShape := ort.NewShape(1, int64(rows), int64(anchors))

	outTensor, err := ort.NewTensor(outShape, make([]float32, rows*anchors))

	if err != nil {
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}

	defer outTensor.Destroy()

	err = d.session.Run([]ort.Value{inTensor}, []ort.Value{outTensor})

	if err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}

	// the tensor data is backed by the runtime, copy it out before the
	// tensor is destroyed
	data := outTensor.GetData()
	tensor := make([]float32, len(data))
	copy(tensor, data)

	return tensor, nil
}

// anchorCount returns the anchor count of a YOLOv8 export for the given
// square input size, the sum of its three stride grids
func anchorCount(size int) int {

	s8 := size / 8
	s16 := size / 16
	s32 := size / 32

	return s8*s8 + s16*s16 + s32*s32
}

// chwTensor converts a letterboxed BGR frame into a normalised NCHW RGB
// float tensor
func chwTensor(img gocv.Mat) ([]float32, error) {

	rgb := gocv.NewMat()
	defer rgb.Close()

	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)

	f32 := gocv.NewMat()
	defer f32.Close()

	rgb.ConvertTo(&f32, gocv.MatTypeCV32F)

	data, err := f32.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("reading frame data: %w", err)
	}

	height := img.Rows()
	width := img.Cols()
	plane := height * width

	chw := make([]float32, 3*plane)

	// interleaved HWC to planar CHW with 1/255 scaling
	for i := 0; i < plane; i++ {
		chw[i] = data[i*3] / 255.0
		chw[plane+i] = data[i*3+1] / 255.0
		chw[2*plane+i] = data[i*3+2] / 255.0
	}

	return chw, nil
}

// Close releases the inference session.  The process wide runtime
// environment stays initialised for other sessions
func (d *Detector) Close() error {

	if d.session == nil {
		return nil
	}

	err := d.session.Destroy()
	d.session = nil

	return err
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
