package postprocess

import (
	"github.com/swdee/go-detect/preprocess"
)

// YOLOv8 defines the struct for decoding the single output tensor of the
// YOLOv8 family of models as exported to ONNX, a [4+classes, anchors]
// layout holding box coordinates and per class scores
type YOLOv8 struct {
	// Params are the Model configuration parameters
	Params YOLOv8Params
}

// YOLOv8Params defines the struct containing the YOLOv8 parameters to use
// for post processing operations
type YOLOv8Params struct {
	// BoxThreshold is the minimum probability score required for a bounding
	// box region to be considered for processing
	BoxThreshold float32
	// NMSThreshold is the Non-Maximum Suppression threshold used for defining
	// the maximum allowed Intersection Over Union (IoU) between two
	// bounding boxes for both to be kept
	NMSThreshold float32
	// ObjectClassNum is the number of different object classes the Model has
	// been trained with
	ObjectClassNum int
	// MaxObjectNumber is the maximum number of objects detected that can be
	// returned
	MaxObjectNumber int
}

// YOLOv8COCOParams returns an instance of YOLOv8Params configured with
// default values for a Model trained on the COCO dataset featuring:
// - Object Classes: 80
// - Box Threshold: 0.25
// - NMS Threshold: 0.45
// - Maximum Object Number: 64
func YOLOv8COCOParams() YOLOv8Params {
	return YOLOv8Params{
		BoxThreshold:    0.25,
		NMSThreshold:    0.45,
		ObjectClassNum:  80,
		MaxObjectNumber: 64,
	}
}

// NewYOLOv8 returns an instance of the YOLOv8 post processor
func NewYOLOv8(p YOLOv8Params) *YOLOv8 {
	return &YOLOv8{
		Params: p,
	}
}

// DetectObjects takes the flattened output tensor and runs the object
// detection process, mapping the resulting boxes back to source image
// coordinates through the resizer used to letterbox the input frame
func (y *YOLOv8) DetectObjects(tensor []float32,
	resizer *preprocess.Resizer) []DetectResult {

	rows := 4 + y.Params.ObjectClassNum

	if rows <= 4 || len(tensor) == 0 || len(tensor)%rows != 0 {
		return nil
	}

	anchors := len(tensor) / rows

	var filterBoxes []float32
	var objProbs []float32
	var classID []int

	validCount := 0

	for a := 0; a < anchors; a++ {

		// pick the best scoring class for this anchor
		maxProb := y.Params.BoxThreshold
		maxClass := -1

		for c := 0; c < y.Params.ObjectClassNum; c++ {
			prob := tensor[(4+c)*anchors+a]

			if prob >= maxProb {
				maxProb = prob
				maxClass = c
			}
		}

		if maxClass == -1 {
			continue
		}

		// boxes are encoded as center x, center y, width, height in
		// letterboxed input coordinates
		cx := tensor[0*anchors+a]
		cy := tensor[1*anchors+a]
		w := tensor[2*anchors+a]
		h := tensor[3*anchors+a]

		filterBoxes = append(filterBoxes, cx-w/2, cy-h/2, w, h)
		objProbs = append(objProbs, maxProb)
		classID = append(classID, maxClass)
		validCount++
	}

	if validCount <= 0 {
		// no object detected
		return nil
	}

	// indexArray keeps an index of detected objects to track them during sort
	var indexArray []int

	for i := 0; i < validCount; i++ {
		indexArray = append(indexArray, i)
	}

	quickSortIndiceInverse(objProbs, 0, validCount-1, indexArray)

	// create a unique set of class ID's detected
	classSet := make(map[int]bool)

	for _, id := range classID {
		classSet[id] = true
	}

	// run NMS on each class
	for c := range classSet {
		nms(validCount, filterBoxes, classID, indexArray, c,
			y.Params.NMSThreshold)
	}

	group := make([]DetectResult, 0)
	lastCount := 0

	// collect the surviving boxes in probability order
	for i := 0; i < validCount; i++ {
		if indexArray[i] == -1 || lastCount >= y.Params.MaxObjectNumber {
			continue
		}

		n := indexArray[i]

		x1 := filterBoxes[n*4+0]
		y1 := filterBoxes[n*4+1]
		x2 := x1 + filterBoxes[n*4+2]
		y2 := y1 + filterBoxes[n*4+3]

		left, top, right, bottom := resizer.TranslateBox(x1, y1, x2, y2)

		if right <= left || bottom <= top {
			continue
		}

		result := DetectResult{
			Class: classID[n],
			Box: BoxRect{
				Left:   left,
				Top:    top,
				Right:  right,
				Bottom: bottom,
			},
			Probability: objProbs[i],
		}

		group = append(group, result)
		lastCount++
	}

	return group
}
