package postprocess

// SSD defines the struct for decoding the detection output of the SSD
// family of models, a [1, 1, N, 7] tensor where each row holds the batch
// index, class index, score, and box edges normalised to the range [0, 1]
type SSD struct {
	// Params are the Model configuration parameters
	Params SSDParams
}

// SSDParams defines the struct containing the SSD parameters to use for
// post processing operations
type SSDParams struct {
	// BoxThreshold is the minimum probability score required for a bounding
	// box region to be considered for processing
	BoxThreshold float32
	// MaxObjectNumber is the maximum number of objects detected that can be
	// returned
	MaxObjectNumber int
}

// SSDCOCOParams returns an instance of SSDParams configured with default
// values for a Model trained on the COCO dataset featuring:
// - Box Threshold: 0.25
// - Maximum Object Number: 64
func SSDCOCOParams() SSDParams {
	return SSDParams{
		BoxThreshold:    0.25,
		MaxObjectNumber: 64,
	}
}

// NewSSD returns an instance of the SSD post processor
func NewSSD(p SSDParams) *SSD {
	return &SSD{
		Params: p,
	}
}

// rowLen is the number of values per SSD detection row
const rowLen = 7

// DetectObjects takes the flattened detection tensor and decodes it into
// results in source image coordinates for an image of the given dimensions
func (s *SSD) DetectObjects(tensor []float32,
	srcWidth, srcHeight int) []DetectResult {

	count := len(tensor) / rowLen

	group := make([]DetectResult, 0)

	for i := 0; i < count; i++ {

		if len(group) >= s.Params.MaxObjectNumber {
			break
		}

		row := tensor[i*rowLen : (i+1)*rowLen]

		prob := row[2]

		if prob < s.Params.BoxThreshold {
			continue
		}

		left := clip(row[3]*float32(srcWidth), 0, float32(srcWidth))
		top := clip(row[4]*float32(srcHeight), 0, float32(srcHeight))
		right := clip(row[5]*float32(srcWidth), 0, float32(srcWidth))
		bottom := clip(row[6]*float32(srcHeight), 0, float32(srcHeight))

		if right <= left || bottom <= top {
			continue
		}

		result := DetectResult{
			Class: int(row[1]),
			Box: BoxRect{
				Left:   left,
				Top:    top,
				Right:  right,
				Bottom: bottom,
			},
			Probability: prob,
		}

		group = append(group, result)
	}

	return group
}
