package dnn

import (
	"fmt"
	"strings"

	"github.com/swdee/go-detect"
	"gocv.io/x/gocv"
)

// resolveDevice maps a device selector to the DNN backend and target pair
// to configure the network with
func resolveDevice(device string) (gocv.NetBackendType, gocv.NetTargetType, error) {

	switch strings.ToLower(device) {
	case "", "auto", "cpu":
		return gocv.NetBackendDefault, gocv.NetTargetCPU, nil

	case "cuda":
		return gocv.NetBackendCUDA, gocv.NetTargetCUDA, nil

	case "cuda-fp16":
		return gocv.NetBackendCUDA, gocv.NetTargetCUDAFP16, nil

	case "opencl":
		// the OpenCL target carries the FP32 name in gocv
		return gocv.NetBackendOpenCV, gocv.NetTargetFP32, nil
	}

	return 0, 0, &detect.InvalidConfigError{
		Field:  "Device",
		Reason: fmt.Sprintf("unknown device %q", device),
	}
}
