package dnn

import (
	"testing"

	"github.com/swdee/go-detect"
	"gocv.io/x/gocv"
)

func TestResolveDevice(t *testing.T) {

	tests := []struct {
		device  string
		backend gocv.NetBackendType
		target  gocv.NetTargetType
	}{
		{"", gocv.NetBackendDefault, gocv.NetTargetCPU},
		{"auto", gocv.NetBackendDefault, gocv.NetTargetCPU},
		{"cpu", gocv.NetBackendDefault, gocv.NetTargetCPU},
		{"CPU", gocv.NetBackendDefault, gocv.NetTargetCPU},
		{"cuda", gocv.NetBackendCUDA, gocv.NetTargetCUDA},
		{"cuda-fp16", gocv.NetBackendCUDA, gocv.NetTargetCUDAFP16},
		{"opencl", gocv.NetBackendOpenCV, gocv.NetTargetFP32},
	}

	for _, tc := range tests {
		backend, target, err := resolveDevice(tc.device)

		if err != nil {
			t.Errorf("Test failed for device %q: unexpected error %v", tc.device, err)
			continue
		}

		if backend != tc.backend || target != tc.target {
			t.Errorf("Test failed for device %q: expected backend=%d target=%d, got backend=%d target=%d",
				tc.device, tc.backend, tc.target, backend, target)
		}
	}
}

func TestResolveDeviceUnknown(t *testing.T) {

	_, _, err := resolveDevice("tpu")

	if err == nil {
		t.Fatalf("Expected error for unknown device")
	}

	if _, ok := err.(*detect.InvalidConfigError); !ok {
		t.Errorf("Expected *InvalidConfigError, got %T", err)
	}
}

func TestNewMissingModel(t *testing.T) {

	_, err := New(Config{Model: "does-not-exist.onnx"})

	if err == nil {
		t.Fatalf("Expected error for missing model file")
	}

	if _, ok := err.(*detect.ModelLoadError); !ok {
		t.Errorf("Expected *ModelLoadError, got %T", err)
	}
}

func TestNewNoModel(t *testing.T) {

	_, err := New(Config{})

	if err == nil {
		t.Fatalf("Expected error for empty model path")
	}

	if _, ok := err.(*detect.ModelLoadError); !ok {
		t.Errorf("Expected *ModelLoadError, got %T", err)
	}
}
