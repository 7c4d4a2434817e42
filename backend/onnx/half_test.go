package onnx

import (
	"testing"
)

func TestHalfRoundTrip(t *testing.T) {

	// values exactly representable in float16 survive the round trip
	values := []float32{0, 1, -1, 0.5, -0.25, 2048, 114}

	got := halfToFloat32(halfBytes(values))

	if len(got) != len(values) {
		t.Fatalf("Expected %d values, got %d", len(values), len(got))
	}

	for i, val := range values {
		if got[i] != val {
			t.Errorf("Value %d: expected %f, got %f", i, val, got[i])
		}
	}
}

func TestHalfTable(t *testing.T) {

	// bit pattern 0x3C00 is 1.0 in float16
	if f16Table[0x3C00] != 1.0 {
		t.Errorf("Expected table entry 0x3C00 to be 1.0, got %f", f16Table[0x3C00])
	}

	// 0x0000 is positive zero
	if f16Table[0x0000] != 0 {
		t.Errorf("Expected table entry 0x0000 to be 0, got %f", f16Table[0x0000])
	}

	// 0xC000 is -2.0
	if f16Table[0xC000] != -2.0 {
		t.Errorf("Expected table entry 0xC000 to be -2.0, got %f", f16Table[0xC000])
	}
}

func TestAnchorCount(t *testing.T) {

	tests := []struct {
		size     int
		expected int
	}{
		{640, 8400},
		{320, 2100},
		{416, 3549},
	}

	for _, tc := range tests {
		if got := anchorCount(tc.size); got != tc.expected {
			t.Errorf("Test failed for size %d: expected %d anchors, got %d",
				tc.size, tc.expected, got)
		}
	}
}
