package onnx

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"
)

// f16Table is a lookup table of all 65536 float16 bit patterns converted
// to float32, trading 256KB of memory for avoiding per element conversion
// cost when reading half precision output tensors
var f16Table = buildF16Table()

func buildF16Table() *[65536]float32 {

	var table [65536]float32

	for i := range table {
		table[i] = float16.Frombits(uint16(i)).Float32()
	}

	return &table
}

// halfBytes converts a float32 slice to little endian float16 bytes
func halfBytes(input []float32) []byte {

	out := make([]byte, len(input)*2)

	for i, val := range input {
		binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(val).Bits())
	}

	return out
}

// halfToFloat32 converts little endian float16 bytes back to float32
// through the lookup table
func halfToFloat32(raw []byte) []float32 {

	out := make([]float32, len(raw)/2)

	for i := range out {
		out[i] = f16Table[binary.LittleEndian.Uint16(raw[i*2:])]
	}

	return out
}

// runHalf executes the session with float16 tensors for models exported
// at half precision
func (d *Detector) runHalf(input []float32, size int) ([]float32, error) {

	inShape := ort.NewShape(1, 3, int64(size), int64(size))

	inTensor, err := ort.NewCustomDataTensor(inShape, halfBytes(input),
		ort.TensorElementDataTypeFloat16)

	if err != nil {
		return nil, fmt.Errorf("creating fp16 input tensor: %w", err)
	}

	defer inTensor.Destroy()

	rows := 4 + d.yolo.Params.ObjectClassNum
	anchors := anchorCount(size)

	outShape := ort.NewShape(1, int64(rows), int64(anchors))

	outTensor, err := ort.NewCustomDataTensor(outShape,
		make([]byte, rows*anchors*2), ort.TensorElementDataTypeFloat16)

	if err != nil {
		return nil, fmt.Errorf("creating fp16 output tensor: %w", err)
	}

	defer outTensor.Destroy()

	err = d.session.Run([]ort.Value{inTensor}, []ort.Value{outTensor})

	if err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}

	return halfToFloat32(outTensor.GetData()), nil
}
