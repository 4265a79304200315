package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparse/tensor"
)

func TestDecodeDocumentTensors(t *testing.T) {
	doc, err := decodeDocument(strings.NewReader(`{
		"shape": [2, 3],
		"dtype": "int64",
		"values": [7, 9],
		"coordinates": [[0, 2], [1, 0]]
	}`))
	require.NoError(t, err)

	values, coords, err := doc.tensors()
	require.NoError(t, err)
	defer values.Release()
	defer coords.Release()

	assert.Equal(t, tensor.Int64, values.DType())
	assert.Equal(t, []int64{7, 9}, tensor.Values[int64](values))
	assert.True(t, coords.Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []int64{0, 2, 1, 0}, tensor.Values[int64](coords))
}

func TestDocumentDefaultsToFloat32(t *testing.T) {
	doc := &cooDocument{Shape: []int{3}, Values: []float64{1.5}, Coordinates: [][]int64{{2}}}
	values, coords, err := doc.tensors()
	require.NoError(t, err)
	defer values.Release()
	defer coords.Release()
	assert.Equal(t, tensor.Float32, values.DType())
}

func TestDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  cooDocument
	}{
		{"unknown dtype", cooDocument{Shape: []int{2}, DType: "complex64", Values: []float64{1}, Coordinates: [][]int64{{0}}}},
		{"no values", cooDocument{Shape: []int{2}, Coordinates: [][]int64{{0}}}},
		{"ragged rows", cooDocument{Shape: []int{2, 2}, Values: []float64{1, 2}, Coordinates: [][]int64{{0, 0}, {1}}}},
		{"empty rows", cooDocument{Shape: []int{2}, Values: []float64{1}, Coordinates: [][]int64{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.doc.tensors()
			assert.Error(t, err)
		})
	}
}

func TestDecodeDocumentRejectsUnknownFields(t *testing.T) {
	_, err := decodeDocument(strings.NewReader(`{"shape":[1],"values":[1],"coordinates":[[0]],"extra":1}`))
	assert.Error(t, err)
}

func TestEncodeResultOmitsEmptyGradient(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeResult(&buf, &denseResult{Shape: []int{1}, DType: "float32", Dense: []float64{3}}))
	assert.NotContains(t, buf.String(), "grad_values")
	assert.Contains(t, buf.String(), `"dense"`)
}
