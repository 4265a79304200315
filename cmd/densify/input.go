package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/serialization"
	"github.com/born-ml/sparse/tensor"
)

// SafeTensors layout used for input and output files.
const (
	valuesTensor      = "values"
	coordinatesTensor = "coordinates"
	denseTensor       = "dense"
	gradValuesTensor  = "grad_values"
	shapeMetadata     = "shape"
)

// readInput loads a COO tensor from a JSON document or, for .safetensors
// paths, from the "values" and "coordinates" tensors plus a "shape" metadata
// entry holding the dense shape as a JSON list.
func readInput(path string) (*sparseInput, error) {
	if strings.EqualFold(filepath.Ext(path), ".safetensors") {
		return readSafeTensorsInput(path)
	}
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return doc.input()
}

func readDocument(path string) (*cooDocument, error) {
	if path == "-" {
		return decodeDocument(os.Stdin)
	}
	//nolint:gosec // G304: input path is chosen by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening input")
	}
	defer f.Close()
	return decodeDocument(f)
}

func readSafeTensorsInput(path string) (*sparseInput, error) {
	r, err := serialization.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var shape []int
	if err := json.Unmarshal([]byte(r.Metadata()[shapeMetadata]), &shape); err != nil {
		return nil, errors.Wrapf(err, "%s: metadata %q", path, shapeMetadata)
	}
	values, err := r.LoadTensor(valuesTensor, tensor.CPU)
	if err != nil {
		return nil, err
	}
	coords, err := r.LoadTensor(coordinatesTensor, tensor.CPU)
	if err != nil {
		values.Release()
		return nil, err
	}
	return &sparseInput{values: values, coords: coords, shape: shape}, nil
}

// writeSafeTensors stores the dense tensor, and the values gradient when
// present, with the dense shape in the metadata.
func writeSafeTensors(path string, out *denseOutput) error {
	shape, err := json.Marshal(out.dense.Shape())
	if err != nil {
		return errors.Wrap(err, "encoding shape")
	}
	tensors := map[string]*tensor.RawTensor{denseTensor: out.dense}
	if out.gradValues != nil {
		tensors[gradValuesTensor] = out.gradValues
	}
	return serialization.WriteFile(path, tensors, map[string]string{shapeMetadata: string(shape)})
}
