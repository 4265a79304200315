package main

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/tensor"
)

// cooDocument is the JSON input: N values and N coordinate rows of length
// len(shape).
type cooDocument struct {
	Shape       []int     `json:"shape"`
	DType       string    `json:"dtype,omitempty"`
	Values      []float64 `json:"values"`
	Coordinates [][]int64 `json:"coordinates"`
}

// denseResult is the JSON output. GradValues is present only when the
// backward pass was run.
type denseResult struct {
	Shape      []int     `json:"shape"`
	DType      string    `json:"dtype"`
	Dense      []float64 `json:"dense"`
	GradValues []float64 `json:"grad_values,omitempty"`
}

func decodeDocument(r io.Reader) (*cooDocument, error) {
	var doc cooDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding COO document")
	}
	return &doc, nil
}

func encodeResult(w io.Writer, res *denseResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(res), "encoding result")
}

func (doc *cooDocument) dataType() (tensor.DataType, error) {
	if doc.DType == "" {
		return tensor.Float32, nil
	}
	dtype, ok := tensor.ParseDataType(doc.DType)
	if !ok {
		return 0, errors.Errorf("unknown dtype %q", doc.DType)
	}
	return dtype, nil
}

// sparseInput is a decoded COO tensor: values (N), coordinates (N, D) and
// the dense shape.
type sparseInput struct {
	values *tensor.RawTensor
	coords *tensor.RawTensor
	shape  tensor.Shape
}

func (in *sparseInput) Release() {
	in.values.Release()
	in.coords.Release()
}

// denseOutput holds host copies of the dense tensor and, after a backward
// pass, the values gradient.
type denseOutput struct {
	dense      *tensor.RawTensor
	gradValues *tensor.RawTensor
}

func (out *denseOutput) Release() {
	out.dense.Release()
	if out.gradValues != nil {
		out.gradValues.Release()
	}
}

func newDenseResult(out *denseOutput) (*denseResult, error) {
	res := &denseResult{Shape: out.dense.Shape().Clone(), DType: out.dense.DType().String()}
	var err error
	if res.Dense, err = tensor.Float64s(out.dense); err != nil {
		return nil, err
	}
	if out.gradValues != nil {
		if res.GradValues, err = tensor.Float64s(out.gradValues); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// input builds the host tensors of the document.
// Value/row count mismatches are left for the operator to reject.
func (doc *cooDocument) input() (*sparseInput, error) {
	values, coords, err := doc.tensors()
	if err != nil {
		return nil, err
	}
	return &sparseInput{values: values, coords: coords, shape: tensor.Shape(doc.Shape).Clone()}, nil
}

func (doc *cooDocument) tensors() (values, coords *tensor.RawTensor, err error) {
	dtype, err := doc.dataType()
	if err != nil {
		return nil, nil, err
	}
	if len(doc.Values) == 0 || len(doc.Coordinates) == 0 {
		return nil, nil, errors.Wrap(tensor.ErrInvalidShape, "document has no entries")
	}

	rank := len(doc.Coordinates[0])
	flat := make([]int64, 0, rank*len(doc.Coordinates))
	for i, row := range doc.Coordinates {
		if len(row) != rank {
			return nil, nil, errors.Wrapf(tensor.ErrInvalidShape, "coordinate row %d has %d entries, row 0 has %d", i, len(row), rank)
		}
		flat = append(flat, row...)
	}
	if rank == 0 {
		return nil, nil, errors.Wrap(tensor.ErrInvalidShape, "empty coordinate rows")
	}

	coords, err = tensor.FromSlice(flat, tensor.Shape{len(doc.Coordinates), rank}, tensor.CPU)
	if err != nil {
		return nil, nil, err
	}
	values, err = tensor.NewRaw(tensor.Shape{len(doc.Values)}, dtype, tensor.CPU)
	if err != nil {
		coords.Release()
		return nil, nil, err
	}
	if err := tensor.FillFloat64(values, func(pos int) float64 { return doc.Values[pos] }); err != nil {
		coords.Release()
		values.Release()
		return nil, nil, err
	}
	return values, coords, nil
}
