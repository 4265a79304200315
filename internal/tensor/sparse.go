package tensor

import "github.com/pkg/errors"

// ValidateSparse checks that a (values, coordinates) pair can be materialized
// into a dense tensor of shape out: values is rank 1 of length N, coordinates
// is an integral (N, D) tensor and D equals the rank of out.
//
// It inspects shapes only and allocates nothing.
func ValidateSparse(values Shape, coords Shape, coordsDType DataType, out Shape) error {
	if err := out.Validate(); err != nil {
		return errors.Wrap(err, "output shape")
	}
	if len(values) != 1 {
		return errors.Wrapf(ErrInvalidShape, "values must be rank 1, got %v", values)
	}
	if len(coords) != 2 {
		return errors.Wrapf(ErrInvalidShape, "coordinates must be rank 2 (N, D), got %v", coords)
	}
	if !coordsDType.IsInteger() {
		return errors.Wrapf(ErrDTypeMismatch, "coordinates must be integral, got %s", coordsDType)
	}
	if values[0] != coords[0] {
		return errors.Wrapf(ErrInvalidShape, "%d values but %d coordinate rows", values[0], coords[0])
	}
	if coords[1] != len(out) {
		return errors.Wrapf(ErrInvalidShape, "coordinate rank %d does not match output rank %d (shape %v)",
			coords[1], len(out), out)
	}
	return nil
}
