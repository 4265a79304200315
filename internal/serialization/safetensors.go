package serialization

import (
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/tensor"
)

// maxHeaderSize bounds the JSON header read from a file.
const maxHeaderSize = 100 * 1024 * 1024

const metadataKey = "__metadata__"

// TensorInfo describes one tensor in the header.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) relative to the data section
}

// dtypeName returns the SafeTensors name of dt.
func dtypeName(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float16:
		return "F16", nil
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Int64:
		return "I64", nil
	default:
		return "", errors.Wrapf(ErrUnsupportedType, "%s", dt)
	}
}

func parseDType(name string) (tensor.DataType, error) {
	switch name {
	case "F16":
		return tensor.Float16, nil
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	case "I32":
		return tensor.Int32, nil
	case "I64":
		return tensor.Int64, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "%q", name)
	}
}

// Write encodes tensors and metadata to w. Tensors are laid out in name order.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == metadataKey {
			return errors.Errorf("tensor name %q is reserved", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	compact := make([]*tensor.RawTensor, len(names))
	defer func() {
		for _, c := range compact {
			if c != nil {
				c.Release()
			}
		}
	}()

	var offset int64
	for i, name := range names {
		raw := tensors[name]
		dtype, err := dtypeName(raw.DType())
		if err != nil {
			return errors.Wrapf(err, "tensor %s", name)
		}
		if compact[i], err = tensor.Contiguous(raw); err != nil {
			return errors.Wrapf(err, "tensor %s", name)
		}
		size := int64(raw.ByteSize())
		header[name] = TensorInfo{
			DType:       dtype,
			Shape:       raw.Shape().Clone(),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "marshal header")
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "write header size")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, name := range names {
		c := compact[i]
		if _, err := w.Write(c.Data()[:c.ByteSize()]); err != nil {
			return errors.Wrapf(err, "write tensor %s", name)
		}
	}
	return nil
}

// WriteFile writes tensors and metadata to a new file at path.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	//nolint:gosec // G304: output path is chosen by the user
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create file")
	}
	if err := Write(f, tensors, metadata); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Reader reads tensors from a SafeTensors file.
type Reader struct {
	file       *os.File
	metadata   map[string]string
	tensors    map[string]TensorInfo
	dataOffset int64
	dataSize   int64
}

// Open opens a SafeTensors file and parses its header.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: input path is chosen by the user
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open file")
	}
	r, err := newReader(file)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, path)
	}
	return r, nil
}

func newReader(file *os.File) (*Reader, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, errors.Wrapf(ErrInvalidFormat, "read header size: %v", err)
	}
	if headerSize > maxHeaderSize || int64(headerSize)+8 > stat.Size() { //nolint:gosec // G115: bounded above
		return nil, errors.Wrapf(ErrInvalidFormat, "header size %d", headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, errors.Wrapf(ErrInvalidFormat, "read header: %v", err)
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawMap); err != nil {
		return nil, errors.Wrapf(ErrInvalidFormat, "parse header: %v", err)
	}
	r := &Reader{
		file:       file,
		tensors:    make(map[string]TensorInfo, len(rawMap)),
		dataOffset: int64(8 + headerSize), //nolint:gosec // G115: bounded by file size
	}
	r.dataSize = stat.Size() - r.dataOffset
	for key, value := range rawMap {
		if key == metadataKey {
			if err := json.Unmarshal(value, &r.metadata); err != nil {
				return nil, errors.Wrapf(ErrInvalidFormat, "metadata: %v", err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, errors.Wrapf(ErrInvalidFormat, "tensor %s: %v", key, err)
		}
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > r.dataSize {
			return nil, errors.Wrapf(ErrInvalidFormat, "tensor %s: data offsets [%d, %d) outside %d data bytes", key, start, end, r.dataSize)
		}
		r.tensors[key] = info
	}
	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Metadata returns the header's __metadata__ map, which may be nil.
func (r *Reader) Metadata() map[string]string {
	return r.metadata
}

// TensorNames returns the stored tensor names in sorted order.
func (r *Reader) TensorNames() []string {
	names := make([]string, 0, len(r.tensors))
	for name := range r.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns the header entry of a tensor.
func (r *Reader) TensorInfo(name string) (TensorInfo, error) {
	info, ok := r.tensors[name]
	if !ok {
		return TensorInfo{}, errors.Wrap(ErrTensorNotFound, name)
	}
	return info, nil
}

// LoadTensor reads a tensor into a new host tensor on device.
func (r *Reader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	dtype, err := parseDType(info.DType)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %s", name)
	}
	shape := tensor.Shape(info.Shape)
	want, err := shape.ByteSize(dtype)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidFormat, "tensor %s: %v", name, err)
	}
	// Checked against the header before allocating.
	size := info.DataOffsets[1] - info.DataOffsets[0]
	if size != int64(want) {
		return nil, errors.Wrapf(ErrInvalidFormat, "tensor %s: %d data bytes for %s%v", name, size, dtype, info.Shape)
	}
	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %s", name)
	}
	if _, err := r.file.ReadAt(raw.Data(), r.dataOffset+info.DataOffsets[0]); err != nil {
		raw.Release()
		return nil, errors.Wrapf(err, "read tensor %s", name)
	}
	return raw, nil
}
