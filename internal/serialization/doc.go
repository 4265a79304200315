// Package serialization reads and writes host tensors in the SafeTensors
// format.
//
// Layout:
//
//	[8 bytes: header size, uint64 little-endian]
//	[header: JSON object, name -> {dtype, shape, data_offsets}, plus __metadata__]
//	[tensor data: raw little-endian bytes, tensors in name order]
//
// Tensors are written row-major; strided views are compacted first.
package serialization
