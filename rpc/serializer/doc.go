// Package serializer converts common.Message values to and from the payload
// bytes carried in a frame. Client and server must use the same serializer.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations satisfy.
//
//   - binarySerializerImpl: Custom binary format. A 16 bit presence mask is
//     followed by the present fields only, which keeps small requests (echo,
//     health, sign with the default key) to a few bytes of overhead.
//
//   - jsonSerializerImpl: JSON encoding with enum names instead of numbers,
//     useful for debugging.
//
//   - gobSerializerImpl: Go's gob encoding. Larger and slower than the binary
//     format, kept for comparison in the benchmarks.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	s, err := serializer.New("binary")
//	data, err := s.Serialize(*common.NewHealthRequest())
//	var resp common.Message
//	err = s.Deserialize(received, &resp)
package serializer
