package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	headerSize = 20

	// MaxFrameSize is the largest payload a frame may carry
	MaxFrameSize = 64 << 20
)

// ErrFrameTooLarge is returned for frames whose payload exceeds MaxFrameSize
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// writeFrame writes one frame:
// - 8 bytes: service id (uint64, big endian)
// - 8 bytes: request id (uint64, big endian)
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func writeFrame(w io.Writer, serviceID, requestID uint64, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[0:8], serviceID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(payload)))

	// one writev for header and payload
	bufs := net.Buffers{header[:], payload}
	_, err := bufs.WriteTo(w)
	return err
}

// readFrame reads one frame. The payload is read into buf when it is large
// enough, otherwise a new slice is allocated; either way the returned payload
// is only valid until buf is reused.
func readFrame(r io.Reader, buf []byte) (serviceID, requestID uint64, payload []byte, err error) {
	var header [headerSize]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, err
	}

	serviceID = binary.BigEndian.Uint64(header[0:8])
	requestID = binary.BigEndian.Uint64(header[8:16])
	length := binary.BigEndian.Uint32(header[16:20])

	if length > MaxFrameSize {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	if length == 0 {
		return serviceID, requestID, []byte{}, nil
	}

	if cap(buf) < int(length) {
		buf = make([]byte, length)
	}
	payload = buf[:length]

	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, err
	}
	return serviceID, requestID, payload, nil
}
