package base

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("hello")},
		{"large", bytes.Repeat([]byte{0xab}, 200*1024)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeFrame(&buf, 7, 42, tc.payload))
			assert.Equal(t, headerSize+len(tc.payload), buf.Len())

			service, id, payload, err := readFrame(&buf, make([]byte, 16))
			require.NoError(t, err)
			assert.Equal(t, uint64(7), service)
			assert.Equal(t, uint64(42), id)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

func TestFrameReusesBuffer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 1, 1, []byte("abc")))

	scratch := make([]byte, 64)
	_, _, payload, err := readFrame(&buf, scratch)
	require.NoError(t, err)
	assert.Equal(t, &scratch[0], &payload[0])
}

func TestFrameTooLarge(t *testing.T) {
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[16:20], MaxFrameSize+1)

	_, _, _, err := readFrame(bytes.NewReader(header[:]), nil)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 1, 1, []byte("truncated payload")))
	short := buf.Bytes()[:buf.Len()-3]

	_, _, _, err := readFrame(bytes.NewReader(short), nil)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, _, err = readFrame(bytes.NewReader(nil), nil)
	require.ErrorIs(t, err, io.EOF)
}
