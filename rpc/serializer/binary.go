package serializer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and size
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer with a flag based layout:
//
//	byte 0     message type
//	bytes 1-2  presence flags (uint16, big endian)
//	...        present fields in flag order; strings and byte slices are
//	           prefixed with a uint32 length
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKeyID uint16 = 1 << iota
	hasKeyType
	hasAlgorithm
	hasData
	hasSignature
	hasPublicKey
	hasActiveOnly
	hasKeys
	hasTimestamp
	hasOk
	hasCode
	hasErr
)

const headerLen = 3

var errShortData = errors.New("binary message truncated")

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	out := make([]byte, headerLen, b.sizeBytes(msg))
	out[0] = byte(msg.MsgType)

	var flags uint16
	if msg.KeyID != "" {
		flags |= hasKeyID
		out = appendString(out, msg.KeyID)
	}
	if msg.KeyType != signer.KeyTypeUnspecified {
		flags |= hasKeyType
		out = append(out, byte(msg.KeyType))
	}
	if msg.Algorithm != signer.AlgUnspecified {
		flags |= hasAlgorithm
		out = append(out, byte(msg.Algorithm))
	}
	if msg.Data != nil {
		flags |= hasData
		out = appendBytes(out, msg.Data)
	}
	if msg.Signature != nil {
		flags |= hasSignature
		out = appendBytes(out, msg.Signature)
	}
	if msg.PublicKey != nil {
		flags |= hasPublicKey
		out = appendBytes(out, msg.PublicKey)
	}
	if msg.ActiveOnly {
		flags |= hasActiveOnly
	}
	if msg.Keys != nil {
		flags |= hasKeys
		out = binary.BigEndian.AppendUint32(out, uint32(len(msg.Keys)))
		for _, k := range msg.Keys {
			out = appendString(out, k.KeyID)
			out = append(out, byte(k.KeyType))
			out = binary.BigEndian.AppendUint64(out, uint64(k.CreatedAt.UnixNano()))
			out = append(out, boolByte(k.Active))
		}
	}
	if msg.Timestamp != 0 {
		flags |= hasTimestamp
		out = binary.BigEndian.AppendUint64(out, uint64(msg.Timestamp))
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Code != common.CodeOK {
		flags |= hasCode
		out = binary.BigEndian.AppendUint16(out, uint16(msg.Code))
	}
	if msg.Err != "" {
		flags |= hasErr
		out = appendString(out, msg.Err)
	}

	binary.BigEndian.PutUint16(out[1:3], flags)
	return out, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerLen {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := reader{buf: data[headerLen:]}

	if flags&hasKeyID != 0 {
		msg.KeyID = r.string("key id")
	}
	if flags&hasKeyType != 0 {
		msg.KeyType = signer.KeyType(r.byte("key type"))
	}
	if flags&hasAlgorithm != 0 {
		msg.Algorithm = signer.Algorithm(r.byte("algorithm"))
	}
	if flags&hasData != 0 {
		msg.Data = r.bytes("data")
	}
	if flags&hasSignature != 0 {
		msg.Signature = r.bytes("signature")
	}
	if flags&hasPublicKey != 0 {
		msg.PublicKey = r.bytes("public key")
	}
	msg.ActiveOnly = flags&hasActiveOnly != 0
	if flags&hasKeys != 0 {
		n := r.uint32("key count")
		// every entry needs at least 14 bytes, reject counts the data cannot hold
		if r.err == nil && int(n) > len(r.buf)/14 {
			return fmt.Errorf("%w: key count %d", errShortData, n)
		}
		msg.Keys = make([]signer.KeyInfo, 0, n)
		for i := uint32(0); i < n && r.err == nil; i++ {
			info := signer.KeyInfo{KeyID: r.string("key info id")}
			info.KeyType = signer.KeyType(r.byte("key info type"))
			info.CreatedAt = time.Unix(0, int64(r.uint64("key info created"))).UTC()
			info.Active = r.byte("key info active") != 0
			msg.Keys = append(msg.Keys, info)
		}
	}
	if flags&hasTimestamp != 0 {
		msg.Timestamp = int64(r.uint64("timestamp"))
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasCode != 0 {
		msg.Code = common.ErrorCode(r.uint16("code"))
	}
	if flags&hasErr != 0 {
		msg.Err = r.string("err")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerLen
	if msg.KeyID != "" {
		size += 4 + len(msg.KeyID)
	}
	if msg.KeyType != signer.KeyTypeUnspecified {
		size++
	}
	if msg.Algorithm != signer.AlgUnspecified {
		size++
	}
	if msg.Data != nil {
		size += 4 + len(msg.Data)
	}
	if msg.Signature != nil {
		size += 4 + len(msg.Signature)
	}
	if msg.PublicKey != nil {
		size += 4 + len(msg.PublicKey)
	}
	if msg.Keys != nil {
		size += 4
		for _, k := range msg.Keys {
			size += 4 + len(k.KeyID) + 1 + 8 + 1
		}
	}
	if msg.Timestamp != 0 {
		size += 8
	}
	if msg.Code != common.CodeOK {
		size += 2
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	return size
}

func appendBytes(out, b []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(b)))
	return append(out, b...)
}

func appendString(out []byte, s string) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(s)))
	return append(out, s...)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// reader consumes fields from buf; the first failure sticks and later reads
// return zero values
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.err = fmt.Errorf("%w: %s", errShortData, field)
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) byte(field string) byte {
	if b := r.take(1, field); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint16(field string) uint16 {
	if b := r.take(2, field); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) uint32(field string) uint32 {
	if b := r.take(4, field); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) uint64(field string) uint64 {
	if b := r.take(8, field); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// bytes returns a copy so the message does not alias the frame buffer
func (r *reader) bytes(field string) []byte {
	n := r.uint32(field + " length")
	b := r.take(int(n), field)
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}

func (r *reader) string(field string) string {
	n := r.uint32(field + " length")
	return string(r.take(int(n), field))
}
