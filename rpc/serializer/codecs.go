package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/vsign/rpc/common"
)

// reflectCodec adapts an encoding package that works on whole values to
// IRPCSerializer. The json and gob formats are slower than the binary format
// but make captured traffic readable with standard tooling.
type reflectCodec struct {
	name   string
	encode func(msg *common.Message) ([]byte, error)
	decode func(b []byte, msg *common.Message) error
}

// NewJSONSerializer encodes messages as JSON objects. Payloads appear as
// base64 strings.
func NewJSONSerializer() IRPCSerializer {
	return &reflectCodec{
		name:   "json",
		encode: func(msg *common.Message) ([]byte, error) { return json.Marshal(msg) },
		decode: func(b []byte, msg *common.Message) error { return json.Unmarshal(b, msg) },
	}
}

// NewGOBSerializer encodes messages with encoding/gob. Every message carries
// its own type description since no stream state is kept between calls.
func NewGOBSerializer() IRPCSerializer {
	return &reflectCodec{
		name: "gob",
		encode: func(msg *common.Message) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		decode: func(b []byte, msg *common.Message) error {
			return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
		},
	}
}

func (c *reflectCodec) Serialize(msg common.Message) ([]byte, error) {
	b, err := c.encode(&msg)
	if err != nil {
		return nil, fmt.Errorf("%s: encode %s message: %w", c.name, msg.MsgType, err)
	}
	return b, nil
}

func (c *reflectCodec) Deserialize(b []byte, msg *common.Message) error {
	if len(b) == 0 {
		return fmt.Errorf("%s: empty message", c.name)
	}
	// decoding into a reused message must not keep fields of the previous one
	*msg = common.Message{}
	if err := c.decode(b, msg); err != nil {
		return fmt.Errorf("%s: decode message: %w", c.name, err)
	}
	return nil
}
