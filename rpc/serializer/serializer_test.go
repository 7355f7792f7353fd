package serializer

import (
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

var createdAt = time.Unix(1_700_000_000, 123456789).UTC()

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		{MsgType: common.MsgTHealth},
		*common.NewEchoRequest([]byte("ping")),
		*common.NewSignRequest("", signer.KeyTypeRSA2048, signer.AlgRSAPSSSHA256, []byte("payload")),
		*common.NewSignResponse("default-rsa-2048", signer.AlgRSAPSSSHA256, []byte{1, 2, 3}, time.Unix(0, 42)),
		*common.NewVerifyRequest("k", signer.KeyTypeECCP384, signer.AlgECDSASHA384, []byte("d"), []byte("s")),
		*common.NewListKeysRequest(signer.KeyTypeECCP256, true),
		*common.NewListKeysResponse([]signer.KeyInfo{
			{KeyID: "a", KeyType: signer.KeyTypeRSA4096, CreatedAt: createdAt, Active: true},
			{KeyID: "b", KeyType: signer.KeyTypeECCP521, CreatedAt: createdAt.Add(time.Second)},
		}),
		*common.NewGenerateKeyResponse(signer.KeyInfo{KeyID: "new", KeyType: signer.KeyTypeECCP256, CreatedAt: createdAt, Active: true}, []byte("der")),
		*common.NewErrorResponse(common.CodeRateLimited, assert.AnError),
		{
			MsgType:    common.MsgTVerify,
			KeyID:      "all-fields",
			KeyType:    signer.KeyTypeRSA3072,
			Algorithm:  signer.AlgRSAPKCS1SHA512,
			Data:       []byte("data"),
			Signature:  []byte("sig"),
			PublicKey:  []byte("pub"),
			ActiveOnly: true,
			Keys:       []signer.KeyInfo{{KeyID: "x", KeyType: signer.KeyTypeRSA2048, CreatedAt: createdAt}},
			Timestamp:  time.Now().UnixNano(),
			Ok:         true,
			Code:       common.CodeInvalidSignature,
			Err:        "invalid signature",
		},
	}
}

// normalize makes time values comparable across encodings
func normalize(msg common.Message) common.Message {
	for i := range msg.Keys {
		msg.Keys[i].CreatedAt = msg.Keys[i].CreatedAt.UTC()
	}
	return msg
}

func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			for i, msg := range testMessages() {
				data, err := s.Serialize(msg)
				require.NoError(t, err, "message %d", i)

				var result common.Message
				require.NoError(t, s.Deserialize(data, &result), "message %d", i)

				assert.Equal(t, normalize(msg), normalize(result), "message %d (%s)", i, msg.MsgType)
			}
		})
	}
}

func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			for msgType := common.MsgTError; msgType <= common.MsgTHealth; msgType++ {
				data, err := s.Serialize(common.Message{MsgType: msgType})
				require.NoError(t, err, msgType.String())

				var result common.Message
				require.NoError(t, s.Deserialize(data, &result), msgType.String())
				assert.Equal(t, msgType, result.MsgType)
			}
		})
	}
}

func TestNewByName(t *testing.T) {
	for _, name := range Names {
		s, err := New(name)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}
	_, err := New("xml")
	assert.Error(t, err)
}

func TestBinaryEmptySlicesStayNonNil(t *testing.T) {
	s := NewBinarySerializer()
	msg := common.Message{MsgType: common.MsgTEcho, Data: []byte{}, Keys: []signer.KeyInfo{}}

	data, err := s.Serialize(msg)
	require.NoError(t, err)

	var result common.Message
	require.NoError(t, s.Deserialize(data, &result))
	assert.NotNil(t, result.Data)
	assert.Empty(t, result.Data)
	assert.NotNil(t, result.Keys)
	assert.Nil(t, result.Signature)
}

func TestBinaryDeserializeResetsMessage(t *testing.T) {
	s := NewBinarySerializer()
	data, err := s.Serialize(common.Message{MsgType: common.MsgTHealth})
	require.NoError(t, err)

	reused := common.Message{KeyID: "stale", Ok: true, Data: []byte("old")}
	require.NoError(t, s.Deserialize(data, &reused))
	assert.Equal(t, common.Message{MsgType: common.MsgTHealth}, reused)
}

func TestBinaryDoesNotAliasInput(t *testing.T) {
	s := NewBinarySerializer()
	data, err := s.Serialize(*common.NewEchoRequest([]byte("abc")))
	require.NoError(t, err)

	var result common.Message
	require.NoError(t, s.Deserialize(data, &result))
	for i := range data {
		data[i] = 0
	}
	assert.Equal(t, "abc", string(result.Data))
}

func TestInvalidBinaryData(t *testing.T) {
	s := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{"empty data", []byte{}, true},
		{"too short header", []byte{1, 0}, true},
		{"valid header only", []byte{1, 0, 0}, false},
		{"key id longer than data", []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, true},
		{"data length without bytes", []byte{1, 0, 8, 0, 0, 0, 10}, true},
		{"huge key count", []byte{1, 0, 128, 0xff, 0xff, 0xff, 0xff}, true},
		{"missing code", []byte{1, 0x04, 0}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := s.Deserialize(tc.data, &msg)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBinaryIsSmallest(t *testing.T) {
	msg := *common.NewSignRequest("default-ecc-p256", signer.KeyTypeECCP256, signer.AlgECDSASHA256, make([]byte, 64))

	sizes := map[string]int{}
	for name, factory := range testSerializers {
		data, err := factory().Serialize(msg)
		require.NoError(t, err)
		sizes[name] = len(data)
	}
	assert.Less(t, sizes["Binary"], sizes["JSON"])
	assert.Less(t, sizes["Binary"], sizes["GOB"])
}

func TestReflectCodecs(t *testing.T) {
	for _, s := range []IRPCSerializer{NewJSONSerializer(), NewGOBSerializer()} {
		t.Run(fmt.Sprintf("%T", s), func(t *testing.T) {
			var msg common.Message
			assert.Error(t, s.Deserialize(nil, &msg))
			assert.Error(t, s.Deserialize([]byte("not a message"), &msg))

			data, err := s.Serialize(*common.NewEchoRequest([]byte("ping")))
			require.NoError(t, err)

			reused := common.Message{KeyID: "stale", Ok: true}
			require.NoError(t, s.Deserialize(data, &reused))
			assert.Equal(t, common.MsgTEcho, reused.MsgType)
			assert.Equal(t, "ping", string(reused.Data))
			assert.Empty(t, reused.KeyID)
			assert.False(t, reused.Ok)
		})
	}
}
