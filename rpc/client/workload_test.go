package client

import (
	"testing"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandSelector(t *testing.T) {
	names, err := ExpandSelector(WorkloadAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "rsa_sign", "rsa_pss_sign", "ecc_sign", "ecc_p384_sign"}, names)

	names, err = ExpandSelector("verify")
	require.NoError(t, err)
	assert.Equal(t, []string{"verify"}, names)

	_, err = ExpandSelector("mac_sign")
	assert.Error(t, err)
}

func TestWorkloadRequests(t *testing.T) {
	s := serializer.NewBinarySerializer()

	testCases := []struct {
		name    string
		service uint64
		msgType common.MessageType
		keyType signer.KeyType
		alg     signer.Algorithm
	}{
		{WorkloadEcho, common.ServiceEcho, common.MsgTEcho, signer.KeyTypeUnspecified, signer.AlgUnspecified},
		{WorkloadRSASign, common.ServiceSigning, common.MsgTSign, signer.KeyTypeRSA2048, signer.AlgRSAPKCS1SHA256},
		{WorkloadRSAPSSSign, common.ServiceSigning, common.MsgTSign, signer.KeyTypeRSA2048, signer.AlgRSAPSSSHA256},
		{WorkloadECCSign, common.ServiceSigning, common.MsgTSign, signer.KeyTypeECCP256, signer.AlgECDSASHA256},
		{WorkloadECCP384Sign, common.ServiceSigning, common.MsgTSign, signer.KeyTypeECCP384, signer.AlgECDSASHA384},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewWorkload(tc.name, s)
			require.NoError(t, err)
			assert.Equal(t, tc.name, w.Name())
			assert.False(t, w.NeedsPrepare())

			service, payload, err := w.Next(7)
			require.NoError(t, err)
			assert.Equal(t, tc.service, service)

			var msg common.Message
			require.NoError(t, s.Deserialize(payload, &msg))
			assert.Equal(t, tc.msgType, msg.MsgType)
			assert.Equal(t, tc.keyType, msg.KeyType)
			assert.Equal(t, tc.alg, msg.Algorithm)
			assert.Equal(t, "Benchmark data 7", string(msg.Data))
		})
	}

	_, err := NewWorkload(WorkloadAll, s)
	assert.Error(t, err)
}

func TestWorkloadCheck(t *testing.T) {
	s := serializer.NewBinarySerializer()
	encode := func(msg *common.Message) []byte {
		b, err := s.Serialize(*msg)
		require.NoError(t, err)
		return b
	}

	sign, err := NewWorkload(WorkloadECCSign, s)
	require.NoError(t, err)

	assert.NoError(t, sign.Check(encode(common.NewSignResponse("k", signer.AlgECDSASHA256, []byte{1}, time.Now()))))
	assert.Error(t, sign.Check(encode(common.NewSignResponse("k", signer.AlgECDSASHA256, nil, time.Now()))))
	assert.Error(t, sign.Check(encode(common.NewEchoResponse([]byte("x"), time.Now()))))
	assert.Error(t, sign.Check([]byte{1}))

	err = sign.Check(encode(common.NewErrorResponse(common.CodeRateLimited, errRefused)))
	assert.Equal(t, "rejected:rate_limited", ErrorKind(err))
}

func TestVerifyWorkloadNeedsPrepare(t *testing.T) {
	s := serializer.NewBinarySerializer()
	w, err := NewWorkload(WorkloadVerify, s)
	require.NoError(t, err)

	assert.True(t, w.NeedsPrepare())
	_, _, err = w.Next(0)
	assert.Error(t, err)

	// what Prepare stores after signing
	w.template.KeyID = "default-ecc-p256"
	w.template.Signature = []byte("sig")
	assert.False(t, w.NeedsPrepare())

	service, payload, err := w.Next(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(common.ServiceSigning), service)

	var msg common.Message
	require.NoError(t, s.Deserialize(payload, &msg))
	assert.Equal(t, common.MsgTVerify, msg.MsgType)
	assert.Equal(t, "Benchmark verify data", string(msg.Data))
	assert.Equal(t, []byte("sig"), msg.Signature)

	assert.NoError(t, w.Check(func() []byte {
		b, _ := s.Serialize(*common.NewVerifyResponse("default-ecc-p256", true))
		return b
	}()))
	assert.Error(t, w.Check(func() []byte {
		b, _ := s.Serialize(*common.NewVerifyResponse("default-ecc-p256", false))
		return b
	}()))
}
