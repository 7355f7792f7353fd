package serializer

import (
	"strconv"
	"testing"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	keys := make([]signer.KeyInfo, 32)
	for i := range keys {
		keys[i] = signer.KeyInfo{KeyID: "key-" + strconv.Itoa(i), KeyType: signer.KeyTypeECCP256, CreatedAt: time.Now(), Active: true}
	}

	return map[string]common.Message{
		"Health":      *common.NewHealthRequest(),
		"EchoSmall":   *common.NewEchoRequest([]byte("ping")),
		"EchoLarge":   *common.NewEchoRequest(make([]byte, 16*1024)),
		"SignRequest": *common.NewSignRequest("", signer.KeyTypeRSA2048, signer.AlgRSAPSSSHA256, make([]byte, 256)),
		"SignRSA":     *common.NewSignResponse("default-rsa-2048", signer.AlgRSAPSSSHA256, make([]byte, 256), time.Now()),
		"SignECC":     *common.NewSignResponse("default-ecc-p256", signer.AlgECDSASHA256, make([]byte, 72), time.Now()),
		"Verify":      *common.NewVerifyRequest("default-rsa-2048", signer.KeyTypeRSA2048, signer.AlgRSAPSSSHA256, make([]byte, 256), make([]byte, 256)),
		"ListKeys":    *common.NewListKeysResponse(keys),
		"Error":       *common.NewErrorResponse(common.CodeKeyNotFound, signer.ErrKeyNotFound),
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				s := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(msg); err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		s := factory()
		for msgName, msg := range messages {
			data, err := s.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}

			b.Run(name+"_"+msgName, func(b *testing.B) {
				b.ReportMetric(float64(len(data)), "bytes")
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var out common.Message
					if err := s.Deserialize(data, &out); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}
