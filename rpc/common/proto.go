package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
)

// --------------------------------------------------------------------------
// Services
// --------------------------------------------------------------------------

// Service ids carried in the frame header
const (
	ServiceEcho    uint64 = 1
	ServiceSigning uint64 = 2
	ServiceHealth  uint64 = 3
)

// ServiceName returns a printable name for a service id
func ServiceName(id uint64) string {
	switch id {
	case ServiceEcho:
		return "echo"
	case ServiceSigning:
		return "signing"
	case ServiceHealth:
		return "health"
	default:
		return fmt.Sprintf("service-%d", id)
	}
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Key selection
	KeyID     string           `json:"key_id,omitempty"`    // Used for: Sign, Verify, GenerateKey, DeleteKey, PublicKey
	KeyType   signer.KeyType   `json:"key_type,omitempty"`  // Used for: Sign, Verify, PublicKey (default key), GenerateKey, ListKeys (filter)
	Algorithm signer.Algorithm `json:"algorithm,omitempty"` // Used for: Sign, Verify

	// Payload
	Data      []byte `json:"data,omitempty"`       // Used for: Echo, Sign, Verify
	Signature []byte `json:"signature,omitempty"`  // Used for: Sign (response), Verify (request)
	PublicKey []byte `json:"public_key,omitempty"` // Used for: GenerateKey, PublicKey responses

	// ListKeys
	ActiveOnly bool             `json:"active_only,omitempty"`
	Keys       []signer.KeyInfo `json:"keys,omitempty"`

	// Response only fields
	Timestamp int64     `json:"timestamp,omitempty"` // server time in unix nanoseconds
	Ok        bool      `json:"ok,omitempty"`        // Used for: Verify (valid), Health (serving), DeleteKey
	Code      ErrorCode `json:"code,omitempty"`      // Zero if no error
	Err       string    `json:"err,omitempty"`       // Empty if no error, otherwise contains the error message
}

// Error returns the remote rejection carried by a response, or nil
func (m *Message) Error() error {
	if m.Code == CodeOK && m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := m.Code
	if code == CodeOK {
		code = CodeInternal
	}
	return NewRemoteRejected(code, m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewEchoRequest creates a new Echo request
func NewEchoRequest(data []byte) *Message {
	return &Message{MsgType: MsgTEcho, Data: data}
}

// NewEchoResponse creates a new Echo response carrying the server time
func NewEchoResponse(data []byte, now time.Time) *Message {
	return &Message{MsgType: MsgTEcho, Data: data, Timestamp: now.UnixNano()}
}

// NewSignRequest creates a new Sign request. An empty keyID selects the
// default key of keyType.
func NewSignRequest(keyID string, keyType signer.KeyType, alg signer.Algorithm, data []byte) *Message {
	return &Message{MsgType: MsgTSign, KeyID: keyID, KeyType: keyType, Algorithm: alg, Data: data}
}

// NewSignResponse creates a new Sign response
func NewSignResponse(keyID string, alg signer.Algorithm, sig []byte, now time.Time) *Message {
	return &Message{MsgType: MsgTSign, KeyID: keyID, Algorithm: alg, Signature: sig, Timestamp: now.UnixNano()}
}

// NewVerifyRequest creates a new Verify request
func NewVerifyRequest(keyID string, keyType signer.KeyType, alg signer.Algorithm, data, sig []byte) *Message {
	return &Message{MsgType: MsgTVerify, KeyID: keyID, KeyType: keyType, Algorithm: alg, Data: data, Signature: sig}
}

// NewVerifyResponse creates a new Verify response
func NewVerifyResponse(keyID string, valid bool) *Message {
	return &Message{MsgType: MsgTVerify, KeyID: keyID, Ok: valid}
}

// NewGenerateKeyRequest creates a new GenerateKey request
func NewGenerateKeyRequest(keyID string, keyType signer.KeyType) *Message {
	return &Message{MsgType: MsgTGenerateKey, KeyID: keyID, KeyType: keyType}
}

// NewGenerateKeyResponse creates a new GenerateKey response
func NewGenerateKeyResponse(info signer.KeyInfo, publicKey []byte) *Message {
	return &Message{
		MsgType:   MsgTGenerateKey,
		KeyID:     info.KeyID,
		KeyType:   info.KeyType,
		PublicKey: publicKey,
		Keys:      []signer.KeyInfo{info},
		Ok:        true,
	}
}

// NewListKeysRequest creates a new ListKeys request
func NewListKeysRequest(filter signer.KeyType, activeOnly bool) *Message {
	return &Message{MsgType: MsgTListKeys, KeyType: filter, ActiveOnly: activeOnly}
}

// NewListKeysResponse creates a new ListKeys response
func NewListKeysResponse(keys []signer.KeyInfo) *Message {
	return &Message{MsgType: MsgTListKeys, Keys: keys}
}

// NewDeleteKeyRequest creates a new DeleteKey request
func NewDeleteKeyRequest(keyID string) *Message {
	return &Message{MsgType: MsgTDeleteKey, KeyID: keyID}
}

// NewDeleteKeyResponse creates a new DeleteKey response
func NewDeleteKeyResponse(keyID string) *Message {
	return &Message{MsgType: MsgTDeleteKey, KeyID: keyID, Ok: true}
}

// NewPublicKeyRequest creates a new PublicKey request
func NewPublicKeyRequest(keyID string, keyType signer.KeyType) *Message {
	return &Message{MsgType: MsgTPublicKey, KeyID: keyID, KeyType: keyType}
}

// NewPublicKeyResponse creates a new PublicKey response
func NewPublicKeyResponse(keyID string, keyType signer.KeyType, der []byte) *Message {
	return &Message{MsgType: MsgTPublicKey, KeyID: keyID, KeyType: keyType, PublicKey: der}
}

// NewHealthRequest creates a new Health request
func NewHealthRequest() *Message {
	return &Message{MsgType: MsgTHealth}
}

// NewHealthResponse creates a new Health response
func NewHealthResponse(serving bool, now time.Time) *Message {
	return &Message{MsgType: MsgTHealth, Ok: serving, Timestamp: now.UnixNano()}
}

// NewErrorResponse creates a response reporting code and err
func NewErrorResponse(code ErrorCode, err error) *Message {
	msg := &Message{MsgType: MsgTError, Code: code}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// --------------------------------------------------------------------------
// Message Types
// --------------------------------------------------------------------------

// MessageType defines the operation of a message
type MessageType uint8

const (
	MsgTUnknown MessageType = iota
	MsgTError               // Indicates an error occurred

	MsgTEcho // Echo the payload back

	// Signing service operations

	MsgTSign        // Sign data with a key
	MsgTVerify      // Verify a signature
	MsgTGenerateKey // Generate a new key pair
	MsgTListKeys    // List stored keys
	MsgTDeleteKey   // Delete a key
	MsgTPublicKey   // Fetch the public half of a key

	MsgTHealth // Report serving status
)

// String returns the string representation of the message type
func (t MessageType) String() string {
	switch t {
	case MsgTError:
		return "error"
	case MsgTEcho:
		return "echo"
	case MsgTSign:
		return "sign"
	case MsgTVerify:
		return "verify"
	case MsgTGenerateKey:
		return "generateKey"
	case MsgTListKeys:
		return "listKeys"
	case MsgTDeleteKey:
		return "deleteKey"
	case MsgTPublicKey:
		return "publicKey"
	case MsgTHealth:
		return "health"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the MessageType as a string
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the string form written by MarshalJSON
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for candidate := MsgTError; candidate <= MsgTHealth; candidate++ {
		if candidate.String() == s {
			*t = candidate
			return nil
		}
	}
	if s == "unknown" {
		*t = MsgTUnknown
		return nil
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// ErrorCode classifies a rejected request
type ErrorCode uint16

const (
	CodeOK ErrorCode = iota
	CodeInvalidKeyID
	CodeInvalidAlgorithm
	CodeInvalidData
	CodeKeyGenerationFailed
	CodeSigningFailed
	CodeVerificationFailed
	CodeKeyNotFound
	CodeKeyAlreadyExists
	CodeInternal
	CodeInvalidSignature
	CodeRateLimited
	CodeUnknownService
	CodeBadRequest
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidKeyID:
		return "invalid_key_id"
	case CodeInvalidAlgorithm:
		return "invalid_algorithm"
	case CodeInvalidData:
		return "invalid_data"
	case CodeKeyGenerationFailed:
		return "key_generation_failed"
	case CodeSigningFailed:
		return "signing_failed"
	case CodeVerificationFailed:
		return "verification_failed"
	case CodeKeyNotFound:
		return "key_not_found"
	case CodeKeyAlreadyExists:
		return "key_already_exists"
	case CodeInternal:
		return "internal_error"
	case CodeInvalidSignature:
		return "invalid_signature"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnknownService:
		return "unknown_service"
	case CodeBadRequest:
		return "bad_request"
	default:
		return fmt.Sprintf("code_%d", uint16(c))
	}
}
