package client

import (
	"context"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/serializer"
)

// SigningClient is the client stub of the signing, echo and health services.
// It does not own the session; closing it is up to the caller.
type SigningClient struct {
	session    *Manager
	serializer serializer.IRPCSerializer
}

// NewSigningClient creates a stub sending requests over session
func NewSigningClient(session *Manager, s serializer.IRPCSerializer) *SigningClient {
	return &SigningClient{session: session, serializer: s}
}

// Signature is the result of a Sign call
type Signature struct {
	KeyID     string
	Algorithm signer.Algorithm
	Value     []byte
	SignedAt  time.Time
}

// Session returns the underlying session
func (c *SigningClient) Session() *Manager { return c.session }

// Echo sends data to the echo service and returns the echoed bytes together
// with the server time
func (c *SigningClient) Echo(ctx context.Context, data []byte) ([]byte, time.Time, error) {
	resp, err := c.invoke(ctx, common.NewEchoRequest(data))
	if err != nil {
		return nil, time.Time{}, err
	}
	return resp.Data, time.Unix(0, resp.Timestamp), nil
}

// Sign signs data. An empty keyID selects the default key of keyType, an
// unspecified alg the key type's default algorithm.
func (c *SigningClient) Sign(ctx context.Context, keyID string, keyType signer.KeyType, alg signer.Algorithm, data []byte) (Signature, error) {
	resp, err := c.invoke(ctx, common.NewSignRequest(keyID, keyType, alg, data))
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		KeyID:     resp.KeyID,
		Algorithm: resp.Algorithm,
		Value:     resp.Signature,
		SignedAt:  time.Unix(0, resp.Timestamp),
	}, nil
}

// Verify checks sig against data. An invalid signature is (false, nil).
func (c *SigningClient) Verify(ctx context.Context, keyID string, keyType signer.KeyType, alg signer.Algorithm, data, sig []byte) (bool, error) {
	resp, err := c.invoke(ctx, common.NewVerifyRequest(keyID, keyType, alg, data, sig))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// GenerateKey creates a key on the server and returns its info and the DER
// encoded public key
func (c *SigningClient) GenerateKey(ctx context.Context, keyID string, keyType signer.KeyType) (signer.KeyInfo, []byte, error) {
	resp, err := c.invoke(ctx, common.NewGenerateKeyRequest(keyID, keyType))
	if err != nil {
		return signer.KeyInfo{}, nil, err
	}
	info := signer.KeyInfo{KeyID: resp.KeyID, KeyType: resp.KeyType, Active: true}
	if len(resp.Keys) > 0 {
		info = resp.Keys[0]
	}
	return info, resp.PublicKey, nil
}

// ListKeys lists the server's keys, optionally filtered by type
// (KeyTypeUnspecified = all)
func (c *SigningClient) ListKeys(ctx context.Context, filter signer.KeyType, activeOnly bool) ([]signer.KeyInfo, error) {
	resp, err := c.invoke(ctx, common.NewListKeysRequest(filter, activeOnly))
	if err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// DeleteKey removes a key from the server
func (c *SigningClient) DeleteKey(ctx context.Context, keyID string) error {
	_, err := c.invoke(ctx, common.NewDeleteKeyRequest(keyID))
	return err
}

// PublicKey returns the DER encoded public key
func (c *SigningClient) PublicKey(ctx context.Context, keyID string, keyType signer.KeyType) ([]byte, error) {
	resp, err := c.invoke(ctx, common.NewPublicKeyRequest(keyID, keyType))
	if err != nil {
		return nil, err
	}
	return resp.PublicKey, nil
}

// Health reports whether the server is serving
func (c *SigningClient) Health(ctx context.Context) (bool, error) {
	resp, err := c.invoke(ctx, common.NewHealthRequest())
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *SigningClient) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	return invokeRPCRequest(ctx, c.session, req, c.serializer)
}
