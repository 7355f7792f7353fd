package server

import (
	"errors"
	"time"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
)

var errMissingSignature = errors.New("signature is empty")

// NewSigningServerAdapter returns the adapter of the signing service. It
// serves all key operations against keys.
func NewSigningServerAdapter(keys *signer.KeyManager, now func() time.Time) IRPCServerAdapter {
	return &signingServerAdapterImpl{keys: keys, now: now}
}

type signingServerAdapterImpl struct {
	keys *signer.KeyManager
	now  func() time.Time
}

func (adapter *signingServerAdapterImpl) Handle(req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTSign:
		key, err := adapter.keys.Resolve(req.KeyID, req.KeyType)
		if err != nil {
			return errorResponse(err, common.CodeKeyNotFound)
		}
		sig, alg, err := signer.Sign(key, req.Algorithm, req.Data)
		if err != nil {
			return errorResponse(err, common.CodeSigningFailed)
		}
		return common.NewSignResponse(key.ID(), alg, sig, adapter.now())

	case common.MsgTVerify:
		if len(req.Signature) == 0 {
			return common.NewErrorResponse(common.CodeInvalidSignature, errMissingSignature)
		}
		key, err := adapter.keys.Resolve(req.KeyID, req.KeyType)
		if err != nil {
			return errorResponse(err, common.CodeKeyNotFound)
		}
		valid, err := signer.Verify(key, req.Algorithm, req.Data, req.Signature)
		if err != nil {
			return errorResponse(err, common.CodeVerificationFailed)
		}
		return common.NewVerifyResponse(key.ID(), valid)

	case common.MsgTGenerateKey:
		info, err := adapter.keys.Generate(req.KeyID, req.KeyType)
		if err != nil {
			return errorResponse(err, common.CodeKeyGenerationFailed)
		}
		key, err := adapter.keys.Get(info.KeyID)
		if err != nil {
			// deleted right after it was created
			return errorResponse(err, common.CodeKeyNotFound)
		}
		return common.NewGenerateKeyResponse(info, key.PublicKeyDER())

	case common.MsgTListKeys:
		keys := adapter.keys.List(req.KeyType, req.ActiveOnly)
		if keys == nil {
			keys = []signer.KeyInfo{}
		}
		return common.NewListKeysResponse(keys)

	case common.MsgTDeleteKey:
		if err := adapter.keys.Delete(req.KeyID); err != nil {
			return errorResponse(err, common.CodeKeyNotFound)
		}
		return common.NewDeleteKeyResponse(req.KeyID)

	case common.MsgTPublicKey:
		key, err := adapter.keys.Resolve(req.KeyID, req.KeyType)
		if err != nil {
			return errorResponse(err, common.CodeKeyNotFound)
		}
		return common.NewPublicKeyResponse(key.ID(), key.Type(), key.PublicKeyDER())

	default:
		return unsupported("signing", req.MsgType)
	}
}

// errorResponse maps a signer error to its wire code. Errors without a
// dedicated code get fallback.
func errorResponse(err error, fallback common.ErrorCode) *common.Message {
	return common.NewErrorResponse(CodeFor(err, fallback), err)
}

// CodeFor returns the wire code for a signer error
func CodeFor(err error, fallback common.ErrorCode) common.ErrorCode {
	switch {
	case errors.Is(err, signer.ErrKeyNotFound):
		return common.CodeKeyNotFound
	case errors.Is(err, signer.ErrKeyExists):
		return common.CodeKeyAlreadyExists
	case errors.Is(err, signer.ErrInvalidKeyID):
		return common.CodeInvalidKeyID
	case errors.Is(err, signer.ErrInvalidKeyType),
		errors.Is(err, signer.ErrInvalidAlgorithm),
		errors.Is(err, signer.ErrAlgorithmMismatch):
		return common.CodeInvalidAlgorithm
	case errors.Is(err, signer.ErrInvalidData):
		return common.CodeInvalidData
	case errors.Is(err, signer.ErrKeyInactive):
		return common.CodeSigningFailed
	default:
		return fallback
	}
}
