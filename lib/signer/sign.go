package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
)

// Sign signs data with key using alg. AlgUnspecified selects the key type's
// default algorithm.
func Sign(key *Key, alg Algorithm, data []byte) ([]byte, Algorithm, error) {
	alg, digest, err := prepare(key, alg, data)
	if err != nil {
		return nil, alg, err
	}
	if !key.active {
		return nil, alg, fmt.Errorf("%w: %s", ErrKeyInactive, key.id)
	}

	var sig []byte
	switch priv := key.private.(type) {
	case *rsa.PrivateKey:
		if alg.isPSS() {
			sig, err = rsa.SignPSS(rand.Reader, priv, alg.Hash(), digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		} else {
			sig, err = rsa.SignPKCS1v15(rand.Reader, priv, alg.Hash(), digest)
		}
	case *ecdsa.PrivateKey:
		sig, err = ecdsa.SignASN1(rand.Reader, priv, digest)
	default:
		err = fmt.Errorf("%w: unsupported private key %T", ErrInvalidKeyType, priv)
	}
	if err != nil {
		return nil, alg, fmt.Errorf("signing with %s: %w", key.id, err)
	}
	return sig, alg, nil
}

// Verify reports whether sig is a valid signature of data by key under alg.
// An error is only returned when the inputs cannot be checked at all.
func Verify(key *Key, alg Algorithm, data, sig []byte) (bool, error) {
	alg, digest, err := prepare(key, alg, data)
	if err != nil {
		return false, err
	}
	if len(sig) == 0 {
		return false, nil
	}
	return VerifyDigest(key.Public(), alg, digest, sig), nil
}

// VerifyDigest checks sig against an already hashed digest with a public key
func VerifyDigest(pub crypto.PublicKey, alg Algorithm, digest, sig []byte) bool {
	switch pk := pub.(type) {
	case *rsa.PublicKey:
		switch {
		case alg.isPSS():
			return rsa.VerifyPSS(pk, alg.Hash(), digest, sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}) == nil
		case alg.isPKCS1():
			return rsa.VerifyPKCS1v15(pk, alg.Hash(), digest, sig) == nil
		}
	case *ecdsa.PublicKey:
		if alg.isECDSA() {
			return ecdsa.VerifyASN1(pk, digest, sig)
		}
	}
	return false
}

// Digest hashes data with the digest of alg
func Digest(alg Algorithm, data []byte) ([]byte, error) {
	h := alg.Hash()
	if h == 0 || !h.Available() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAlgorithm, alg)
	}
	hasher := h.New()
	hasher.Write(data)
	return hasher.Sum(nil), nil
}

// prepare resolves the algorithm, checks it against the key and hashes data
func prepare(key *Key, alg Algorithm, data []byte) (Algorithm, []byte, error) {
	if key == nil {
		return alg, nil, ErrKeyNotFound
	}
	if len(data) == 0 {
		return alg, nil, fmt.Errorf("%w: empty payload", ErrInvalidData)
	}
	if alg == AlgUnspecified {
		alg = key.keyType.DefaultAlgorithm()
	}
	if !alg.Valid() {
		return alg, nil, fmt.Errorf("%w: %s", ErrInvalidAlgorithm, alg)
	}
	if !alg.CompatibleWith(key.keyType) {
		return alg, nil, fmt.Errorf("%w: %s with %s key", ErrAlgorithmMismatch, alg, key.keyType)
	}
	digest, err := Digest(alg, data)
	if err != nil {
		return alg, nil, err
	}
	return alg, digest, nil
}
