package signer

import (
	"crypto"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Key Types
// --------------------------------------------------------------------------

// KeyType identifies the kind and size of a key pair
type KeyType uint8

const (
	KeyTypeUnspecified KeyType = iota
	KeyTypeRSA2048
	KeyTypeRSA3072
	KeyTypeRSA4096
	KeyTypeECCP256
	KeyTypeECCP384
	KeyTypeECCP521
)

// KeyTypes lists every supported key type
var KeyTypes = []KeyType{
	KeyTypeRSA2048, KeyTypeRSA3072, KeyTypeRSA4096,
	KeyTypeECCP256, KeyTypeECCP384, KeyTypeECCP521,
}

func (t KeyType) String() string {
	switch t {
	case KeyTypeRSA2048:
		return "rsa-2048"
	case KeyTypeRSA3072:
		return "rsa-3072"
	case KeyTypeRSA4096:
		return "rsa-4096"
	case KeyTypeECCP256:
		return "ecc-p256"
	case KeyTypeECCP384:
		return "ecc-p384"
	case KeyTypeECCP521:
		return "ecc-p521"
	default:
		return "unspecified"
	}
}

// IsRSA reports whether t is one of the RSA key types
func (t KeyType) IsRSA() bool {
	return t == KeyTypeRSA2048 || t == KeyTypeRSA3072 || t == KeyTypeRSA4096
}

// IsECC reports whether t is one of the elliptic curve key types
func (t KeyType) IsECC() bool {
	return t == KeyTypeECCP256 || t == KeyTypeECCP384 || t == KeyTypeECCP521
}

// Valid reports whether t is a supported key type
func (t KeyType) Valid() bool { return t.IsRSA() || t.IsECC() }

// DefaultAlgorithm returns the algorithm used when a request names none
func (t KeyType) DefaultAlgorithm() Algorithm {
	switch t {
	case KeyTypeRSA2048, KeyTypeRSA3072, KeyTypeRSA4096:
		return AlgRSAPSSSHA256
	case KeyTypeECCP256:
		return AlgECDSASHA256
	case KeyTypeECCP384:
		return AlgECDSASHA384
	case KeyTypeECCP521:
		return AlgECDSASHA512
	default:
		return AlgUnspecified
	}
}

// DefaultKeyID returns the id under which Bootstrap stores the key of type t
func (t KeyType) DefaultKeyID() string { return "default-" + t.String() }

func (t KeyType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *KeyType) UnmarshalText(text []byte) error {
	parsed, err := ParseKeyType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseKeyType accepts "rsa-2048", "RSA_2048", "rsa2048", "KEY_TYPE_RSA_2048"
// and the like. The empty string and "unspecified" parse to KeyTypeUnspecified.
func ParseKeyType(s string) (KeyType, error) {
	switch normalize(s, "key-type-") {
	case "", "unspecified":
		return KeyTypeUnspecified, nil
	case "rsa-2048", "rsa2048":
		return KeyTypeRSA2048, nil
	case "rsa-3072", "rsa3072":
		return KeyTypeRSA3072, nil
	case "rsa-4096", "rsa4096":
		return KeyTypeRSA4096, nil
	case "ecc-p256", "eccp256", "p256", "p-256":
		return KeyTypeECCP256, nil
	case "ecc-p384", "eccp384", "p384", "p-384":
		return KeyTypeECCP384, nil
	case "ecc-p521", "eccp521", "p521", "p-521":
		return KeyTypeECCP521, nil
	default:
		return KeyTypeUnspecified, fmt.Errorf("%w: %q", ErrInvalidKeyType, s)
	}
}

// --------------------------------------------------------------------------
// Signing Algorithms
// --------------------------------------------------------------------------

// Algorithm is a signature scheme together with its digest
type Algorithm uint8

const (
	AlgUnspecified Algorithm = iota
	AlgRSAPSSSHA256
	AlgRSAPSSSHA384
	AlgRSAPSSSHA512
	AlgRSAPKCS1SHA256
	AlgRSAPKCS1SHA384
	AlgRSAPKCS1SHA512
	AlgECDSASHA256
	AlgECDSASHA384
	AlgECDSASHA512
)

func (a Algorithm) String() string {
	switch a {
	case AlgRSAPSSSHA256:
		return "rsa-pss-sha256"
	case AlgRSAPSSSHA384:
		return "rsa-pss-sha384"
	case AlgRSAPSSSHA512:
		return "rsa-pss-sha512"
	case AlgRSAPKCS1SHA256:
		return "rsa-pkcs1-sha256"
	case AlgRSAPKCS1SHA384:
		return "rsa-pkcs1-sha384"
	case AlgRSAPKCS1SHA512:
		return "rsa-pkcs1-sha512"
	case AlgECDSASHA256:
		return "ecdsa-sha256"
	case AlgECDSASHA384:
		return "ecdsa-sha384"
	case AlgECDSASHA512:
		return "ecdsa-sha512"
	default:
		return "unspecified"
	}
}

// Hash returns the digest used by the algorithm
func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case AlgRSAPSSSHA256, AlgRSAPKCS1SHA256, AlgECDSASHA256:
		return crypto.SHA256
	case AlgRSAPSSSHA384, AlgRSAPKCS1SHA384, AlgECDSASHA384:
		return crypto.SHA384
	case AlgRSAPSSSHA512, AlgRSAPKCS1SHA512, AlgECDSASHA512:
		return crypto.SHA512
	default:
		return 0
	}
}

func (a Algorithm) isPSS() bool {
	return a == AlgRSAPSSSHA256 || a == AlgRSAPSSSHA384 || a == AlgRSAPSSSHA512
}

func (a Algorithm) isPKCS1() bool {
	return a == AlgRSAPKCS1SHA256 || a == AlgRSAPKCS1SHA384 || a == AlgRSAPKCS1SHA512
}

func (a Algorithm) isECDSA() bool {
	return a == AlgECDSASHA256 || a == AlgECDSASHA384 || a == AlgECDSASHA512
}

// Valid reports whether a is a supported algorithm
func (a Algorithm) Valid() bool { return a.isPSS() || a.isPKCS1() || a.isECDSA() }

// CompatibleWith reports whether keys of type t can produce signatures with a
func (a Algorithm) CompatibleWith(t KeyType) bool {
	if t.IsRSA() {
		return a.isPSS() || a.isPKCS1()
	}
	if t.IsECC() {
		return a.isECDSA()
	}
	return false
}

func (a Algorithm) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAlgorithm accepts "rsa-pss-sha256", "RSA_PSS_SHA256",
// "SIGNING_ALGORITHM_RSA_PSS_SHA256" and the like
func ParseAlgorithm(s string) (Algorithm, error) {
	switch normalize(s, "signing-algorithm-") {
	case "", "unspecified":
		return AlgUnspecified, nil
	case "rsa-pss-sha256":
		return AlgRSAPSSSHA256, nil
	case "rsa-pss-sha384":
		return AlgRSAPSSSHA384, nil
	case "rsa-pss-sha512":
		return AlgRSAPSSSHA512, nil
	case "rsa-pkcs1-sha256":
		return AlgRSAPKCS1SHA256, nil
	case "rsa-pkcs1-sha384":
		return AlgRSAPKCS1SHA384, nil
	case "rsa-pkcs1-sha512":
		return AlgRSAPKCS1SHA512, nil
	case "ecdsa-sha256":
		return AlgECDSASHA256, nil
	case "ecdsa-sha384":
		return AlgECDSASHA384, nil
	case "ecdsa-sha512":
		return AlgECDSASHA512, nil
	default:
		return AlgUnspecified, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, s)
	}
}

// normalize lower-cases s, turns underscores into dashes and strips prefix
func normalize(s, prefix string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.TrimPrefix(s, prefix)
}
