// Package signer holds the signing keys served by vsign and the sign/verify
// primitives built on the standard crypto packages.
//
// Keys live in memory only (KeyManager) and are addressed by id. Bootstrap
// creates one default key per requested type under "default-<type>", e.g.
// "default-rsa-2048", which requests without a key id fall back to.
//
// Supported key types are RSA 2048/3072/4096 and ECC P-256/P-384/P-521.
// RSA keys sign with PSS or PKCS#1 v1.5, ECC keys with ECDSA (ASN.1 encoded
// signatures); the digest is SHA-256, SHA-384 or SHA-512. An algorithm that
// does not fit the key type fails with ErrAlgorithmMismatch.
package signer
