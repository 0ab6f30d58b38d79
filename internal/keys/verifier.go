package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"
)

// Verifier is the capability every KeyEntry exposes: checking a
// signature over a signing-input byte slice. It deliberately has no
// other methods — callers never see the underlying key type.
type Verifier interface {
	Verify(signingInput, signature []byte) bool
}

type rsaVerifier struct {
	pub  *rsa.PublicKey
	hash crypto.Hash
	pss  bool
}

func (v *rsaVerifier) Verify(signingInput, signature []byte) bool {
	digest := hashBytes(v.hash, signingInput)
	if v.pss {
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: v.hash}
		return rsa.VerifyPSS(v.pub, v.hash, digest, signature, opts) == nil
	}
	return rsa.VerifyPKCS1v15(v.pub, v.hash, digest, signature) == nil
}

type ecdsaVerifier struct {
	pub      *ecdsa.PublicKey
	hash     crypto.Hash
	keyBytes int // size of r/s in the fixed-length JWS signature encoding
}

func (v *ecdsaVerifier) Verify(signingInput, signature []byte) bool {
	if len(signature) != 2*v.keyBytes {
		return false
	}
	r := new(big.Int).SetBytes(signature[:v.keyBytes])
	s := new(big.Int).SetBytes(signature[v.keyBytes:])
	digest := hashBytes(v.hash, signingInput)
	return ecdsa.Verify(v.pub, digest, r, s)
}

func hashBytes(h crypto.Hash, data []byte) []byte {
	switch h {
	case crypto.SHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case crypto.SHA384:
		sum := sha512.Sum384(data)
		return sum[:]
	case crypto.SHA512:
		sum := sha512.Sum512(data)
		return sum[:]
	default:
		return nil
	}
}

func hashForAlg(alg string) crypto.Hash {
	switch alg {
	case RS256, PS256, ES256:
		return crypto.SHA256
	case RS384, PS384, ES384:
		return crypto.SHA384
	case RS512, PS512, ES512:
		return crypto.SHA512
	default:
		return 0
	}
}

func newRSAVerifier(pub *rsa.PublicKey, alg string) Verifier {
	return &rsaVerifier{pub: pub, hash: hashForAlg(alg), pss: alg == PS256 || alg == PS384 || alg == PS512}
}

func newECDSAVerifier(pub *ecdsa.PublicKey, alg string, curveByteLen int) Verifier {
	return &ecdsaVerifier{pub: pub, hash: hashForAlg(alg), keyBytes: curveByteLen}
}
