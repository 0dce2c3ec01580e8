// Package primitives implements the fixed cryptographic building blocks
// VoiZ uses: SHA-256, truncated HMAC-SHA256, a CSPRNG, modular
// exponentiation in the RFC 3526 Group 14 field, and AES-256-CTR.
// No suite negotiation exists; every value here is the one VoiZ uses.
package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// TruncatedMACLen is the number of leading bytes of an HMAC-SHA256
// output that are carried on the wire.
const TruncatedMACLen = 8

// KeyLen is the size of a derived symmetric/MAC key.
const KeyLen = 32

// PublicKeyLen is the serialised big-endian size of a DH public value.
const PublicKeyLen = 256

// Sha256 hashes b and returns the 32-byte digest.
func Sha256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// HmacSha256 computes HMAC-SHA256(key, msg).
func HmacSha256(key, msg []byte) [32]byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TruncatedHmac computes the first TruncatedMACLen bytes of HMAC-SHA256(key, msg).
func TruncatedHmac(key, msg []byte) [TruncatedMACLen]byte {
	full := HmacSha256(key, msg)
	var out [TruncatedMACLen]byte
	copy(out[:], full[:TruncatedMACLen])
	return out
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// NewCTR builds an AES-256-CTR stream keyed by key and positioned at the
// given 16-byte counter. A fresh stream must be constructed for every
// counter value the caller wants to seek to (crypto/cipher.Stream has no
// seek primitive), mirroring how the zero-IV stream in the teacher's
// circuit package is re-derived per hop rather than advanced externally.
func NewCTR(key [KeyLen]byte, counter [16]byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes new cipher: %w", err)
	}
	return cipher.NewCTR(block, counter[:]), nil
}

// BlocksFor returns the number of 16-byte AES blocks needed to cover n
// bytes of keystream, i.e. ceil(n/16).
func BlocksFor(n int) uint64 {
	return uint64((n + aes.BlockSize - 1) / aes.BlockSize)
}

// DH group parameters: RFC 3526 Group 14 — a 2048-bit MODP group, generator 2.
var (
	DHGenerator = big.NewInt(2)
	DHModulus   = mustParseModulus(modp2048Hex)
)

const modp2048Hex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
	"129024E088A67CC74020BBEA63B139B22514A08798E3404" +
	"DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C" +
	"245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406" +
	"B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE" +
	"45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD" +
	"24CF5F83655D23DCA3AD961C62F356208552BB9ED529077" +
	"096966D670C354E4ABC9804F1746C08CA18217C32905E46" +
	"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF" +
	"06F4C52C9DE2BCBF6955817183995497CEA956AE515D225" +
	"6A02F2DBFFFFFFFFFFFFFFFF"

func mustParseModulus(hexStr string) *big.Int {
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic("primitives: invalid RFC 3526 Group 14 modulus literal")
	}
	return n
}

// GenerateDHKeypair draws a private exponent from the CSPRNG (at least 256
// bits of entropy; the implementation uses a full-width 2048-bit draw,
// taken as the exponent without reduction) and computes the matching
// public value g^priv mod p.
func GenerateDHKeypair() (priv *big.Int, pub [PublicKeyLen]byte, err error) {
	raw, err := RandomBytes(PublicKeyLen)
	if err != nil {
		return nil, pub, err
	}
	priv = new(big.Int).SetBytes(raw)
	pub = PackPublicKey(ComputePublic(priv))
	return priv, pub, nil
}

// ComputePublic returns g^priv mod p.
func ComputePublic(priv *big.Int) *big.Int {
	return new(big.Int).Exp(DHGenerator, priv, DHModulus)
}

// ComputeShared returns peerPub^priv mod p, the DH shared secret.
func ComputeShared(priv *big.Int, peerPub *big.Int) *big.Int {
	return new(big.Int).Exp(peerPub, priv, DHModulus)
}

// PackPublicKey serialises a DH public value as a big-endian, zero-padded
// 256-byte string.
func PackPublicKey(pub *big.Int) [PublicKeyLen]byte {
	var out [PublicKeyLen]byte
	b := pub.Bytes()
	copy(out[PublicKeyLen-len(b):], b)
	return out
}

// UnpackPublicKey parses a big-endian public value.
func UnpackPublicKey(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// DHResultHex serialises a DH shared secret as lowercase hex ASCII with no
// leading "0x" and no trailing marker. This is atypical (most
// implementations would use the raw big-endian bytes) but must be
// preserved bit-exactly for interoperability: see session.ComputeSecret.
func DHResultHex(shared *big.Int) string {
	return fmt.Sprintf("%x", shared)
}
