package primitives

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashChain(t *testing.T) {
	h0, err := RandomBytes(32)
	require.NoError(t, err)

	h1 := Sha256(h0)
	h2 := Sha256(h1[:])
	h3 := Sha256(h2[:])

	got1 := Sha256(h0)
	require.Equal(t, h1, got1)

	got2 := Sha256(got1[:])
	require.Equal(t, h2, got2)

	got3 := Sha256(got2[:])
	require.Equal(t, h3, got3)
}

func TestTruncatedHmacDeterministic(t *testing.T) {
	key := []byte("some label")
	msg := []byte("some message")

	a := TruncatedHmac(key, msg)
	b := TruncatedHmac(key, msg)
	require.Equal(t, a, b)
	require.Len(t, a, TruncatedMACLen)
}

func TestCTRRoundTrip(t *testing.T) {
	var key [KeyLen]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	var counter [16]byte
	counter[15] = 7

	plaintext := []byte("a 63-byte voice codec frame padded out for the test case!!")

	encStream, err := NewCTR(key, counter)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plaintext))
	encStream.XORKeyStream(ciphertext, plaintext)

	decStream, err := NewCTR(key, counter)
	require.NoError(t, err)
	roundtrip := make([]byte, len(ciphertext))
	decStream.XORKeyStream(roundtrip, ciphertext)

	require.Equal(t, plaintext, roundtrip)
}

func TestBlocksFor(t *testing.T) {
	cases := map[int]uint64{0: 0, 1: 1, 16: 1, 17: 2, 64: 4, 73: 5}
	for n, want := range cases {
		require.Equal(t, want, BlocksFor(n), "BlocksFor(%d)", n)
	}
}

func TestDHKeypairRoundTrip(t *testing.T) {
	privA, pubA, err := GenerateDHKeypair()
	require.NoError(t, err)
	privB, pubB, err := GenerateDHKeypair()
	require.NoError(t, err)

	peerA := UnpackPublicKey(pubB[:])
	peerB := UnpackPublicKey(pubA[:])

	sharedA := ComputeShared(privA, peerA)
	sharedB := ComputeShared(privB, peerB)

	require.Equal(t, 0, sharedA.Cmp(sharedB))
}

func TestDHResultHexNoPrefix(t *testing.T) {
	shared := big.NewInt(0xABCDEF)
	hexStr := DHResultHex(shared)
	require.Equal(t, "abcdef", hexStr)
}

func TestPackPublicKeyLength(t *testing.T) {
	_, pub, err := GenerateDHKeypair()
	require.NoError(t, err)
	require.Len(t, pub, PublicKeyLen)
}
