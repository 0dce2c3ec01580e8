package session

import (
	"testing"

	"github.com/jmdx/voiz-go/primitives"
	"github.com/stretchr/testify/require"
)

func TestHashChainInvariant(t *testing.T) {
	s, err := New(Initiator)
	require.NoError(t, err)

	h0 := s.H0()
	h1 := primitives.Sha256(h0[:])
	h2 := primitives.Sha256(h1[:])
	h3 := primitives.Sha256(h2[:])

	require.Equal(t, h1, s.H1())
	require.Equal(t, h2, s.H2())
	require.Equal(t, h3, s.H3())
}

func TestDeriveKeysDeterministic(t *testing.T) {
	a, err := New(Initiator)
	require.NoError(t, err)
	a.s0 = [32]byte{1, 2, 3}
	a.DeriveKeys()

	b, err := New(Responder)
	require.NoError(t, err)
	b.s0 = a.s0
	b.DeriveKeys()

	require.Equal(t, a.Keys(), b.Keys())
}

func TestEncryptDecryptRoundTripAdvancesCounterEqually(t *testing.T) {
	a, err := New(Initiator)
	require.NoError(t, err)
	a.s0 = [32]byte{9, 9, 9}
	a.DeriveKeys()
	var suffix [8]byte
	a.SetCounterSuffix(suffix)

	b, err := New(Responder)
	require.NoError(t, err)
	b.s0 = a.s0
	b.DeriveKeys()
	b.SetCounterSuffix(suffix)

	plaintext := []byte("sixty-three bytes of codec payload padded out for testing!!")
	ciphertext, err := a.Encrypt(plaintext)
	require.NoError(t, err)
	require.Equal(t, primitives.BlocksFor(len(plaintext)), a.sendCounter.prefix)

	recovered, err := b.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
	require.Equal(t, a.sendCounter.prefix, b.recvCounter.prefix)
}

func TestComputeSecretSymmetric(t *testing.T) {
	alice, err := New(Initiator)
	require.NoError(t, err)
	bob, err := New(Responder)
	require.NoError(t, err)

	bobPub := bob.PackedPublicKey()
	alicePub := alice.PackedPublicKey()
	alice.SetPartnerPublicKey(bobPub[:])
	bob.SetPartnerPublicKey(alicePub[:])

	transcript := []byte("identical transcript bytes as seen by both sides")
	alice.SetTranscript(transcript)
	bob.SetTranscript(transcript)

	var zidI, zidR [12]byte
	for i := range zidI {
		zidI[i] = byte(i)
		zidR[i] = byte(i + 100)
	}

	require.NoError(t, alice.ComputeSecret(zidI, zidR))
	require.NoError(t, bob.ComputeSecret(zidI, zidR))

	require.Equal(t, alice.S0(), bob.S0())

	alice.DeriveKeys()
	bob.DeriveKeys()
	require.Equal(t, alice.Keys().InitiatorZRTP, bob.Keys().InitiatorZRTP)
}

func TestVerifyPacketHMACAndHash(t *testing.T) {
	key := []byte("a key")
	payload := []byte("a payload")

	mac := primitives.TruncatedHmac(key, payload)
	require.True(t, VerifyPacketHMAC(key, payload, mac))

	tampered := mac
	tampered[0] ^= 0xFF
	require.False(t, VerifyPacketHMAC(key, payload, tampered))

	var preimage [32]byte
	copy(preimage[:], []byte("thirty-two byte preimage value!"))
	expected := primitives.Sha256(preimage[:])
	require.True(t, VerifyHash(preimage, expected))
	expected[0] ^= 0xFF
	require.False(t, VerifyHash(preimage, expected))
}
