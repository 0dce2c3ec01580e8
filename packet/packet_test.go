package packet

import (
	"testing"

	"github.com/jmdx/voiz-go/primitives"
	"github.com/stretchr/testify/require"
)

func fill(b []byte, seed byte) {
	for i := range b {
		b[i] = seed + byte(i)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	var h3 [32]byte
	var zid [12]byte
	var mac [8]byte
	fill(h3[:], 1)
	fill(zid[:], 2)
	fill(mac[:], 3)

	f := BuildHello(h3, zid, mac)
	require.Equal(t, TypeHello, f.Type())

	got, err := ParseHello(f)
	require.NoError(t, err)
	require.Equal(t, h3, got.H3)
	require.Equal(t, zid, got.ZID)
	require.Equal(t, mac, got.MAC)
}

func TestHelloBitFlipInvalidatesMAC(t *testing.T) {
	var h3 [32]byte
	var zid [12]byte
	var mac [8]byte
	fill(h3[:], 1)
	fill(zid[:], 2)
	fill(mac[:], 3)

	f := BuildHello(h3, zid, mac)
	tampered := f
	tampered[10] ^= 0x01

	original, err := ParseHello(f)
	require.NoError(t, err)
	flipped, err := ParseHello(tampered)
	require.NoError(t, err)

	require.NotEqual(t, original.H3, flipped.H3, "flipping a payload byte must change the extracted field")

	key := []byte("hello mac key")
	require.NotEqual(t, primitives.TruncatedHmac(key, HelloSignedPrefix(f)), primitives.TruncatedHmac(key, HelloSignedPrefix(tampered)),
		"flipping a payload byte must change the MAC over the signed prefix")
}

func TestCommitRoundTrip(t *testing.T) {
	var h2 [32]byte
	var zid [12]byte
	var cs [8]byte
	var mac [8]byte
	fill(h2[:], 10)
	fill(zid[:], 20)
	fill(cs[:], 30)
	fill(mac[:], 40)

	f := BuildCommit(h2, zid, cs, mac)
	require.Equal(t, TypeCommit, f.Type())

	got, err := ParseCommit(f)
	require.NoError(t, err)
	require.Equal(t, h2, got.H2)
	require.Equal(t, zid, got.ZID)
	require.Equal(t, cs, got.CounterSuffix)
	require.Equal(t, mac, got.MAC)
}

func TestDHPartRoundTrip(t *testing.T) {
	var h1 [32]byte
	var pub [256]byte
	fill(h1[:], 5)
	fill(pub[:], 7)

	logical := DHPartLogicalPayload(h1, pub)
	require.Len(t, logical, 304)

	var mac [8]byte
	fill(mac[:], 99)

	group, err := BuildDHPartGroup(logical, mac, false)
	require.NoError(t, err)
	require.Equal(t, TypeDHPart11, group[0].Type())
	require.Equal(t, TypeDHPart15, group[4].Type())

	fields, err := ReassembleDHPart(group)
	require.NoError(t, err)
	require.Equal(t, h1, fields.H1)
	require.Equal(t, pub, fields.Pub)
	require.Equal(t, mac, fields.MAC)

	recomputed := DHPartSignedPayload(fields)
	require.Equal(t, logical, recomputed)
}

func TestDHPartInitiatorTags(t *testing.T) {
	logical := make([]byte, 304)
	var mac [8]byte

	group, err := BuildDHPartGroup(logical, mac, true)
	require.NoError(t, err)
	require.Equal(t, TypeDHPart21, group[0].Type())
	require.Equal(t, TypeDHPart25, group[4].Type())
}

func TestDHPartFrameZeroedInvalidatesReassembly(t *testing.T) {
	var h1 [32]byte
	var pub [256]byte
	fill(h1[:], 5)
	fill(pub[:], 7)
	logical := DHPartLogicalPayload(h1, pub)
	var mac [8]byte
	fill(mac[:], 1)

	group, err := BuildDHPartGroup(logical, mac, false)
	require.NoError(t, err)

	good, err := ReassembleDHPart(group)
	require.NoError(t, err)

	group[2] = Frame{} // zero out frame 3 of 5
	zeroed, err := ReassembleDHPart(group)
	require.NoError(t, err)

	require.NotEqual(t, DHPartSignedPayload(good), DHPartSignedPayload(zeroed), "zeroing one frame must change the payload the MAC covers")
}

func TestConfirmRoundTrip(t *testing.T) {
	var mac [8]byte
	var encH0 [32]byte
	fill(mac[:], 1)
	fill(encH0[:], 2)

	f := BuildConfirm(TypeConfirm1, mac, encH0)
	got, err := ParseConfirm(f, TypeConfirm1)
	require.NoError(t, err)
	require.Equal(t, mac, got.MAC)
	require.Equal(t, encH0, got.EncryptedH0)

	_, err = ParseConfirm(f, TypeConfirm2)
	require.Error(t, err)
}

func TestCodec2RoundTrip(t *testing.T) {
	var enc [64]byte
	fill(enc[:], 3)

	frame := BuildCodec2(0x1122334455667788, enc)
	require.Len(t, frame, Codec2FrameLen)

	prefix, ciphertext, err := ParseCodec2(frame[:])
	require.NoError(t, err)
	require.Equal(t, uint64(0x1122334455667788), prefix)
	require.Equal(t, enc, ciphertext)
}

func FuzzParseHello(f *testing.F) {
	var zero Frame
	f.Add(zero[:])
	valid := BuildHello([32]byte{}, [12]byte{}, [8]byte{})
	f.Add(valid[:])

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != FrameLen {
			t.Skip()
		}
		var fr Frame
		copy(fr[:], data)
		if fr.Type() != TypeHello {
			fr[0] = TypeHello
		}
		_, _ = ParseHello(fr)
	})
}
