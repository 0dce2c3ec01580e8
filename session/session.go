// Package session holds the per-session cryptographic state for one side
// of a VoiZ handshake: the hash chain, the ephemeral DH keypair, the
// handshake transcript, the derived session secret and key schedule, and
// the per-direction symmetric counters.
//
// Grounded on the teacher's circuit.Hop (per-direction cipher streams and
// running digests derived from an ntor handshake) generalized from Tor's
// two-directional SHA-1-digest/AES-128-CTR scheme to VoiZ's labelled
// HMAC-SHA256 key schedule over a finite-field DH group plus AES-256-CTR.
package session

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/jmdx/voiz-go/primitives"
)

// Direction distinguishes VoiZ's two key-derivation labels from the four
// labels in the session key schedule (spec.md §3 "Derived keys").
type Direction int

const (
	Initiator Direction = iota
	Responder
)

func (d Direction) zrtpLabel() string {
	if d == Initiator {
		return "Initiator ZRTP key"
	}
	return "Responder ZRTP key"
}

func (d Direction) hmacLabel() string {
	if d == Initiator {
		return "Initiator HMAC key"
	}
	return "Responder HMAC key"
}

// Keys holds the four labelled 32-byte keys derived from s0.
type Keys struct {
	InitiatorZRTP [32]byte
	ResponderZRTP [32]byte
	InitiatorHMAC [32]byte
	ResponderHMAC [32]byte
}

// Counter tracks one direction's CTR-mode counter: an 8-byte
// handshake-agreed suffix and an 8-byte prefix that advances by the
// number of 16-byte blocks each encrypt/decrypt call covers (spec.md §3
// "Counter").
type Counter struct {
	Suffix [8]byte
	prefix uint64
}

// value returns the full 16-byte counter (prefix||suffix) currently in
// effect, and the prefix value used for this call before it advances.
func (c *Counter) value() (full [16]byte, prefix uint64) {
	prefix = c.prefix
	binary.BigEndian.PutUint64(full[0:8], prefix)
	copy(full[8:16], c.Suffix[:])
	return full, prefix
}

func (c *Counter) advance(blocks uint64) {
	c.prefix += blocks
}

// Session is one side's (initiator or responder) cryptographic state for
// a single handshake. All state here is created at session start and
// discarded at session end; only the identity ZID survives across
// sessions (spec.md §3 "Lifecycle").
type Session struct {
	Role Direction

	h0, h1, h2, h3 [32]byte

	priv    *big.Int
	pub     [256]byte
	peerPub *big.Int

	transcript []byte
	s0         [32]byte
	keys       Keys
	keysReady  bool

	sendCounter Counter
	recvCounter Counter
}

// New creates a session for the given role with a fresh hash chain and DH
// keypair.
func New(role Direction) (*Session, error) {
	h0, err := primitives.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("session: generate h0: %w", err)
	}
	priv, pub, err := primitives.GenerateDHKeypair()
	if err != nil {
		return nil, fmt.Errorf("session: generate DH keypair: %w", err)
	}

	s := &Session{Role: role, priv: priv, pub: pub}
	copy(s.h0[:], h0)
	s.h1 = primitives.Sha256(s.h0[:])
	s.h2 = primitives.Sha256(s.h1[:])
	s.h3 = primitives.Sha256(s.h2[:])
	return s, nil
}

// H0, H1, H2, H3 return the session's own hash chain values.
func (s *Session) H0() [32]byte { return s.h0 }
func (s *Session) H1() [32]byte { return s.h1 }
func (s *Session) H2() [32]byte { return s.h2 }
func (s *Session) H3() [32]byte { return s.h3 }

// HmacHn returns HMAC(h_n, payload)[:8] for n in {0,1,2,3}: the truncated
// MAC keyed by a hash-chain value, covering the given frame payload
// (spec.md §4.3 hmac_hn).
func (s *Session) HmacHn(n int, payload []byte) ([8]byte, error) {
	var key [32]byte
	switch n {
	case 0:
		key = s.h0
	case 1:
		key = s.h1
	case 2:
		key = s.h2
	case 3:
		key = s.h3
	default:
		return [8]byte{}, fmt.Errorf("session: invalid hash chain index %d", n)
	}
	return primitives.TruncatedHmac(key[:], payload), nil
}

// PackedPublicKey returns the session's DH public value, big-endian
// zero-padded to 256 bytes.
func (s *Session) PackedPublicKey() [256]byte {
	return s.pub
}

// SetPartnerPublicKey parses the peer's serialised DH public value.
func (s *Session) SetPartnerPublicKey(b []byte) {
	s.peerPub = primitives.UnpackPublicKey(b)
}

// SetTranscript records the exact byte sequence of the handshake frames
// this side sent and received, in wire order, up through DHPART (spec.md
// §3 "Handshake transcript").
func (s *Session) SetTranscript(b []byte) {
	s.transcript = append([]byte{}, b...)
}

// ComputeSecret derives s0 from the DH shared secret and the recorded
// transcript:
//
//	s0 = SHA256(DHresult_hex_ascii || "ZRTP-HMAC-KDF" || ZIDi || ZIDr || total_hash)
//
// where total_hash = SHA256(transcript). DHresult is serialised as
// lowercase hex ASCII with no "0x" prefix (spec.md §3, §9) — this is
// atypical but must be preserved bit-exactly for interoperability.
func (s *Session) ComputeSecret(zidInitiator, zidResponder [12]byte) error {
	if s.peerPub == nil {
		return fmt.Errorf("session: partner public key not set")
	}
	if s.transcript == nil {
		return fmt.Errorf("session: transcript not set")
	}

	shared := primitives.ComputeShared(s.priv, s.peerPub)
	dhHex := primitives.DHResultHex(shared)

	totalHash := primitives.Sha256(s.transcript)

	input := make([]byte, 0, len(dhHex)+len("ZRTP-HMAC-KDF")+12+12+32)
	input = append(input, []byte(dhHex)...)
	input = append(input, []byte("ZRTP-HMAC-KDF")...)
	input = append(input, zidInitiator[:]...)
	input = append(input, zidResponder[:]...)
	input = append(input, totalHash[:]...)

	s.s0 = primitives.Sha256(input)
	return nil
}

// S0 returns the derived session secret. Only valid after ComputeSecret.
func (s *Session) S0() [32]byte { return s.s0 }

// DeriveKeys computes the four labelled keys from s0 (spec.md §3 "Derived keys").
func (s *Session) DeriveKeys() {
	s.keys = Keys{
		InitiatorZRTP: primitives.HmacSha256(s.s0[:], []byte("Initiator ZRTP key")),
		ResponderZRTP: primitives.HmacSha256(s.s0[:], []byte("Responder ZRTP key")),
		InitiatorHMAC: primitives.HmacSha256(s.s0[:], []byte("Initiator HMAC key")),
		ResponderHMAC: primitives.HmacSha256(s.s0[:], []byte("Responder HMAC key")),
	}
	s.keysReady = true
}

// Keys returns the derived key schedule. Only valid after DeriveKeys.
func (s *Session) Keys() Keys { return s.keys }

// HmacS0 returns HMAC(s0, label) (full 32 bytes), used to key the CONFIRM
// MACs; voice-phase frames carry no MAC.
func (s *Session) HmacS0(label []byte) [32]byte {
	return primitives.HmacSha256(s.s0[:], label)
}

// SetCounterSuffix sets the counter_suffix of both the send and the
// receive direction. The initiator
// generates this locally; the responder receives it in COMMIT.
func (s *Session) SetCounterSuffix(suffix [8]byte) {
	s.sendCounter.Suffix = suffix
	s.recvCounter.Suffix = suffix
}

// GenerateCounterSuffix draws a fresh random counter_suffix for the
// initiator and installs it as both directions' suffix (both sides of a
// session share one suffix; only the prefix differs per direction).
func (s *Session) GenerateCounterSuffix() ([8]byte, error) {
	raw, err := primitives.RandomBytes(8)
	if err != nil {
		return [8]byte{}, fmt.Errorf("session: generate counter suffix: %w", err)
	}
	var suffix [8]byte
	copy(suffix[:], raw)
	s.SetCounterSuffix(suffix)
	return suffix, nil
}

// sendKey and recvKey pick this role's own-direction ZRTP key for sending
// and the peer's for receiving (spec.md §9 open question: "each peer uses
// its own-role key for sending").
func (s *Session) sendKey() [32]byte {
	if s.Role == Initiator {
		return s.keys.InitiatorZRTP
	}
	return s.keys.ResponderZRTP
}

func (s *Session) recvKey() [32]byte {
	if s.Role == Initiator {
		return s.keys.ResponderZRTP
	}
	return s.keys.InitiatorZRTP
}

// SendCounterPrefix returns the counter_prefix that will be used for the
// *next* Encrypt call, for inclusion in an outgoing voice frame.
func (s *Session) SendCounterPrefix() uint64 {
	return s.sendCounter.prefix
}

// Encrypt encrypts plaintext under this session's own send-direction key
// and current send counter, then advances the send counter by
// ceil(len(plaintext)/16) blocks.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	return s.crypt(plaintext, s.sendKey(), &s.sendCounter)
}

// Decrypt is the inverse of Encrypt, using the receive-direction key and
// counter.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	return s.crypt(ciphertext, s.recvKey(), &s.recvCounter)
}

// DecryptAt decrypts ciphertext using the receive key but an explicit
// 16-byte counter (prefix||suffix) supplied by the peer's voice frame,
// without touching the session's own receive counter. Voice receivers
// must accept non-monotonic prefixes (retransmits, reorder) without
// resetting local state (spec.md §5).
func (s *Session) DecryptAt(ciphertext []byte, counter [16]byte) ([]byte, error) {
	stream, err := primitives.NewCTR(s.recvKey(), counter)
	if err != nil {
		return nil, fmt.Errorf("session: decrypt-at: %w", err)
	}
	out := make([]byte, len(ciphertext))
	stream.XORKeyStream(out, ciphertext)
	return out, nil
}

// DecryptVoice decrypts a received voice frame's ciphertext using the
// receive-direction key and an explicit counter_prefix taken from the
// frame itself (spec.md §4.8), combined with this session's own
// recv-direction counter_suffix. It never touches the session's running
// receive counter: voice frames may arrive out of order or be replayed,
// and must not desynchronise the handshake-era counter state (spec.md
// §5 "Counters").
func (s *Session) DecryptVoice(counterPrefix uint64, ciphertext []byte) ([]byte, error) {
	var full [16]byte
	binary.BigEndian.PutUint64(full[0:8], counterPrefix)
	copy(full[8:16], s.recvCounter.Suffix[:])
	return s.DecryptAt(ciphertext, full)
}

func (s *Session) crypt(data []byte, key [32]byte, counter *Counter) ([]byte, error) {
	full, _ := counter.value()
	stream, err := primitives.NewCTR(key, full)
	if err != nil {
		return nil, fmt.Errorf("session: crypt: %w", err)
	}
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	counter.advance(primitives.BlocksFor(len(data)))
	return out, nil
}

// VerifyPacketHMAC does a constant-time comparison of the first 8 bytes
// of HMAC(key, payload) against expected (spec.md §4.3). Grounded on
// crypto/subtle.ConstantTimeCompare as used for MAC checks in the
// teacher's onion.DecryptDescriptorLayer.
func VerifyPacketHMAC(key []byte, payload []byte, expected [8]byte) bool {
	got := primitives.TruncatedHmac(key, payload)
	return subtle.ConstantTimeCompare(got[:], expected[:]) == 1
}

// VerifyHash does a constant-time comparison of SHA256(preimage) against
// expected (spec.md §4.3).
func VerifyHash(preimage [32]byte, expected [32]byte) bool {
	got := primitives.Sha256(preimage[:])
	return subtle.ConstantTimeCompare(got[:], expected[:]) == 1
}
