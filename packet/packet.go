// Package packet frames and parses VoiZ wire messages. Every handshake
// frame is exactly 64 bytes; the voice frame (CODEC2) is a separate,
// longer unit that falls outside that envelope (see BuildCodec2).
//
// Grounded on the teacher's cell package: a one-byte type tag, fixed
// offsets, and mechanical construct/extract pairs per type. Where the
// teacher supports both fixed- and variable-length cells, VoiZ only
// ever has fixed 64-byte handshake frames plus the one oversized voice
// frame, so there is a single Frame type rather than cell.Cell's two
// shapes.
package packet

import (
	"encoding/binary"
	"fmt"
)

// Type tags (spec.md §4.4).
const (
	TypeHello    byte = 0x00
	TypeCommit   byte = 0x02
	TypeDHPart11 byte = 0x03
	TypeDHPart12 byte = 0x04
	TypeDHPart13 byte = 0x05
	TypeDHPart14 byte = 0x06
	TypeDHPart15 byte = 0x07
	TypeDHPart21 byte = 0x08
	TypeDHPart22 byte = 0x09
	TypeDHPart23 byte = 0x0a
	TypeDHPart24 byte = 0x0b
	TypeDHPart25 byte = 0x0c
	TypeConfirm1 byte = 0x0e
	TypeConfirm2 byte = 0x0f
	TypeCodec2   byte = 0x10
)

// FrameLen is the fixed size of every handshake-phase wire frame.
const FrameLen = 64

// Frame is one 64-byte handshake wire unit.
type Frame [FrameLen]byte

// Type returns the frame's type tag (byte 0).
func (f Frame) Type() byte { return f[0] }

// DHPartGroup holds the five frames that together carry one logical
// DHPART1 or DHPART2 message (spec.md §4.4).
type DHPartGroup [5]Frame

// dhPart1Tags and dhPart2Tags map group index to the responder's (DHPART1)
// and the initiator's (DHPART2) tag sequences.
var dhPart1Tags = [5]byte{TypeDHPart11, TypeDHPart12, TypeDHPart13, TypeDHPart14, TypeDHPart15}
var dhPart2Tags = [5]byte{TypeDHPart21, TypeDHPart22, TypeDHPart23, TypeDHPart24, TypeDHPart25}

func padFrame(tag byte, payload []byte) Frame {
	var f Frame
	f[0] = tag
	copy(f[1:], payload)
	return f
}

// HelloPayload returns the 45-byte pre-MAC HELLO payload (tag||h3||ZID)
// that HMAC_h2 covers.
func HelloPayload(h3 [32]byte, zid [12]byte) []byte {
	payload := make([]byte, 0, 45)
	payload = append(payload, TypeHello)
	payload = append(payload, h3[:]...)
	payload = append(payload, zid[:]...)
	return payload
}

// BuildHello constructs the 64-byte HELLO frame:
// tag(1) || h3(32) || ZID(12) || HMAC_h2(tag||h3||ZID)[:8], padded to 64.
func BuildHello(h3 [32]byte, zid [12]byte, mac [8]byte) Frame {
	payload := make([]byte, 0, 52)
	payload = append(payload, h3[:]...)
	payload = append(payload, zid[:]...)
	payload = append(payload, mac[:]...)
	return padFrame(TypeHello, payload)
}

// HelloFields holds the logical content of a HELLO message.
type HelloFields struct {
	H3  [32]byte
	ZID [12]byte
	MAC [8]byte
}

// ParseHello extracts the fields of a HELLO frame.
func ParseHello(f Frame) (HelloFields, error) {
	if f.Type() != TypeHello {
		return HelloFields{}, fmt.Errorf("packet: expected HELLO (0x%02x), got 0x%02x", TypeHello, f.Type())
	}
	var out HelloFields
	copy(out.H3[:], f[1:33])
	copy(out.ZID[:], f[33:45])
	copy(out.MAC[:], f[45:53])
	return out, nil
}

// HelloSignedPrefix returns the 45-byte HELLO payload that the MAC covers
// (tag || h3 || ZID), i.e. f[:45].
func HelloSignedPrefix(f Frame) []byte {
	return f[:45]
}

// CommitPayload returns the 53-byte pre-MAC COMMIT payload
// (tag||h2||ZID||counter_suffix) that HMAC_h1 covers.
func CommitPayload(h2 [32]byte, zid [12]byte, counterSuffix [8]byte) []byte {
	payload := make([]byte, 0, 53)
	payload = append(payload, TypeCommit)
	payload = append(payload, h2[:]...)
	payload = append(payload, zid[:]...)
	payload = append(payload, counterSuffix[:]...)
	return payload
}

// BuildCommit constructs the 64-byte COMMIT frame:
// tag(1) || h2(32) || ZID(12) || counter_suffix(8) || HMAC_h1(payload)[:8].
func BuildCommit(h2 [32]byte, zid [12]byte, counterSuffix [8]byte, mac [8]byte) Frame {
	payload := make([]byte, 0, 60)
	payload = append(payload, h2[:]...)
	payload = append(payload, zid[:]...)
	payload = append(payload, counterSuffix[:]...)
	payload = append(payload, mac[:]...)
	return padFrame(TypeCommit, payload)
}

// CommitFields holds the logical content of a COMMIT message.
type CommitFields struct {
	H2            [32]byte
	ZID           [12]byte
	CounterSuffix [8]byte
	MAC           [8]byte
}

// ParseCommit extracts the fields of a COMMIT frame.
func ParseCommit(f Frame) (CommitFields, error) {
	if f.Type() != TypeCommit {
		return CommitFields{}, fmt.Errorf("packet: expected COMMIT (0x%02x), got 0x%02x", TypeCommit, f.Type())
	}
	var out CommitFields
	copy(out.H2[:], f[1:33])
	copy(out.ZID[:], f[33:45])
	copy(out.CounterSuffix[:], f[45:53])
	copy(out.MAC[:], f[53:61])
	return out, nil
}

// CommitSignedPrefix returns the 53-byte COMMIT payload the MAC covers.
func CommitSignedPrefix(f Frame) []byte {
	return f[:53]
}

// DHPartLogicalPayload builds the 304-byte unsegmented logical payload
// shared by DHPART1 and DHPART2: h1(32) || zeros(16) || DHpub(256), with
// the truncated MAC appended by the caller before splitting.
func DHPartLogicalPayload(h1 [32]byte, pub [256]byte) []byte {
	payload := make([]byte, 0, 32+16+256)
	payload = append(payload, h1[:]...)
	payload = append(payload, make([]byte, 16)...)
	payload = append(payload, pub[:]...)
	return payload
}

// BuildDHPartGroup appends the 8-byte MAC to the 304-byte logical payload
// (h1||zeros||DHpub) and splits the resulting 312 bytes into the five
// 64/64/64/64/61-byte frames, using the initiator tag set if initiator is
// true, else the responder set.
func BuildDHPartGroup(logicalPayload []byte, mac [8]byte, initiator bool) (DHPartGroup, error) {
	if len(logicalPayload) != 304 {
		return DHPartGroup{}, fmt.Errorf("packet: DHPART logical payload must be 304 bytes, got %d", len(logicalPayload))
	}
	full := append(append([]byte{}, logicalPayload...), mac[:]...) // 312 bytes total

	tags := dhPart1Tags
	if initiator {
		tags = dhPart2Tags
	}

	var group DHPartGroup
	group[0] = padFrame(tags[0], full[0:63])
	group[1] = padFrame(tags[1], full[63:126])
	group[2] = padFrame(tags[2], full[126:189])
	group[3] = padFrame(tags[3], full[189:252])
	group[4] = padFrame(tags[4], full[252:312])
	return group, nil
}

// DHPartFields holds the logical content of a reassembled DHPART1/DHPART2 message.
type DHPartFields struct {
	H1  [32]byte
	RS1 [8]byte // first 8 bytes of the reserved zero field
	RS2 [8]byte // second 8 bytes of the reserved zero field
	Pub [256]byte
	MAC [8]byte
}

// ReassembleDHPart concatenates the five received frames per spec.md §4.7
// ("frame[0][:64] || frame[1][1:64] || frame[2][1:64] || frame[3][1:64] ||
// frame[4][1:61]") and extracts the logical fields.
func ReassembleDHPart(group DHPartGroup) (DHPartFields, error) {
	full := make([]byte, 0, 313)
	full = append(full, group[0][:]...)
	full = append(full, group[1][1:64]...)
	full = append(full, group[2][1:64]...)
	full = append(full, group[3][1:64]...)
	full = append(full, group[4][1:61]...)

	if len(full) != 313 {
		return DHPartFields{}, fmt.Errorf("packet: reassembled DHPART is %d bytes, expected 313", len(full))
	}

	var out DHPartFields
	copy(out.H1[:], full[1:33])
	copy(out.RS1[:], full[33:41])
	copy(out.RS2[:], full[41:49])
	copy(out.Pub[:], full[49:305])
	copy(out.MAC[:], full[305:313])
	return out, nil
}

// DHPartSignedPayload recomputes the unsegmented (h1||zeros||DHpub) payload
// from reassembled fields, i.e. what the MAC in MAC was computed over.
func DHPartSignedPayload(f DHPartFields) []byte {
	payload := make([]byte, 0, 304)
	payload = append(payload, f.H1[:]...)
	payload = append(payload, f.RS1[:]...)
	payload = append(payload, f.RS2[:]...)
	payload = append(payload, f.Pub[:]...)
	return payload
}

// BuildConfirm constructs a CONFIRM1/CONFIRM2 frame: tag(1) || MAC[:8] || encryptedH0(32).
func BuildConfirm(tag byte, mac [8]byte, encryptedH0 [32]byte) Frame {
	payload := make([]byte, 0, 40)
	payload = append(payload, mac[:]...)
	payload = append(payload, encryptedH0[:]...)
	return padFrame(tag, payload)
}

// ConfirmFields holds the logical content of a CONFIRM1/CONFIRM2 message.
type ConfirmFields struct {
	MAC         [8]byte
	EncryptedH0 [32]byte
}

// ParseConfirm extracts the fields of a CONFIRM1/CONFIRM2 frame, verifying
// the tag matches wantType.
func ParseConfirm(f Frame, wantType byte) (ConfirmFields, error) {
	if f.Type() != wantType {
		return ConfirmFields{}, fmt.Errorf("packet: expected CONFIRM (0x%02x), got 0x%02x", wantType, f.Type())
	}
	var out ConfirmFields
	copy(out.MAC[:], f[1:9])
	copy(out.EncryptedH0[:], f[9:41])
	return out, nil
}

// Codec2FrameLen is the length of a voice-phase wire unit: tag(1) +
// counter_prefix(8) + encrypted(64) = 73 bytes. This exceeds FrameLen and
// is sent through a separate transport call (spec.md §4.4 note, §9).
const Codec2FrameLen = 1 + 8 + 64

// BuildCodec2 assembles a voice frame from the already-encrypted 64-byte
// ciphertext (tag||63-byte payload, encrypted) and the sender's current
// counter_prefix.
func BuildCodec2(counterPrefix uint64, encryptedTagAndPayload [64]byte) [Codec2FrameLen]byte {
	var out [Codec2FrameLen]byte
	out[0] = TypeCodec2
	binary.BigEndian.PutUint64(out[1:9], counterPrefix)
	copy(out[9:], encryptedTagAndPayload[:])
	return out
}

// ParseCodec2 extracts the counter_prefix and ciphertext from a voice
// frame. The caller is responsible for decrypting and checking the inner
// tag byte.
func ParseCodec2(frame []byte) (counterPrefix uint64, ciphertext [64]byte, err error) {
	if len(frame) != Codec2FrameLen {
		return 0, ciphertext, fmt.Errorf("packet: CODEC2 frame is %d bytes, expected %d", len(frame), Codec2FrameLen)
	}
	if frame[0] != TypeCodec2 {
		return 0, ciphertext, fmt.Errorf("packet: expected CODEC2 (0x%02x), got 0x%02x", TypeCodec2, frame[0])
	}
	counterPrefix = binary.BigEndian.Uint64(frame[1:9])
	copy(ciphertext[:], frame[9:])
	return counterPrefix, ciphertext, nil
}
