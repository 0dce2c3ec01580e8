// Package handshake drives both peer roles (Initiator, Responder) through
// HELLO → COMMIT → DHPART → CONFIRM (spec.md §4.7). Each role is a
// strictly sequential sequence of sends/receives with cryptographic
// checks; any verification failure or timeout aborts the session before
// the voice phase is entered (spec.md §7).
//
// Grounded on the teacher's circuit.Create: "the function that drives an
// entire cryptographic handshake to completion or a wrapped error,"
// generalized from Tor's single CREATE2/CREATED2 round trip to VoiZ's
// four-phase sequence.
package handshake

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmdx/voiz-go/identity"
	"github.com/jmdx/voiz-go/overlay"
	"github.com/jmdx/voiz-go/packet"
	"github.com/jmdx/voiz-go/primitives"
	"github.com/jmdx/voiz-go/session"
)

// Result holds what the voice phase needs once a handshake succeeds.
type Result struct {
	Session *session.Session
}

// RunInitiator drives the initiator side of the handshake (spec.md §4.7
// "Initiator"). ownZID is this peer's identifier.
func RunInitiator(o *overlay.Overlay, ownZID identity.ZID, logger *slog.Logger) (*Result, error) {
	logger = withDefault(logger)
	sess, err := session.New(session.Initiator)
	if err != nil {
		return nil, fmt.Errorf("handshake: init session: %w", err)
	}
	zid := zidBytes(ownZID)

	// 1. Build and send HELLO, wait for the responder's HELLO.
	myHello, err := buildHello(sess, zid)
	if err != nil {
		return nil, err
	}
	logger.Debug("sending packet: HELLO")
	rHelloFrame, ok := o.SendUntil([]packet.Frame{myHello}, packet.TypeHello, false)
	if !ok {
		logger.Warn("timeout reached waiting for HELLO")
		return nil, fmt.Errorf("handshake: timeout waiting for HELLO")
	}
	rHello, err := packet.ParseHello(rHelloFrame)
	if err != nil {
		return nil, fmt.Errorf("handshake: parse responder HELLO: %w", err)
	}
	logger.Debug("received packet: HELLO", "responder_zid", fmt.Sprintf("%x", rHello.ZID))

	// 2. Build and send COMMIT, wait for the responder's DHPART1 group.
	counterSuffix, err := sess.GenerateCounterSuffix()
	if err != nil {
		return nil, fmt.Errorf("handshake: generate counter suffix: %w", err)
	}
	myCommit, err := buildCommit(sess, zid, counterSuffix)
	if err != nil {
		return nil, err
	}
	logger.Debug("sending packet: COMMIT")
	rDHGroup, ok := sendCommitAndCollectDHPart(o, myCommit, logger)
	if !ok {
		return nil, fmt.Errorf("handshake: timeout waiting for responder DHPART1")
	}

	rDHFields, err := packet.ReassembleDHPart(rDHGroup)
	if err != nil {
		return nil, fmt.Errorf("handshake: reassemble responder DHPART1: %w", err)
	}

	// 5. Verify responder's HELLO MAC under the now-revealed h1, and the
	// hash-chain link sha256(h1) == h2, sha256(h2) == h3.
	rH2 := primitives.Sha256(rDHFields.H1[:])
	if !session.VerifyPacketHMAC(rH2[:], packet.HelloSignedPrefix(rHelloFrame), rHello.MAC) {
		logger.Error("HMAC failed in responder's HELLO packet")
		return nil, fmt.Errorf("handshake: responder HELLO MAC verification failed")
	}
	if !session.VerifyHash(rH2, rHello.H3) {
		logger.Error("hash chain verification failed: sha256(h2) != h3")
		return nil, fmt.Errorf("handshake: responder hash chain verification failed")
	}

	// 6. Build DHPART2, assemble transcript, derive s0 and the key schedule.
	myDHGroup, _, err := buildDHPartGroup(sess, true)
	if err != nil {
		return nil, err
	}

	sess.SetTranscript(buildTranscript(rHelloFrame, myCommit, rDHGroup, myDHGroup))
	sess.SetPartnerPublicKey(rDHFields.Pub[:])
	if err := sess.ComputeSecret(zid, rHello.ZID); err != nil {
		return nil, fmt.Errorf("handshake: compute secret: %w", err)
	}
	sess.DeriveKeys()

	// 7. Send DHPART2, wait for CONFIRM1, verify it, verify the revealed h0.
	logger.Debug("sending packets for DH-part2")
	rConfirm1Frame, ok := o.SendUntil(myDHGroup[:], packet.TypeConfirm1, false)
	if !ok {
		logger.Warn("timeout reached waiting for CONFIRM1")
		return nil, fmt.Errorf("handshake: timeout waiting for CONFIRM1")
	}
	if err := verifyConfirm(sess, rConfirm1Frame, packet.TypeConfirm1, "Responder HMAC key", rDHFields.H1, logger); err != nil {
		return nil, err
	}

	// 8. Send CONFIRM2 ten times, unacknowledged, then transition to voice phase.
	myConfirm2, err := buildConfirm(sess, packet.TypeConfirm2, "Initiator HMAC key")
	if err != nil {
		return nil, err
	}
	sendRepeated(o, myConfirm2, 10)

	logger.Info("handshake complete (initiator)")
	return &Result{Session: sess}, nil
}

// RunResponder drives the responder side of the handshake (spec.md §4.7
// "Responder").
func RunResponder(o *overlay.Overlay, ownZID identity.ZID, logger *slog.Logger) (*Result, error) {
	logger = withDefault(logger)
	sess, err := session.New(session.Responder)
	if err != nil {
		return nil, fmt.Errorf("handshake: init session: %w", err)
	}
	zid := zidBytes(ownZID)

	// 1. Wait forever for the initiator's HELLO.
	iHelloFrame, ok := o.WaitUntil(packet.TypeHello, true)
	if !ok {
		return nil, fmt.Errorf("handshake: timeout waiting for initiator HELLO")
	}
	iHello, err := packet.ParseHello(iHelloFrame)
	if err != nil {
		return nil, fmt.Errorf("handshake: parse initiator HELLO: %w", err)
	}
	logger.Debug("received packet: HELLO", "initiator_zid", fmt.Sprintf("%x", iHello.ZID))

	// 2. Send own HELLO, wait for COMMIT, verify it against the initiator's HELLO.
	myHello, err := buildHello(sess, zid)
	if err != nil {
		return nil, err
	}
	logger.Debug("sending packet: HELLO")
	iCommitFrame, ok := o.SendUntil([]packet.Frame{myHello}, packet.TypeCommit, false)
	if !ok {
		logger.Warn("timeout reached waiting for COMMIT")
		return nil, fmt.Errorf("handshake: timeout waiting for COMMIT")
	}
	iCommit, err := packet.ParseCommit(iCommitFrame)
	if err != nil {
		return nil, fmt.Errorf("handshake: parse COMMIT: %w", err)
	}
	if iCommit.ZID != iHello.ZID {
		return nil, fmt.Errorf("handshake: COMMIT ZID does not match HELLO ZID")
	}
	if !session.VerifyPacketHMAC(iCommit.H2[:], packet.HelloSignedPrefix(iHelloFrame), iHello.MAC) {
		logger.Error("HMAC failed in initiator's HELLO packet")
		return nil, fmt.Errorf("handshake: initiator HELLO MAC verification failed")
	}
	if !session.VerifyHash(iCommit.H2, iHello.H3) {
		logger.Error("hash chain verification failed: sha256(h2) != h3")
		return nil, fmt.Errorf("handshake: initiator hash chain verification failed")
	}
	logger.Debug("valid COMMIT packet")
	sess.SetCounterSuffix(iCommit.CounterSuffix)

	// 3. Send own DHPART1 group, wait for the initiator's DHPART2 group, verify COMMIT.
	myDHGroup, _, err := buildDHPartGroup(sess, false)
	if err != nil {
		return nil, err
	}
	logger.Debug("sending packets for DH-part1")
	iDHGroup, ok := sendDHPart1AndCollectDHPart2(o, myDHGroup, logger)
	if !ok {
		return nil, fmt.Errorf("handshake: timeout waiting for initiator DHPART2")
	}

	iDHFields, err := packet.ReassembleDHPart(iDHGroup)
	if err != nil {
		return nil, fmt.Errorf("handshake: reassemble initiator DHPART2: %w", err)
	}
	if !session.VerifyPacketHMAC(iDHFields.H1[:], packet.CommitSignedPrefix(iCommitFrame), iCommit.MAC) {
		logger.Error("HMAC failed in initiator's COMMIT packet")
		return nil, fmt.Errorf("handshake: initiator COMMIT MAC verification failed")
	}
	if !session.VerifyHash(iDHFields.H1, iCommit.H2) {
		logger.Error("hash chain verification failed: sha256(h1) != h2")
		return nil, fmt.Errorf("handshake: initiator hash chain verification failed")
	}

	// 4. Assemble transcript, derive s0 and the key schedule (roles swapped
	// relative to the initiator).
	sess.SetTranscript(buildTranscript(myHello, iCommitFrame, myDHGroup, iDHGroup))
	sess.SetPartnerPublicKey(iDHFields.Pub[:])
	if err := sess.ComputeSecret(iHello.ZID, zid); err != nil {
		return nil, fmt.Errorf("handshake: compute secret: %w", err)
	}
	sess.DeriveKeys()

	// 5. Send CONFIRM1, wait for CONFIRM2, verify it, verify the revealed h0.
	myConfirm1, err := buildConfirm(sess, packet.TypeConfirm1, "Responder HMAC key")
	if err != nil {
		return nil, err
	}
	iConfirm2Frame, ok := o.SendUntil([]packet.Frame{myConfirm1}, packet.TypeConfirm2, false)
	if !ok {
		logger.Warn("timeout reached waiting for CONFIRM2")
		return nil, fmt.Errorf("handshake: timeout waiting for CONFIRM2")
	}
	if err := verifyConfirm(sess, iConfirm2Frame, packet.TypeConfirm2, "Initiator HMAC key", iDHFields.H1, logger); err != nil {
		return nil, err
	}

	logger.Info("handshake complete (responder)")
	return &Result{Session: sess}, nil
}

func withDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func zidBytes(z identity.ZID) [12]byte {
	var out [12]byte
	copy(out[:], z[:])
	return out
}

func buildHello(sess *session.Session, zid [12]byte) (packet.Frame, error) {
	payload := packet.HelloPayload(sess.H3(), zid)
	mac, err := sess.HmacHn(2, payload)
	if err != nil {
		return packet.Frame{}, fmt.Errorf("handshake: hello mac: %w", err)
	}
	return packet.BuildHello(sess.H3(), zid, mac), nil
}

func buildCommit(sess *session.Session, zid [12]byte, counterSuffix [8]byte) (packet.Frame, error) {
	payload := packet.CommitPayload(sess.H2(), zid, counterSuffix)
	mac, err := sess.HmacHn(1, payload)
	if err != nil {
		return packet.Frame{}, fmt.Errorf("handshake: commit mac: %w", err)
	}
	return packet.BuildCommit(sess.H2(), zid, counterSuffix, mac), nil
}

// buildDHPartGroup builds this session's own DHPART1 (initiator=false) or
// DHPART2 (initiator=true) frame group.
func buildDHPartGroup(sess *session.Session, initiator bool) (packet.DHPartGroup, packet.DHPartFields, error) {
	pub := sess.PackedPublicKey()
	payload := packet.DHPartLogicalPayload(sess.H1(), pub)
	mac, err := sess.HmacHn(0, payload)
	if err != nil {
		return packet.DHPartGroup{}, packet.DHPartFields{}, fmt.Errorf("handshake: dhpart mac: %w", err)
	}
	group, err := packet.BuildDHPartGroup(payload, mac, initiator)
	if err != nil {
		return packet.DHPartGroup{}, packet.DHPartFields{}, fmt.Errorf("handshake: build dhpart group: %w", err)
	}
	fields, err := packet.ReassembleDHPart(group)
	if err != nil {
		return packet.DHPartGroup{}, packet.DHPartFields{}, fmt.Errorf("handshake: reassemble own dhpart group: %w", err)
	}
	return group, fields, nil
}

func buildConfirm(sess *session.Session, tag byte, macKeyLabel string) (packet.Frame, error) {
	h0 := sess.H0()
	encH0Bytes, err := sess.Encrypt(h0[:])
	if err != nil {
		return packet.Frame{}, fmt.Errorf("handshake: encrypt own h0: %w", err)
	}
	var encH0 [32]byte
	copy(encH0[:], encH0Bytes)

	macKey := sess.HmacS0([]byte(macKeyLabel))
	mac := primitives.TruncatedHmac(macKey[:], encH0[:])
	return packet.BuildConfirm(tag, mac, encH0), nil
}

// verifyConfirm validates a CONFIRM frame's own MAC, then decrypts the
// peer's revealed h0 and checks sha256(h0) == h1 against the peer's
// DHPART hash chain link (spec.md §4.7 steps 7/5).
func verifyConfirm(sess *session.Session, frame packet.Frame, tag byte, macKeyLabel string, peerH1 [32]byte, logger *slog.Logger) error {
	fields, err := packet.ParseConfirm(frame, tag)
	if err != nil {
		return fmt.Errorf("handshake: parse confirm: %w", err)
	}
	macKey := sess.HmacS0([]byte(macKeyLabel))
	if !session.VerifyPacketHMAC(macKey[:], fields.EncryptedH0[:], fields.MAC) {
		logger.Error("HMAC failed in peer's CONFIRM packet")
		return fmt.Errorf("handshake: confirm MAC verification failed")
	}
	h0Bytes, err := sess.Decrypt(fields.EncryptedH0[:])
	if err != nil {
		return fmt.Errorf("handshake: decrypt peer h0: %w", err)
	}
	var h0 [32]byte
	copy(h0[:], h0Bytes)
	if !session.VerifyHash(h0, peerH1) {
		logger.Error("hash chain verification failed: sha256(h0) != h1")
		return fmt.Errorf("handshake: peer h0 verification failed")
	}
	return nil
}

// waitRemainingDHPartFrames fills group[1:5] by waiting for the four
// successor frames in order, returning false on the first timeout.
func waitRemainingDHPartFrames(o *overlay.Overlay, group *packet.DHPartGroup, tags [4]byte, logger *slog.Logger) bool {
	for i, tag := range tags {
		frame, ok := o.WaitUntil(tag, false)
		if !ok {
			logger.Warn("timeout reached waiting for DHPART frame", "tag", tag)
			return false
		}
		group[i+1] = frame
	}
	return true
}

func sendCommitAndCollectDHPart(o *overlay.Overlay, myCommit packet.Frame, logger *slog.Logger) (packet.DHPartGroup, bool) {
	var group packet.DHPartGroup
	first, ok := o.SendUntil([]packet.Frame{myCommit}, packet.TypeDHPart11, false)
	if !ok {
		logger.Warn("timeout reached waiting for DHPART11")
		return group, false
	}
	group[0] = first
	tags := [4]byte{packet.TypeDHPart12, packet.TypeDHPart13, packet.TypeDHPart14, packet.TypeDHPart15}
	if !waitRemainingDHPartFrames(o, &group, tags, logger) {
		return group, false
	}
	return group, true
}

func sendDHPart1AndCollectDHPart2(o *overlay.Overlay, myDHPart1 packet.DHPartGroup, logger *slog.Logger) (packet.DHPartGroup, bool) {
	var group packet.DHPartGroup
	first, ok := o.SendUntil(myDHPart1[:], packet.TypeDHPart21, false)
	if !ok {
		logger.Warn("timeout reached waiting for DHPART21")
		return group, false
	}
	group[0] = first
	tags := [4]byte{packet.TypeDHPart22, packet.TypeDHPart23, packet.TypeDHPart24, packet.TypeDHPart25}
	if !waitRemainingDHPartFrames(o, &group, tags, logger) {
		return group, false
	}
	return group, true
}

// buildTranscript assembles the handshake transcript in wire order
// (spec.md §3 "Handshake transcript"): responder HELLO (53B) || initiator
// COMMIT (61B) || DHPART1 group (64/64/64/64/61) || DHPART2 group
// (64/64/64/64/61).
func buildTranscript(hello packet.Frame, commit packet.Frame, dhPart1, dhPart2 packet.DHPartGroup) []byte {
	out := make([]byte, 0, 53+61+313+313)
	out = append(out, hello[:53]...)
	out = append(out, commit[:61]...)
	out = append(out, flattenDHPartGroup(dhPart1)...)
	out = append(out, flattenDHPartGroup(dhPart2)...)
	return out
}

func flattenDHPartGroup(group packet.DHPartGroup) []byte {
	out := make([]byte, 0, 313)
	out = append(out, group[0][:]...)
	out = append(out, group[1][:]...)
	out = append(out, group[2][:]...)
	out = append(out, group[3][:]...)
	out = append(out, group[4][:61]...)
	return out
}

func sendRepeated(o *overlay.Overlay, frame packet.Frame, times int) {
	for i := 0; i < times; i++ {
		o.Send(frame)
		if i < times-1 {
			time.Sleep(overlay.Delay)
		}
	}
}
