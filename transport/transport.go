// Package transport adapts the external modem's best-effort, non-blocking
// send/receive interface (spec.md §4.5, §6) into the typed shape the
// handshake and voice packages consume: fixed 64-byte handshake frames
// plus arbitrary-length voice frames.
//
// Grounded on the teacher's link.Link, which wraps a raw connection
// (*tls.Conn) behind a typed cell.Reader/cell.Writer pair; Transport plays
// the same role for VoiZ's modem, generalized from a reliable stream to a
// lossy, best-effort datagram link with no read-blocking guarantee.
package transport

import (
	"github.com/jmdx/voiz-go/modem"
	"github.com/jmdx/voiz-go/packet"
)

// Modem is an alias for the external collaborator's contract (spec.md
// §6): enqueue a payload for transmission, or poll for the next arrived
// one. Both calls are non-blocking; RecvPkt returns ok=false when
// nothing has arrived since the last call.
type Modem = modem.Modem

// Transport sends already-padded packet.FrameLen handshake frames and
// exposes typed send/receive for both the fixed-frame handshake path and the
// longer voice-frame path.
type Transport struct {
	modem Modem
}

// New wraps a Modem in a Transport.
func New(modem Modem) *Transport {
	return &Transport{modem: modem}
}

// Send transmits one 64-byte handshake frame.
func (t *Transport) Send(frame packet.Frame) {
	t.modem.SendPkt(frame[:])
}

// TryRecv returns the next complete handshake frame if one has arrived,
// else ok=false. A payload that isn't exactly FrameLen bytes (e.g. a
// voice frame landing on the handshake path) is treated as absent here;
// callers needing voice frames use TryRecvVoice.
func (t *Transport) TryRecv() (frame packet.Frame, ok bool) {
	payload, got := t.modem.RecvPkt()
	if !got || len(payload) != packet.FrameLen {
		return packet.Frame{}, false
	}
	copy(frame[:], payload)
	return frame, true
}

// SendVoice transmits an arbitrary-length voice-phase frame (CODEC2,
// spec.md §4.4's 73-byte frame falls outside the 64-byte fixed envelope).
func (t *Transport) SendVoice(payload []byte) {
	t.modem.SendPkt(payload)
}

// TryRecvVoice returns the next arrived payload regardless of length,
// for the caller to validate as a voice frame.
func (t *Transport) TryRecvVoice() (payload []byte, ok bool) {
	return t.modem.RecvPkt()
}
