// Package modem defines the acoustic-modem boundary VoiZ sits on top of
// (spec.md §6 "Modem interface") and ships an in-memory test double for
// driving both peers without real hardware.
//
// Grounded on the teacher's link package, which defines the boundary
// between the protocol core and an actual network connection
// (link.Handshake wraps a *tls.Conn); here the boundary wraps an
// external GFSK acoustic modem instead of TLS, so the interface is
// queue-based (send/poll) rather than stream-based.
package modem

// Modem is the boundary to an external acoustic-modem process: a
// non-blocking, lossy, arbitrary-length frame queue in each direction.
// A real modem is an external collaborator and out of scope here; VoiZ
// only depends on this interface.
type Modem interface {
	// SendPkt enqueues payload for transmission. Implementations must not
	// block; frames the transmitter cannot keep up with may be dropped.
	SendPkt(payload []byte)
	// RecvPkt returns the next received payload, or ok=false if none is
	// queued yet.
	RecvPkt() (payload []byte, ok bool)
}
