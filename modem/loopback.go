package modem

// Loopback is a pair of directly-wired in-memory queues implementing
// Modem, used to drive both handshake roles in-process for the seed
// tests of spec.md §8. Grounded on the teacher's in-process handshake
// simulation style (ntor_test.go's simulateServer, circuit_test.go's
// direct construction of both sides of a hop) generalized to a full
// two-peer frame transport rather than a single function call.
type Loopback struct {
	outbound chan []byte
	inbound  chan []byte
}

// NewLoopbackPair returns two Modems wired to each other: frames sent on
// a's SendPkt arrive at b's RecvPkt, and vice versa.
func NewLoopbackPair(buffer int) (a, b *Loopback) {
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	a = &Loopback{outbound: ab, inbound: ba}
	b = &Loopback{outbound: ba, inbound: ab}
	return a, b
}

// SendPkt enqueues payload for the peer. It copies payload since the
// modem owns no reference to the caller's buffer after this call
// returns.
func (l *Loopback) SendPkt(payload []byte) {
	cp := append([]byte{}, payload...)
	select {
	case l.outbound <- cp:
	default:
		// Best-effort, lossy: a full queue drops the frame, mirroring the
		// acoustic link's lack of delivery guarantees (spec.md §4.5).
	}
}

// RecvPkt returns the next queued frame, if any, without blocking.
func (l *Loopback) RecvPkt() ([]byte, bool) {
	select {
	case payload := <-l.inbound:
		return payload, true
	default:
		return nil, false
	}
}

// Drop discards the next n queued inbound frames, simulating dropped
// frames (spec.md §8 scenario 3, "Dropped DHPART13"). The handshake tests
// do not call it; they simulate that scenario by never sending the frame.
func (l *Loopback) Drop(n int) {
	for i := 0; i < n; i++ {
		select {
		case <-l.inbound:
		default:
			return
		}
	}
}
