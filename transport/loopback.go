package transport

import "github.com/jmdx/voiz-go/modem"

// Loopback re-exports modem.Loopback: the in-memory two-peer test double
// lives in the modem package (spec.md §6), alongside the Modem interface
// it implements. Kept here too since the handshake and overlay tests are
// written against the transport package's wiring.
type Loopback = modem.Loopback

// NewLoopbackPair re-exports modem.NewLoopbackPair.
func NewLoopbackPair(buffer int) (a, b *Loopback) {
	return modem.NewLoopbackPair(buffer)
}
