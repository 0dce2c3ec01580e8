// Package overlay converts the lossy, non-blocking frame transport into
// "send-until-expected-reply-arrives" semantics with timeouts, the
// reliable-delivery layer the handshake state machine is built on
// (spec.md §4.6).
//
// Grounded on the teacher's deadline-based retry idiom in link.Handshake
// (a fixed wall-clock deadline wraps a blocking read) and
// circuit.Create (a 30s deadline around the CREATE2/CREATED2 round
// trip), generalized into an explicit polling loop because VoiZ's
// transport is frame-oriented and non-blocking rather than a blocking
// socket read.
package overlay

import (
	"log/slog"
	"time"

	"github.com/jmdx/voiz-go/packet"
	"github.com/jmdx/voiz-go/transport"
)

// Delay is the pause between transmission/poll attempts. A var, not a
// const, so tests can shrink it instead of running real 15-second
// timeouts.
var Delay = 200 * time.Millisecond

// Timeout is the total time budget for a single logical send, expressed
// as attempts = len(pkts) * Timeout / Delay.
var Timeout = 15 * time.Second

// Overlay drives the reliable-delivery primitives over a Transport.
type Overlay struct {
	t       *transport.Transport
	logger  *slog.Logger
	backoff bool
}

// New creates an Overlay. If backoff is true, SendUntil uses the
// triplicated-send/5-poll collision-avoidance variant (spec.md §4.6).
func New(t *transport.Transport, logger *slog.Logger, backoff bool) *Overlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{t: t, logger: logger, backoff: backoff}
}

// SendUntil transmits pkts in round-robin, polling the receiver once
// after each transmission, until a frame of expectedType arrives or the
// attempt budget is exhausted. A frame of any other type is logged and
// discarded. If waitForever is true, it loops indefinitely instead of
// giving up.
func (o *Overlay) SendUntil(pkts []packet.Frame, expectedType byte, waitForever bool) (packet.Frame, bool) {
	if o.backoff {
		return o.sendUntilBackoff(pkts, expectedType, waitForever)
	}

	attempts := int(float64(len(pkts)) * float64(Timeout) / float64(Delay))
	for waitForever || attempts > 0 {
		for _, pkt := range pkts {
			o.t.Send(pkt)
			if frame, ok := o.pollOnce(expectedType); ok {
				return frame, true
			}
			time.Sleep(Delay)
			attempts--
		}
	}
	return packet.Frame{}, false
}

// sendUntilBackoff implements the optional collision-avoidance variant:
// each send is triplicated, followed by five 200ms receive-poll slots.
// The acoustic channel is half-duplex; triplication amortises collisions
// with a responder who may still be transmitting (spec.md §4.6).
func (o *Overlay) sendUntilBackoff(pkts []packet.Frame, expectedType byte, waitForever bool) (packet.Frame, bool) {
	attempts := int(float64(len(pkts)) * float64(Timeout) / float64(Delay))
	for waitForever || attempts > 0 {
		for _, pkt := range pkts {
			o.t.Send(pkt)
			o.t.Send(pkt)
			o.t.Send(pkt)
			for i := 0; i < 5; i++ {
				if frame, ok := o.pollOnce(expectedType); ok {
					return frame, true
				}
				time.Sleep(Delay)
				attempts--
			}
		}
	}
	return packet.Frame{}, false
}

// Send transmits one frame with no expectation of a reply, used for the
// initiator's un-acknowledged CONFIRM2 repetition (spec.md §4.7 step 8).
func (o *Overlay) Send(frame packet.Frame) {
	o.t.Send(frame)
}

// WaitUntil polls the receiver until a frame of expectedType arrives or
// the attempt budget is exhausted, sending nothing.
func (o *Overlay) WaitUntil(expectedType byte, waitForever bool) (packet.Frame, bool) {
	attempts := int(float64(Timeout) / float64(Delay))
	for waitForever || attempts > 0 {
		if frame, ok := o.pollOnce(expectedType); ok {
			return frame, true
		}
		time.Sleep(Delay)
		attempts--
	}
	return packet.Frame{}, false
}

// pollOnce drains at most one received frame, returning it if it matches
// expectedType. An unexpected frame is logged and discarded; this
// preserves tick pacing even when multiple unanticipated frames are
// queued (spec.md §4.6 invariant).
func (o *Overlay) pollOnce(expectedType byte) (packet.Frame, bool) {
	frame, ok := o.t.TryRecv()
	if !ok {
		return packet.Frame{}, false
	}
	if frame.Type() == expectedType {
		return frame, true
	}
	o.logger.Debug("unanticipated packet", "type", frame.Type(), "expected", expectedType)
	return packet.Frame{}, false
}
