// Package voice runs the post-handshake voice-phase relay (spec.md
// §4.8): pulls compressed frames from the external encoder, encrypts
// and sends them twice for loss tolerance; polls the transport for
// voice frames, decrypts them, and pushes the codec payload to the
// external decoder.
//
// Grounded on the teacher's stream package: a long-lived per-direction
// pump reacting to cell arrival (stream.Stream.Read's loop over
// ReceiveRelay), generalized from a single reliable stream to a
// symmetric encrypt-send/receive-decrypt voice loop over a lossy
// transport with no acknowledgement.
package voice

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmdx/voiz-go/packet"
	"github.com/jmdx/voiz-go/session"
	"github.com/jmdx/voiz-go/transport"
)

// innerTag is the plaintext tag byte every voice frame's decrypted
// payload must carry; it is the only integrity check on voice frames
// (spec.md §4.8, §7) — there is no per-frame MAC.
const innerTag = packet.TypeCodec2

// codecPayloadLen is the 63-byte compressed-audio payload carried
// alongside the inner tag byte inside each 64-byte encrypted block.
const codecPayloadLen = 63

// Source and Sink are the external codec boundary: Source yields
// ready-to-send compressed payloads, Sink accepts decoded ones.
// TryNextFrame mirrors the encoder's non-blocking pipe read (spec.md §7).
type Source interface {
	TryNextFrame() (payload []byte, ok bool)
}

// Sink accepts one decoded codec payload for playback.
type Sink interface {
	PushFrame(payload []byte)
}

// Relay drives the voice phase for one session until its context is
// cancelled.
type Relay struct {
	t      *transport.Transport
	sess   *session.Session
	src    Source
	sink   Sink
	logger *slog.Logger
	poll   time.Duration
}

// New creates a Relay. poll is the idle-poll interval when neither the
// encoder nor the transport has anything ready; it has no wire meaning,
// unlike overlay.Delay.
func New(t *transport.Transport, sess *session.Session, src Source, sink Sink, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{t: t, sess: sess, src: src, sink: sink, logger: logger, poll: 5 * time.Millisecond}
}

// Run pumps both directions until ctx is cancelled (SIGINT unwinding,
// spec.md §5).
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		didWork := r.pumpSend()
		didWork = r.pumpRecv() || didWork

		if !didWork {
			time.Sleep(r.poll)
		}
	}
}

// pumpSend pulls one ready encoder frame, if any, encrypts it and sends
// it twice (spec.md §4.8 "simple repetition for loss tolerance").
func (r *Relay) pumpSend() bool {
	payload, ok := r.src.TryNextFrame()
	if !ok {
		return false
	}
	if len(payload) != codecPayloadLen {
		r.logger.Warn("encoder frame has unexpected length", "len", len(payload), "want", codecPayloadLen)
		return true
	}

	inner := make([]byte, 0, 1+codecPayloadLen)
	inner = append(inner, innerTag)
	inner = append(inner, payload...)

	counterPrefix := r.sess.SendCounterPrefix()
	ciphertext, err := r.sess.Encrypt(inner)
	if err != nil {
		r.logger.Warn("voice frame encrypt failed", "error", err)
		return true
	}
	var ciphertextArr [64]byte
	copy(ciphertextArr[:], ciphertext)

	frame := packet.BuildCodec2(counterPrefix, ciphertextArr)
	r.t.SendVoice(frame[:])
	r.t.SendVoice(frame[:])
	return true
}

// pumpRecv polls the transport for one voice frame, if any, decrypts
// and verifies it, and pushes the codec payload to the sink. A bad
// decrypt (inner tag mismatch) is logged and the frame dropped; the
// session is never aborted (spec.md §7).
func (r *Relay) pumpRecv() bool {
	payload, ok := r.t.TryRecvVoice()
	if !ok {
		return false
	}
	if len(payload) != packet.Codec2FrameLen || payload[0] != packet.TypeCodec2 {
		r.logger.Debug("unanticipated packet during voice phase", "len", len(payload))
		return true
	}

	counterPrefix, ciphertext, err := packet.ParseCodec2(payload)
	if err != nil {
		r.logger.Warn("malformed voice frame", "error", err)
		return true
	}

	plaintext, err := r.sess.DecryptVoice(counterPrefix, ciphertext[:])
	if err != nil {
		r.logger.Warn("voice frame decrypt failed", "error", err)
		return true
	}
	if plaintext[0] != innerTag {
		r.logger.Warn("voice frame inner tag mismatch, dropping")
		return true
	}

	r.sink.PushFrame(plaintext[1:])
	return true
}
