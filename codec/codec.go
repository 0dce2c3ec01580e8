// Package codec runs the external voice-codec encoder and decoder
// subprocesses over pipes (spec.md §6 "External voice codec"): the
// encoder reads 16-bit little-endian mono 8 kHz PCM and writes
// fixed-size compressed frames; the decoder is the inverse. Both pipes
// are nominally non-blocking on their read end.
//
// os/exec's pipes carry no portable non-blocking-read primitive the way
// link.Link's *tls.Conn carries SetDeadline (see link.go); instead each
// reader runs on its own goroutine and funnels chunks onto a buffered
// channel, so the "would-block" case of spec.md §7 becomes "channel
// empty," which a consumer checks without blocking. This is a standard
// library choice — no pack dependency offers a non-blocking-pipe
// abstraction better suited to an arbitrary subprocess's stdout.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
)

// FrameLen is the compressed frame size for codec mode 1400 bps: one
// 7-byte frame per 40ms (spec.md §6).
const FrameLen = 7

// PCMFrameLen is the 160-sample, 16-bit mono PCM period the encoder
// consumes per compressed frame (spec.md §6).
const PCMFrameLen = 160 * 2

// Encoder wraps an external encoder subprocess: PCM in, compressed
// frames out.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames chan []byte
	errs   chan error
}

// StartEncoder launches the encoder at path with args and begins
// draining its stdout on a background goroutine.
func StartEncoder(path string, args ...string) (*Encoder, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("codec: encoder stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("codec: encoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("codec: start encoder: %w", err)
	}

	e := &Encoder{
		cmd:    cmd,
		stdin:  stdin,
		frames: make(chan []byte, 64),
		errs:   make(chan error, 1),
	}
	go e.pump(stdout)
	return e, nil
}

func (e *Encoder) pump(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		frame := make([]byte, FrameLen)
		if _, err := io.ReadFull(br, frame); err != nil {
			if err != io.EOF {
				e.errs <- fmt.Errorf("codec: encoder read: %w", err)
			}
			close(e.frames)
			return
		}
		e.frames <- frame
	}
}

// WritePCM feeds one 320-byte PCM period to the encoder.
func (e *Encoder) WritePCM(pcm []byte) error {
	if _, err := e.stdin.Write(pcm); err != nil {
		return fmt.Errorf("codec: write PCM: %w", err)
	}
	return nil
}

// TryReadFrame returns the next compressed frame if one is ready, else
// ok=false — the non-blocking "no data yet" case of spec.md §7.
func (e *Encoder) TryReadFrame() (frame []byte, ok bool) {
	select {
	case frame, ok = <-e.frames:
		return frame, ok
	default:
		return nil, false
	}
}

// Close terminates the encoder subprocess and releases its pipes.
func (e *Encoder) Close() error {
	_ = e.stdin.Close()
	return e.cmd.Wait()
}

// Decoder wraps an external decoder subprocess: compressed frames in,
// PCM out.
type Decoder struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// StartDecoder launches the decoder at path with args.
func StartDecoder(path string, args ...string) (*Decoder, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("codec: decoder stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("codec: start decoder: %w", err)
	}
	return &Decoder{cmd: cmd, stdin: stdin}, nil
}

// WriteFrame feeds one compressed frame to the decoder; its PCM output
// is consumed directly by the audio sink and is not modeled here.
func (d *Decoder) WriteFrame(frame []byte) error {
	if _, err := d.stdin.Write(frame); err != nil {
		return fmt.Errorf("codec: write frame: %w", err)
	}
	return nil
}

// Close terminates the decoder subprocess.
func (d *Decoder) Close() error {
	_ = d.stdin.Close()
	return d.cmd.Wait()
}
