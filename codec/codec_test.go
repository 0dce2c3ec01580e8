package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEncoderPumpsFramesFromExternalProcess uses `cat` as a stand-in
// codec: whatever PCM bytes are written to its stdin are echoed back on
// stdout unchanged, letting the test exercise the pipe-pump/channel
// plumbing without a real CODEC2 binary.
func TestEncoderPumpsFramesFromExternalProcess(t *testing.T) {
	enc, err := StartEncoder("cat")
	require.NoError(t, err)
	defer enc.Close()

	payload := make([]byte, FrameLen)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	require.NoError(t, enc.WritePCM(payload))

	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	for time.Now().Before(deadline) {
		if frame, ok := enc.TryReadFrame(); ok {
			got = frame
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, payload, got)
}

func TestEncoderTryReadFrameNonBlockingWhenEmpty(t *testing.T) {
	enc, err := StartEncoder("cat")
	require.NoError(t, err)
	defer enc.Close()

	_, ok := enc.TryReadFrame()
	require.False(t, ok)
}
