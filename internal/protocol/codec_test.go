package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		Heartbeat{},
		EnrollmentRequest{},
		PublicKey{Key: []byte{1, 2, 3, 4}},
		EnrollmentAcknowledgment{},
		DeviceInfo{AvailableMemory: 65536, CPUArch: "armv7m", WasmFeatures: "mvp", MaxAppSize: 4096},
		ApplicationStatus{AppID: "app-1", Status: "Running"},
		ApplicationStatus{AppID: "app-1", Status: "Failed", Error: "Division by zero"},
		ApplicationDeployAck{AppID: "app-1", Success: true},
		ApplicationDeployAck{AppID: "app-1", Success: false, Error: "trap"},
		ApplicationStopAck{AppID: "app-1", Success: true},
		HeartbeatAck{},
		EnrollmentAccepted{},
		EnrollmentRejected{Reason: "pairing mode disabled"},
		DeviceUuid{UUID: [16]byte{0xde, 0xad, 0xbe, 0xef}},
		EnrollmentCompleted{},
		ApplicationDeploy{AppID: "app-1", Name: "counter", Bytes: []byte{0x00, 0x61, 0x73, 0x6d}},
		ApplicationStop{AppID: "app-1"},
	}

	for _, msg := range cases {
		frame, err := Encode(msg)
		require.NoError(t, err)

		decoded, n, err := Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, len(frame), n)
		assert.Equal(t, msg, decoded)
	}
}

func TestDecodeShortBufferIsRetriable(t *testing.T) {
	frame, err := Encode(ApplicationDeploy{AppID: "a", Name: "b", Bytes: []byte{1, 2, 3}})
	require.NoError(t, err)

	for i := 0; i < len(frame); i++ {
		_, _, err := Decode(frame[:i])
		assert.ErrorIs(t, err, ErrShortBuffer, "prefix length %d should be retriable", i)
	}

	_, n, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
}

func TestDecodeUnknownTagIsTerminal(t *testing.T) {
	frame, err := Encode(Heartbeat{})
	require.NoError(t, err)

	// Corrupt the tag byte to something never assigned.
	frame[lengthPrefixSize] = 0xEE

	_, _, err = Decode(frame)
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestReadWriteMessageStream(t *testing.T) {
	var buf bytes.Buffer
	msgs := []Message{
		Heartbeat{},
		ApplicationDeploy{AppID: "app-1", Name: "n", Bytes: []byte("payload")},
		ApplicationStop{AppID: "app-1"},
	}

	for _, m := range msgs {
		require.NoError(t, WriteMessage(&buf, m))
	}

	for _, want := range msgs {
		got, err := ReadMessage(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeTwoFramesBackToBack(t *testing.T) {
	f1, _ := Encode(Heartbeat{})
	f2, _ := Encode(HeartbeatAck{})
	combined := append(append([]byte{}, f1...), f2...)

	msg1, n1, err := Decode(combined)
	require.NoError(t, err)
	assert.Equal(t, Heartbeat{}, msg1)

	msg2, n2, err := Decode(combined[n1:])
	require.NoError(t, err)
	assert.Equal(t, HeartbeatAck{}, msg2)
	assert.Equal(t, len(combined), n1+n2)
}
