package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Framing: 4-byte big-endian length prefix (covers tag + body), 1-byte tag,
// then the tag-specific body. Chosen over a self-delimiting tag stream (see
// DESIGN.md) because it lets Decode report "need N more bytes" without
// re-walking anything already read, which matters on a no-heap device that
// cannot re-buffer a partially-seen frame cheaply.
const (
	lengthPrefixSize = 4
	maxFrameBody     = 1 << 20 // 1 MiB; generous enough for ApplicationDeploy payloads
)

// ErrShortBuffer is returned by Decode when the supplied bytes do not yet
// contain a complete frame. Callers should read more bytes and retry.
var ErrShortBuffer = errors.New("protocol: need more bytes")

// ErrUnknownTag is returned by Decode when a frame carries a tag this codec
// does not recognize. Per the forward-compatibility contract, peers must
// never silently drop an unrecognized message.
var ErrUnknownTag = errors.New("protocol: unknown message tag")

// Encode serializes msg into a single self-delimited frame.
func Encode(msg Message) ([]byte, error) {
	body, err := encodeBody(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Tag(), err)
	}

	payload := make([]byte, 1+len(body))
	payload[0] = byte(msg.Tag())
	copy(payload[1:], body)

	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)
	return frame, nil
}

// Decode reads exactly one message from the front of buf. It returns the
// message, the number of bytes consumed, and an error. ErrShortBuffer means
// the caller should supply more bytes and call Decode again; any other
// error is terminal for the connection.
func Decode(buf []byte) (Message, int, error) {
	if len(buf) < lengthPrefixSize {
		return nil, 0, ErrShortBuffer
	}

	bodyLen := binary.BigEndian.Uint32(buf)
	if bodyLen == 0 || bodyLen > maxFrameBody {
		return nil, 0, fmt.Errorf("protocol: invalid frame length %d", bodyLen)
	}

	total := lengthPrefixSize + int(bodyLen)
	if len(buf) < total {
		return nil, 0, ErrShortBuffer
	}

	tag := Tag(buf[lengthPrefixSize])
	body := buf[lengthPrefixSize+1 : total]

	msg, err := decodeBody(tag, body)
	if err != nil {
		return nil, 0, err
	}
	return msg, total, nil
}

// ReadMessage reads exactly one framed message from r, blocking until the
// full frame has arrived.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	if bodyLen == 0 || bodyLen > maxFrameBody {
		return nil, fmt.Errorf("protocol: invalid frame length %d", bodyLen)
	}

	payload := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return decodeBody(Tag(payload[0]), payload[1:])
}

// WriteMessage writes one framed message to w.
func WriteMessage(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ----------------------------------------------------------------------------
// Body encoding. Each variant writes/reads its fields in declaration order
// using length-prefixed strings/byte-slices and fixed-width integers — the
// same approach as the teacher's FrameHeader.Marshal/Unmarshal.
// ----------------------------------------------------------------------------

func encodeBody(msg Message) ([]byte, error) {
	buf := new(bytes.Buffer)

	switch m := msg.(type) {
	case Heartbeat, EnrollmentRequest, EnrollmentAcknowledgment,
		HeartbeatAck, EnrollmentAccepted, EnrollmentCompleted:
		// no fields

	case PublicKey:
		writeBytes(buf, m.Key)

	case DeviceInfo:
		binary.Write(buf, binary.BigEndian, m.AvailableMemory)
		writeString(buf, m.CPUArch)
		writeString(buf, m.WasmFeatures)
		binary.Write(buf, binary.BigEndian, m.MaxAppSize)

	case ApplicationStatus:
		writeString(buf, m.AppID)
		writeString(buf, m.Status)
		writeString(buf, m.Error)
		writeString(buf, m.Metrics)

	case ApplicationDeployAck:
		writeString(buf, m.AppID)
		writeBool(buf, m.Success)
		writeString(buf, m.Error)

	case ApplicationStopAck:
		writeString(buf, m.AppID)
		writeBool(buf, m.Success)
		writeString(buf, m.Error)

	case EnrollmentRejected:
		writeString(buf, m.Reason)

	case DeviceUuid:
		buf.Write(m.UUID[:])

	case ApplicationDeploy:
		writeString(buf, m.AppID)
		writeString(buf, m.Name)
		writeBytes(buf, m.Bytes)

	case ApplicationStop:
		writeString(buf, m.AppID)

	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	return buf.Bytes(), nil
}

func decodeBody(tag Tag, body []byte) (Message, error) {
	r := bytes.NewReader(body)

	switch tag {
	case TagHeartbeat:
		return Heartbeat{}, nil
	case TagEnrollmentRequest:
		return EnrollmentRequest{}, nil
	case TagEnrollmentAcknowledgment:
		return EnrollmentAcknowledgment{}, nil
	case TagHeartbeatAck:
		return HeartbeatAck{}, nil
	case TagEnrollmentAccepted:
		return EnrollmentAccepted{}, nil
	case TagEnrollmentCompleted:
		return EnrollmentCompleted{}, nil

	case TagPublicKey:
		key, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return PublicKey{Key: key}, nil

	case TagDeviceInfo:
		var mem uint32
		if err := binary.Read(r, binary.BigEndian, &mem); err != nil {
			return nil, err
		}
		arch, err := readString(r)
		if err != nil {
			return nil, err
		}
		features, err := readString(r)
		if err != nil {
			return nil, err
		}
		var maxApp uint32
		if err := binary.Read(r, binary.BigEndian, &maxApp); err != nil {
			return nil, err
		}
		return DeviceInfo{AvailableMemory: mem, CPUArch: arch, WasmFeatures: features, MaxAppSize: maxApp}, nil

	case TagApplicationStatus:
		appID, err := readString(r)
		if err != nil {
			return nil, err
		}
		status, err := readString(r)
		if err != nil {
			return nil, err
		}
		errStr, err := readString(r)
		if err != nil {
			return nil, err
		}
		metrics, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ApplicationStatus{AppID: appID, Status: status, Error: errStr, Metrics: metrics}, nil

	case TagApplicationDeployAck:
		appID, err := readString(r)
		if err != nil {
			return nil, err
		}
		success, err := readBool(r)
		if err != nil {
			return nil, err
		}
		errStr, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ApplicationDeployAck{AppID: appID, Success: success, Error: errStr}, nil

	case TagApplicationStopAck:
		appID, err := readString(r)
		if err != nil {
			return nil, err
		}
		success, err := readBool(r)
		if err != nil {
			return nil, err
		}
		errStr, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ApplicationStopAck{AppID: appID, Success: success, Error: errStr}, nil

	case TagEnrollmentRejected:
		reason, err := readString(r)
		if err != nil {
			return nil, err
		}
		return EnrollmentRejected{Reason: reason}, nil

	case TagDeviceUuid:
		var uuid [16]byte
		if _, err := io.ReadFull(r, uuid[:]); err != nil {
			return nil, err
		}
		return DeviceUuid{UUID: uuid}, nil

	case TagApplicationDeploy:
		appID, err := readString(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return ApplicationDeploy{AppID: appID, Name: name, Bytes: payload}, nil

	case TagApplicationStop:
		appID, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ApplicationStop{AppID: appID}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, byte(tag))
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, fmt.Errorf("protocol: truncated field (want %d, have %d)", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}
