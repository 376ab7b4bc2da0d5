// Package lineage implements LineageWriter (spec.md §3, §4.4): an
// append-only per-record change log, framed as length-prefixed
// msgpack records, grounded directly on the teacher's ipc/frame.go
// length-prefix + msgpack idiom (there adapted from subprocess-stdout
// IPC framing to an object-store-backed append log).
package lineage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/keeperdata/keeperdata/internal/types"
)

// LengthPrefixSize is the size of the big-endian length prefix, as in
// ipc.LengthPrefixSize.
const LengthPrefixSize = 4

// MaxFrameSize bounds a single encoded event, matching ipc.MaxFrameSize's
// role of rejecting corrupt or runaway frames early.
const MaxFrameSize = 16 * 1024 * 1024

const maxPayloadSize = MaxFrameSize - LengthPrefixSize

// FrameError reports a malformed frame in a lineage log: a message and,
// when there is one, the underlying cause.
type FrameError struct {
	Msg string
	Err error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lineage: %s: %v", e.Msg, e.Err)
	}
	return "lineage: " + e.Msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// EncodeEvent encodes a LineageEvent as a length-prefixed msgpack frame.
func EncodeEvent(event types.LineageEvent) ([]byte, error) {
	payload, err := msgpack.Marshal(&event)
	if err != nil {
		return nil, fmt.Errorf("lineage: encode event: %w", err)
	}
	if len(payload) > maxPayloadSize {
		return nil, &FrameError{Msg: fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), maxPayloadSize)}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}

// FrameReader decodes a stream of length-prefixed msgpack LineageEvent
// frames, directly mirroring ipc.FrameDecoder's shape.
type FrameReader struct {
	reader *bufio.Reader
}

// NewFrameReader wraps r for sequential frame reads.
func NewFrameReader(r io.Reader) *FrameReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &FrameReader{reader: br}
}

// ReadEvent reads and decodes the next event, returning io.EOF when
// the stream is exhausted cleanly.
func (d *FrameReader) ReadEvent() (types.LineageEvent, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return types.LineageEvent{}, io.EOF
		}
		return types.LineageEvent{}, &FrameError{Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > maxPayloadSize {
		return types.LineageEvent{}, &FrameError{Msg: fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, maxPayloadSize)}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return types.LineageEvent{}, &FrameError{Msg: "failed to read payload", Err: err}
	}

	var event types.LineageEvent
	if err := msgpack.Unmarshal(payload, &event); err != nil {
		return types.LineageEvent{}, &FrameError{Msg: "failed to decode event", Err: err}
	}
	return event, nil
}

// ReadAll drains every frame from r in order.
func ReadAll(r io.Reader) ([]types.LineageEvent, error) {
	dec := NewFrameReader(r)
	var events []types.LineageEvent
	for {
		event, err := dec.ReadEvent()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}
