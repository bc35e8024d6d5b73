// Package protocol implements the binary frame codec spoken over the
// WebSocket connection.
//
// Every client frame starts with a tag byte: 0 carries raw input for the
// process, 1 carries a resize record, 2 is a heartbeat probe. Server
// output frames reuse tag 0. The heartbeat acknowledgment is the one
// exception: it is a bare single byte with value 1, not a tagged frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tag bytes selecting the frame variant.
const (
	TagInput     byte = 0
	TagResize    byte = 1
	TagHeartbeat byte = 2

	// TagOutput is the tag on server->client output frames. It shares
	// the value of TagInput; direction disambiguates.
	TagOutput byte = 0
)

// Kind identifies the decoded frame variant.
type Kind int

const (
	// KindInput carries raw bytes destined for the process.
	KindInput Kind = iota

	// KindResize carries new terminal dimensions.
	KindResize

	// KindHeartbeat is an application-level liveness probe.
	KindHeartbeat

	// KindIgnore is produced for unknown tag bytes; the frame has no
	// effect and decoding it is not an error.
	KindIgnore
)

// Frame is one decoded client frame.
type Frame struct {
	Kind    Kind
	Payload []byte // input bytes, only for KindInput; may be empty
	Cols    uint16 // only for KindResize
	Rows    uint16 // only for KindResize
}

// windowSize is the resize record carried after the resize tag.
type windowSize struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// ErrEmptyFrame is returned when a frame has no tag byte.
var ErrEmptyFrame = errors.New("empty frame")

// Decode parses one raw binary frame. The first byte selects the
// variant. An input frame with an empty payload is valid and decodes to
// a no-op input. Unknown tags decode to KindIgnore rather than failing.
func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrEmptyFrame
	}

	switch raw[0] {
	case TagInput:
		return Frame{Kind: KindInput, Payload: raw[1:]}, nil
	case TagResize:
		var ws windowSize
		if err := json.Unmarshal(raw[1:], &ws); err != nil {
			return Frame{}, fmt.Errorf("malformed resize payload: %w", err)
		}
		return Frame{Kind: KindResize, Cols: ws.Cols, Rows: ws.Rows}, nil
	case TagHeartbeat:
		// Remainder, if any, is ignored.
		return Frame{Kind: KindHeartbeat}, nil
	default:
		return Frame{Kind: KindIgnore}, nil
	}
}

// EncodeOutput wraps a chunk of process output into an output frame by
// prepending the tag byte.
func EncodeOutput(payload []byte) []byte {
	out := make([]byte, len(payload)+1)
	out[0] = TagOutput
	copy(out[1:], payload)
	return out
}

// EncodeInput builds a client input frame. Used by clients and tests;
// the server only decodes this direction.
func EncodeInput(payload []byte) []byte {
	out := make([]byte, len(payload)+1)
	out[0] = TagInput
	copy(out[1:], payload)
	return out
}

// EncodeResize builds a client resize frame carrying the JSON window
// size record.
func EncodeResize(cols, rows uint16) []byte {
	record, err := json.Marshal(windowSize{Cols: cols, Rows: rows})
	if err != nil {
		// Marshaling a struct of two integers cannot fail.
		panic(err)
	}
	return append([]byte{TagResize}, record...)
}

// HeartbeatReply returns the heartbeat acknowledgment message: a single
// byte with value 1. Clients match on this literal form, so it must not
// be turned into a tagged frame.
func HeartbeatReply() []byte {
	return []byte{1}
}
