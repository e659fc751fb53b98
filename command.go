// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Command tags a request frame.
type Command int8

const (
	CommandClose    Command = -1
	CommandCall     Command = 0
	CommandRegister Command = 1
	CommandConnect  Command = 2
)

func (c Command) String() string {
	switch c {
	case CommandClose:
		return "close"
	case CommandCall:
		return "call"
	case CommandRegister:
		return "register"
	case CommandConnect:
		return "connect"
	default:
		return fmt.Sprintf("command(%d)", int8(c))
	}
}

// cborNull is the encoded CBOR null.
var cborNull = cbor.RawMessage{0xf6}

// request is a decoded [handle, command, payload...] frame.
type request struct {
	handle  Handle
	command Command
	payload []cbor.RawMessage
	moved   []Transferable
}

// encodeRequest builds [handle, command, payload...], unwrapping Transfer
// envelopes. It returns the resources to move; they stay attached until
// Post accepts the frame.
func encodeRequest(h Handle, cmd Command, payload []any) ([]byte, []Transferable, error) {
	var enc encoder
	parts := make([]any, 0, 2+len(payload))
	parts = append(parts, h.Pack(), cmd)
	for _, v := range payload {
		raw, err := enc.encode(v)
		if err != nil {
			return nil, nil, err
		}
		parts = append(parts, raw)
	}
	data, err := encMode.Marshal(parts)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if err := checkAttached(enc.moves.items); err != nil {
		return nil, nil, err
	}
	return data, enc.moves.items, nil
}

func decodeRequest(m Message) (request, error) {
	var parts []cbor.RawMessage
	if err := decMode.Unmarshal(m.Data, &parts); err != nil {
		return request{}, fmt.Errorf("%w: malformed request: %w", ErrTransport, err)
	}
	if len(parts) < 2 {
		return request{}, fmt.Errorf("%w: short request frame", ErrTransport)
	}
	var req request
	var h uint64
	if err := decMode.Unmarshal(parts[0], &h); err != nil {
		return request{}, fmt.Errorf("%w: bad handle: %w", ErrTransport, err)
	}
	req.handle = UnpackHandle(h)
	if err := decMode.Unmarshal(parts[1], &req.command); err != nil {
		return req, fmt.Errorf("%w: bad command: %w", ErrTransport, err)
	}
	req.payload = parts[2:]
	req.moved = m.Moved
	return req, nil
}

// reply is a decoded [handle, error, result] frame.
type reply struct {
	handle Handle
	err    *ErrorEnvelope
	result Value
}

// encodeReply builds [handle, env, result]. result must already be encoded.
func encodeReply(h Handle, env *ErrorEnvelope, result cbor.RawMessage) ([]byte, error) {
	if env != nil {
		result = nil
	}
	data, err := encMode.Marshal([]any{h.Pack(), env, result})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return data, nil
}

func decodeReply(m Message) (reply, error) {
	var parts []cbor.RawMessage
	if err := decMode.Unmarshal(m.Data, &parts); err != nil {
		return reply{}, fmt.Errorf("%w: malformed reply: %w", ErrTransport, err)
	}
	if len(parts) != 3 {
		return reply{}, fmt.Errorf("%w: reply frame has %d parts", ErrTransport, len(parts))
	}
	var rep reply
	var h uint64
	if err := decMode.Unmarshal(parts[0], &h); err != nil {
		return reply{}, fmt.Errorf("%w: bad handle: %w", ErrTransport, err)
	}
	rep.handle = UnpackHandle(h)
	if !isNull(parts[1]) {
		rep.err = new(ErrorEnvelope)
		if err := decMode.Unmarshal(parts[1], rep.err); err != nil {
			return rep, fmt.Errorf("%w: bad error envelope: %w", ErrTransport, err)
		}
	}
	rep.result = Value{raw: parts[2], moved: m.Moved}
	return rep, nil
}

func isNull(raw cbor.RawMessage) bool {
	return len(raw) == 0 || (len(raw) == 1 && (raw[0] == 0xf6 || raw[0] == 0xf7))
}
