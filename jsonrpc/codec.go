package jsonrpc

import (
	"encoding/json"

	segjson "github.com/segmentio/encoding/json"

	"github.com/mcpcore/client-go/mcperrors"
)

// Codec encodes and decodes JSON-RPC messages. It is stateless and
// reentrant (§4.1): a single Codec value is safe for concurrent callers and
// carries no per-message state between calls.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// stdCodec is the default Codec, built on encoding/json.
type stdCodec struct{}

// DefaultCodec is the standard encoding/json-backed Codec, used by the
// package-level EncodeMessage/DecodeMessage helpers and by any transport
// that isn't explicitly configured with a different Codec (see
// mcpconfig.ClientConfig.Codec and ClientConfigBuilder.WithFastCodec).
var DefaultCodec Codec = stdCodec{}

// FastCodec is an alternate Codec that marshals and unmarshals with
// github.com/segmentio/encoding/json, a drop-in faster replacement for the
// standard library's encoding/json. Select it via ClientConfig for
// high-throughput connections; its wire format is identical to stdCodec's.
var FastCodec Codec = fastCodec{}

func (stdCodec) Encode(msg Message) ([]byte, error) {
	env, err := toEnvelope(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (stdCodec) Decode(data []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &mcperrors.ProtocolError{Reason: "malformed message: " + err.Error()}
	}
	return fromEnvelope(&env)
}

type fastCodec struct{}

func (fastCodec) Encode(msg Message) ([]byte, error) {
	env, err := toEnvelope(msg)
	if err != nil {
		return nil, err
	}
	return segjson.Marshal(env)
}

func (fastCodec) Decode(data []byte) (Message, error) {
	var env wireEnvelope
	if err := segjson.Unmarshal(data, &env); err != nil {
		return nil, &mcperrors.ProtocolError{Reason: "malformed message: " + err.Error()}
	}
	return fromEnvelope(&env)
}

// toEnvelope marshals a Message variant's params/result into the shared wire
// shape, stamping the literal "jsonrpc":"2.0" field.
func toEnvelope(msg Message) (*wireEnvelope, error) {
	env := &wireEnvelope{JSONRPC: version}
	switch m := msg.(type) {
	case *Request:
		env.ID = &m.ID
		env.Method = m.Method
		if m.Params != nil {
			raw, err := json.Marshal(m.Params)
			if err != nil {
				return nil, err
			}
			env.Params = raw
		}
	case *Notification:
		env.Method = m.Method
		if m.Params != nil {
			raw, err := json.Marshal(m.Params)
			if err != nil {
				return nil, err
			}
			env.Params = raw
		}
	case *Response:
		env.ID = &m.ID
		env.Result = m.Result
		env.Error = m.Err
	default:
		return nil, &mcperrors.ProtocolError{Reason: "unknown message variant"}
	}
	return env, nil
}

// fromEnvelope applies the §4.1 disambiguation rule, in order:
//
//  1. id present and (result or error) present -> Response
//  2. id present and method present -> Request
//  3. id absent and method present -> Notification
//  4. otherwise -> ProtocolError
func fromEnvelope(env *wireEnvelope) (Message, error) {
	hasID := env.ID != nil && !env.ID.IsZero()
	hasResultOrErr := env.Result != nil || env.Error != nil

	switch {
	case hasID && hasResultOrErr:
		if env.Result != nil && env.Error != nil {
			return nil, &mcperrors.ProtocolError{Reason: "response has both result and error"}
		}
		return &Response{ID: *env.ID, Result: env.Result, Err: env.Error}, nil

	case hasID && env.Method != "":
		req := &Request{ID: *env.ID, Method: env.Method}
		if env.Params != nil {
			req.Params = env.Params
		}
		return req, nil

	case !hasID && env.Method != "":
		notif := &Notification{Method: env.Method}
		if env.Params != nil {
			notif.Params = env.Params
		}
		return notif, nil

	case hasID:
		return nil, &mcperrors.ProtocolError{Reason: "response missing both result and error"}

	default:
		return nil, &mcperrors.ProtocolError{Reason: "malformed message"}
	}
}
