// Package jsonrpc implements the JSON-RPC 2.0 message codec used by the core
// client engine: request/notification/response variants, the wire error
// shape, and the encode/decode entry points that disambiguate an inbound
// byte string into one of the three variants.
package jsonrpc

import "encoding/json"

const version = "2.0"

// Message is the tagged-variant JSON-RPC message: exactly one of Request,
// Notification, or Response.
type Message interface {
	isMessage()
}

// Request is a JSON-RPC call expecting a Response.
type Request struct {
	ID     ID
	Method string
	Params any
}

func (*Request) isMessage() {}

// Notification is a JSON-RPC call with no id; the peer sends no reply.
type Notification struct {
	Method string
	Params any
}

func (*Notification) isMessage() {}

// Response is a reply to a prior Request, carrying exactly one of Result or
// Err.
type Response struct {
	ID     ID
	Result json.RawMessage
	Err    *WireError
}

func (*Response) isMessage() {}

// WireError is the JSON-RPC error object, preserved verbatim from a server
// reply (code, message, and opaque data).
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return e.Message
}

// wireEnvelope is the on-the-wire shape shared by all three variants; it is
// used both to encode (one branch populated) and, critically, to decode: a
// single unmarshal into this struct lets the disambiguation rule in §4.1
// inspect which fields are present before committing to a variant.
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// EncodeMessage encodes a Message variant as a complete JSON-RPC 2.0 value.
func EncodeMessage(msg Message) ([]byte, error) {
	return DefaultCodec.Encode(msg)
}

// DecodeMessage decodes bytes into the correct Message variant, applying the
// disambiguation rule from §4.1: a Response needs an id and a result-or-error;
// a Request needs an id and a method; a Notification needs a method and no
// id. Anything else is a ProtocolError.
func DecodeMessage(data []byte) (Message, error) {
	return DefaultCodec.Decode(data)
}
