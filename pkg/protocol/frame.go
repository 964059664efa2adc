// Package protocol defines the wire shapes exchanged between the gateway
// and its clients: JSON-tagged request/response/event frames, the method
// and event name constants, and the handshake auth payloads.
package protocol

import "encoding/json"

// ProtocolVersion is the wire protocol version negotiated during connect.
const ProtocolVersion = 3

// MaxFramePayloadBytes is the largest accepted frame payload. Frames over
// this size MUST be rejected with a protocol error and the connection closed.
const MaxFramePayloadBytes = 128 * 1024

// HandshakeTimeoutSeconds is how long a connection may sit in AwaitingConnect
// before the server closes it.
const HandshakeTimeoutSeconds = 10

// HeartbeatIntervalSeconds is the cadence of unsolicited heartbeat events.
const HeartbeatIntervalSeconds = 30

// SlowConsumerBufferBytes is the outbound-sink buffered-byte threshold past
// which a connection is considered a slow consumer and closed.
const SlowConsumerBufferBytes = 1 << 20

// FrameType discriminates the three wire frame variants.
type FrameType string

const (
	FrameRequest  FrameType = "req"
	FrameResponse FrameType = "res"
	FrameEvent    FrameType = "event"
)

// Request is a client→server frame invoking a method.
type Request struct {
	Type   FrameType       `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorPayload is the shape of Response.Error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is a server→client frame answering a Request by id.
type Response struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// NewOKResponse builds a successful Response frame from a payload value.
func NewOKResponse(id string, payload interface{}) Response {
	raw, _ := json.Marshal(payload)
	return Response{Type: FrameResponse, ID: id, OK: true, Payload: raw}
}

// NewErrorResponse builds a failed Response frame with a stable short code.
func NewErrorResponse(id, code, message string) Response {
	return Response{Type: FrameResponse, ID: id, OK: false, Error: &ErrorPayload{Code: code, Message: message}}
}

// Event is a server→client unsolicited frame. Seq is monotonic per
// connection across all event frames emitted to that connection.
type Event struct {
	Type    FrameType       `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     uint64          `json:"seq"`
}

// NewEvent builds an Event frame from a name, payload and sequence number.
func NewEvent(name string, payload interface{}, seq uint64) Event {
	raw, _ := json.Marshal(payload)
	return Event{Type: FrameEvent, Event: name, Payload: raw, Seq: seq}
}

// AuthMode enumerates the handshake auth modes the server recognizes.
type AuthMode string

const (
	AuthModeToken    AuthMode = "token"
	AuthModeNone     AuthMode = "none"
	AuthModePassword AuthMode = "password"
)

// ConnectAuth is the auth block of a connect request's params.
type ConnectAuth struct {
	Mode     AuthMode `json:"mode"`
	Token    string   `json:"token,omitempty"`
	Password string   `json:"password,omitempty"`
}

// ConnectParams is the params payload of a "connect" request.
type ConnectParams struct {
	Auth ConnectAuth `json:"auth"`
}

// ConnectChallengePayload is the payload of the connect.challenge event.
type ConnectChallengePayload struct {
	Nonce string `json:"nonce"`
}

// ConnectOKPayload is the payload of a successful connect response.
type ConnectOKPayload struct {
	Protocol int      `json:"protocol"`
	Features []string `json:"features"`
}

// HandshakeState is the per-connection handshake state machine position.
type HandshakeState string

const (
	HandshakeAwaitingConnect HandshakeState = "AwaitingConnect"
	HandshakeAuthenticated   HandshakeState = "Authenticated"
	HandshakeClosing         HandshakeState = "Closing"
)
