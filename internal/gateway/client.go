package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skynet-run/skynet/pkg/protocol"
)

// Client is one WebSocket connection's session state: its handshake
// position, outbound event sequence counter, and a mutex-guarded write
// path so the read loop, the heartbeat ticker, and any async event
// producer (chat streaming, scheduler fan-out) can all write frames
// without racing gorilla/websocket's single-writer requirement.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	writeMu sync.Mutex
	seq     uint64

	state   protocol.HandshakeState
	stateMu sync.Mutex

	// UserID/Channel/ExternalID are populated once the connect handshake
	// resolves an identity, and threaded into every subsequent request's
	// CallerIdentity.
	UserID     string
	Channel    string
	ExternalID string

	closed int32
	done   chan struct{}
}

func newClientID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// NewClient wraps an upgraded connection, leaving it in AwaitingConnect
// until Run processes a successful "connect" request.
func NewClient(conn *websocket.Conn, s *Server) *Client {
	return &Client{
		id: newClientID(), conn: conn, server: s,
		state: protocol.HandshakeAwaitingConnect,
		done:  make(chan struct{}),
	}
}

func (c *Client) setState(s protocol.HandshakeState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Client) getState() protocol.HandshakeState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Run drives the connection's read loop and heartbeat ticker until the
// connection closes or ctx is cancelled. Every inbound frame is dispatched
// to the server's MethodRouter; the handshake timeout is enforced before
// the first successful "connect".
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handshakeTimer := time.AfterFunc(protocol.HandshakeTimeoutSeconds*time.Second, func() {
		if c.getState() == protocol.HandshakeAwaitingConnect {
			slog.Warn("gateway: handshake timeout, closing", "client", c.id)
			c.Close()
		}
	})
	defer handshakeTimer.Stop()

	go c.heartbeatLoop(ctx)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(raw) > protocol.MaxFramePayloadBytes {
			c.writeResponse(protocol.NewErrorResponse("", "FRAME_TOO_LARGE", "frame exceeds maximum payload size"))
			c.Close()
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.writeResponse(protocol.NewErrorResponse("", "MALFORMED_FRAME", err.Error()))
			continue
		}

		if c.getState() == protocol.HandshakeAwaitingConnect && req.Method != protocol.MethodConnect && req.Method != protocol.MethodPing {
			c.writeResponse(protocol.NewErrorResponse(req.ID, "NOT_AUTHENTICATED", "connect must succeed before any other method"))
			continue
		}

		resp := c.server.router.Dispatch(ctx, c, req)
		c.writeResponse(resp)

		if req.Method == protocol.MethodConnect && resp.OK {
			handshakeTimer.Stop()
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(protocol.HeartbeatIntervalSeconds * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.SendEvent(protocol.EventHeartbeat, map[string]interface{}{})
		}
	}
}

// SendEvent writes an unsolicited event frame, stamping it with the
// connection's monotonic sequence number.
func (c *Client) SendEvent(name string, payload interface{}) {
	seq := atomic.AddUint64(&c.seq, 1)
	ev := protocol.NewEvent(name, payload, seq)
	c.writeFrame(ev)
}

// Delta implements agent.EventSink, forwarding a streaming chat delta as a
// chat.delta event.
func (c *Client) Delta(reqID, text, thinking string) {
	c.SendEvent(protocol.EventChatDelta, protocol.ChatDeltaPayload{ReqID: reqID, Text: text, Thinking: thinking})
}

// ToolUse implements agent.EventSink, forwarding an about-to-run tool call
// as a chat.tool_use event.
func (c *Client) ToolUse(reqID, name, input string) {
	c.SendEvent(protocol.EventChatToolUse, protocol.ChatToolUsePayload{ReqID: reqID, Name: name, Input: input})
}

func (c *Client) writeResponse(resp protocol.Response) {
	c.writeFrame(resp)
}

func (c *Client) writeFrame(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if atomic.LoadInt32(&c.closed) == 1 {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(v); err != nil {
		slog.Debug("gateway: write failed", "client", c.id, "error", err)
	}
}

// Close closes the underlying connection exactly once.
func (c *Client) Close() {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	c.setState(protocol.HandshakeClosing)
	close(c.done)
	_ = c.conn.Close()
}
