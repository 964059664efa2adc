package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skynet-run/skynet/internal/agent"
	"github.com/skynet-run/skynet/internal/scheduler"
	"github.com/skynet-run/skynet/internal/sessions"
	"github.com/skynet-run/skynet/internal/store"
	"github.com/skynet-run/skynet/internal/terminal"
	"github.com/skynet-run/skynet/internal/tools"
	"github.com/skynet-run/skynet/pkg/protocol"
)

// methodHandler answers one request's params, returning either a payload
// to marshal into a successful Response or an ErrorPayload.
type methodHandler func(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload)

// MethodRouter is the gateway's dispatch table over pkg/protocol's 27
// methods, one handler per name, built once at server construction.
type MethodRouter struct {
	server   *Server
	handlers map[string]methodHandler
}

func NewMethodRouter(s *Server) *MethodRouter {
	r := &MethodRouter{server: s, handlers: make(map[string]methodHandler)}
	r.handlers[protocol.MethodPing] = r.ping
	r.handlers[protocol.MethodConnect] = r.connect
	r.handlers[protocol.MethodChatSend] = r.chatSend
	r.handlers[protocol.MethodAgentStatus] = r.agentStatus
	r.handlers[protocol.MethodAgentModel] = r.agentModel
	r.handlers[protocol.MethodProviderStatus] = r.providerStatus
	r.handlers[protocol.MethodSessionsList] = r.sessionsList
	r.handlers[protocol.MethodSessionsGet] = r.sessionsGet
	r.handlers[protocol.MethodMemorySearch] = r.memorySearch
	r.handlers[protocol.MethodMemoryLearn] = r.memoryLearn
	r.handlers[protocol.MethodMemoryForget] = r.memoryForget
	r.handlers[protocol.MethodCronList] = r.cronList
	r.handlers[protocol.MethodCronAdd] = r.cronAdd
	r.handlers[protocol.MethodCronRemove] = r.cronRemove
	r.handlers[protocol.MethodTerminalExec] = r.terminalExec
	r.handlers[protocol.MethodTerminalCreate] = r.terminalCreate
	r.handlers[protocol.MethodTerminalWrite] = r.terminalWrite
	r.handlers[protocol.MethodTerminalRead] = r.terminalRead
	r.handlers[protocol.MethodTerminalKill] = r.terminalKill
	r.handlers[protocol.MethodTerminalList] = r.terminalList
	r.handlers[protocol.MethodTerminalExecBg] = r.terminalExecBg
	r.handlers[protocol.MethodTerminalJobStatus] = r.terminalJobStatus
	r.handlers[protocol.MethodTerminalJobList] = r.terminalJobList
	r.handlers[protocol.MethodTerminalJobKill] = r.terminalJobKill
	r.handlers[protocol.MethodSystemVersion] = r.systemVersion
	r.handlers[protocol.MethodSystemCheckUpdate] = r.systemCheckUpdate
	r.handlers[protocol.MethodSystemUpdate] = r.systemUpdate
	return r
}

// Dispatch answers one request frame, returning UNKNOWN_METHOD for a name
// outside the registered table.
func (mr *MethodRouter) Dispatch(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	h, ok := mr.handlers[req.Method]
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.ErrUnknownMethod, fmt.Sprintf("unrecognized method %q", req.Method))
	}
	payload, errPayload := h(ctx, c, req.Params)
	if errPayload != nil {
		return protocol.NewErrorResponse(req.ID, errPayload.Code, errPayload.Message)
	}
	return protocol.NewOKResponse(req.ID, payload)
}

func errResult(code, format string, args ...interface{}) (interface{}, *protocol.ErrorPayload) {
	return nil, &protocol.ErrorPayload{Code: code, Message: fmt.Sprintf(format, args...)}
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// --- handshake & liveness ---

func (mr *MethodRouter) ping(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	return map[string]interface{}{"pong": true, "time": time.Now().Format(time.RFC3339)}, nil
}

func (mr *MethodRouter) connect(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var params protocol.ConnectParams
	if err := decodeParams(raw, &params); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid connect params: %v", err)
	}

	auth := mr.server.cfg.Gateway.Auth
	switch auth.Mode {
	case "none":
	case "token":
		if params.Auth.Token == "" || params.Auth.Token != auth.Token {
			return errResult("AUTH_FAILED", "invalid or missing token")
		}
	case "password":
		// Password auth is not implemented: every connect with
		// mode=password fails closed rather than silently accepting any
		// password. Operators are warned about this at startup.
		return errResult("AUTH_FAILED", "password auth mode is not implemented in this build")
	default:
		return errResult("AUTH_FAILED", "unknown auth mode %q", auth.Mode)
	}

	c.setState(protocol.HandshakeAuthenticated)
	c.Channel = "gateway"
	c.ExternalID = c.id
	mr.server.Channels.Register("gateway:"+c.id, gatewaySender{client: c})

	return protocol.ConnectOKPayload{
		Protocol: protocol.ProtocolVersion,
		Features: []string{"chat", "memory", "cron", "terminal", "sessions"},
	}, nil
}

// gatewaySender lets send_message and the scheduler deliver to a connected
// WebSocket client the same way they'd deliver to any other channel.
type gatewaySender struct{ client *Client }

func (g gatewaySender) Send(ctx context.Context, recipient, message, priority string) error {
	g.client.SendEvent(protocol.EventChatDelta, protocol.ChatDeltaPayload{ReqID: "push", Text: message})
	return nil
}

// --- chat ---

type chatSendParams struct {
	SessionKey string `json:"session_key"`
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`
	Model      string `json:"model"`
	Stream     bool   `json:"stream"`
}

func (mr *MethodRouter) chatSend(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p chatSendParams
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid chat.send params: %v", err)
	}
	if p.Message == "" {
		return errResult("INVALID_REQUEST", "message is required")
	}
	externalID := p.ExternalID
	if externalID == "" {
		externalID = c.ExternalID
	}

	res, err := mr.server.Resolver.Resolve(ctx, "gateway", externalID, externalID)
	if err != nil {
		return errResult("INTERNAL_ERROR", "resolve identity: %v", err)
	}
	c.UserID = res.User.ID

	sessionKey := p.SessionKey
	if sessionKey == "" {
		sessionKey = sessions.Build(res.User.ID, "gateway", sessions.SuffixDM)
	}

	reqID := fmt.Sprintf("req_%d", time.Now().UnixNano())
	var sink agent.EventSink
	if p.Stream {
		sink = c
	}

	result, err := mr.server.Loop.Run(ctx, agent.RunRequest{
		ReqID:      reqID,
		SessionKey: sessionKey,
		Channel:    "gateway",
		UserID:     res.User.ID,
		Caller:     tools.CallerIdentity{Channel: "gateway", ExternalID: externalID, UserID: res.User.ID},
		Message:    p.Message,
		Model:      p.Model,
		Stream:     p.Stream,
		Sink:       sink,
	})
	if err != nil {
		return errResult("AGENT_ERROR", "%v", err)
	}

	if p.Stream {
		c.SendEvent(protocol.EventChatDone, protocol.ChatDonePayload{
			ReqID: reqID, StopReason: result.StopReason, TokensIn: result.TokensIn, TokensOut: result.TokensOut,
		})
	}

	return map[string]interface{}{
		"req_id":      reqID,
		"content":     result.Content,
		"model":       result.Model,
		"provider":    result.Provider,
		"tokens_in":   result.TokensIn,
		"tokens_out":  result.TokensOut,
		"stop_reason": result.StopReason,
		"session_key": sessionKey,
	}, nil
}

// --- agent / provider status ---

func (mr *MethodRouter) agentStatus(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	return map[string]interface{}{
		"model":   mr.server.Loop.DefaultModel,
		"tools":   mr.server.Tools.Names(),
		"channels": mr.server.Channels.Names(),
	}, nil
}

func (mr *MethodRouter) agentModel(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		Model string `json:"model"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	if p.Model != "" {
		mr.server.Loop.DefaultModel = p.Model
	}
	return map[string]interface{}{"model": mr.server.Loop.DefaultModel}, nil
}

func (mr *MethodRouter) providerStatus(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	return mr.server.Router.Status(), nil
}

// --- sessions ---

func (mr *MethodRouter) sessionsList(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		UserID string `json:"user_id"`
		Limit  int    `json:"limit"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	userID := p.UserID
	if userID == "" {
		userID = c.UserID
	}
	list, err := mr.server.Sessions.ListByPrefix(ctx, "user:"+userID+":", p.Limit)
	if err != nil {
		return errResult("INTERNAL_ERROR", "%v", err)
	}
	return list, nil
}

func (mr *MethodRouter) sessionsGet(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		SessionKey string `json:"session_key"`
	}
	if err := decodeParams(raw, &p); err != nil || p.SessionKey == "" {
		return errResult("MALFORMED_PARAMS", "session_key is required")
	}
	sess, err := mr.server.Sessions.Get(ctx, p.SessionKey)
	if err != nil {
		return errResult("NOT_FOUND", "%v", err)
	}
	return sess, nil
}

// --- memory ---

func (mr *MethodRouter) memorySearch(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		UserID string `json:"user_id"`
		Query  string `json:"query"`
		Limit  int    `json:"limit"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	userID := p.UserID
	if userID == "" {
		userID = c.UserID
	}
	facts, err := mr.server.Memory.Search(ctx, userID, p.Query, p.Limit)
	if err != nil {
		return errResult("INTERNAL_ERROR", "%v", err)
	}
	return facts, nil
}

func (mr *MethodRouter) memoryLearn(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		UserID     string  `json:"user_id"`
		Category   string  `json:"category"`
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
		ExpiresAt  *string `json:"expires_at"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	userID := p.UserID
	if userID == "" {
		userID = c.UserID
	}
	if p.Key == "" || p.Value == "" {
		return errResult("INVALID_REQUEST", "key and value are required")
	}
	if p.Confidence <= 0 {
		p.Confidence = 1.0
	}
	var expiresAt *time.Time
	if p.ExpiresAt != nil && *p.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, *p.ExpiresAt)
		if err != nil {
			return errResult("INVALID_REQUEST", "expires_at must be RFC3339: %v", err)
		}
		expiresAt = &parsed
	}
	fact, err := mr.server.Memory.Learn(ctx, userID, p.Category, p.Key, p.Value, p.Confidence, "memory.learn", expiresAt)
	if err != nil {
		return errResult("INTERNAL_ERROR", "%v", err)
	}
	return fact, nil
}

func (mr *MethodRouter) memoryForget(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		UserID   string `json:"user_id"`
		Category string `json:"category"`
		Key      string `json:"key"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	userID := p.UserID
	if userID == "" {
		userID = c.UserID
	}
	if err := mr.server.Memory.Forget(ctx, userID, p.Category, p.Key); err != nil {
		return errResult("INTERNAL_ERROR", "%v", err)
	}
	return map[string]interface{}{"forgotten": true}, nil
}

// --- scheduler ---

func (mr *MethodRouter) cronList(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	userID := p.UserID
	if userID == "" {
		userID = c.UserID
	}
	jobs, err := mr.server.Jobs.ListForUser(ctx, userID)
	if err != nil {
		return errResult("INTERNAL_ERROR", "%v", err)
	}
	return jobs, nil
}

func (mr *MethodRouter) cronAdd(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		UserID          string `json:"user_id"`
		Name            string `json:"name"`
		ScheduleKind    string `json:"schedule_kind"`
		ScheduleExpr    string `json:"schedule_expr"`
		ActionMessage   string `json:"action_message"`
		ActionChannel   string `json:"action_channel"`
		ActionRecipient string `json:"action_recipient"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	userID := p.UserID
	if userID == "" {
		userID = c.UserID
	}
	kind := store.ScheduleKind(p.ScheduleKind)
	nextFire, err := scheduler.NextFire(kind, p.ScheduleExpr, time.Now())
	if err != nil {
		return errResult("INVALID_SCHEDULE", "%v", err)
	}
	job, err := mr.server.Jobs.Create(ctx, store.ScheduledJob{
		UserID: userID, Name: p.Name, ScheduleKind: kind, ScheduleExpr: p.ScheduleExpr,
		ActionMessage: p.ActionMessage, ActionChannel: p.ActionChannel, ActionRecipient: p.ActionRecipient,
		Enabled: true, NextFire: nextFire,
	})
	if err != nil {
		return errResult("INTERNAL_ERROR", "%v", err)
	}
	return job, nil
}

func (mr *MethodRouter) cronRemove(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		JobID string `json:"job_id"`
	}
	if err := decodeParams(raw, &p); err != nil || p.JobID == "" {
		return errResult("MALFORMED_PARAMS", "job_id is required")
	}
	if err := mr.server.Jobs.Remove(ctx, p.JobID); err != nil {
		return errResult("NOT_FOUND", "%v", err)
	}
	return map[string]interface{}{"removed": true}, nil
}

// --- terminal ---

func (mr *MethodRouter) terminalExec(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		Command    string `json:"command"`
		WorkingDir string `json:"working_dir"`
		TimeoutMS  int64  `json:"timeout_ms"`
	}
	if err := decodeParams(raw, &p); err != nil || p.Command == "" {
		return errResult("MALFORMED_PARAMS", "command is required")
	}
	if dec := tools.CheckCommand(p.Command); !dec.Permitted {
		return errResult("COMMAND_DENIED", "%s", dec.Reason)
	}
	timeout := time.Duration(p.TimeoutMS) * time.Millisecond
	res, err := terminal.RunOneShot(ctx, p.Command, p.WorkingDir, timeout)
	if err != nil {
		return errResult("EXEC_FAILED", "%v", err)
	}
	return res, nil
}

func (mr *MethodRouter) terminalCreate(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		Shell      string `json:"shell"`
		WorkingDir string `json:"working_dir"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return errResult("MALFORMED_PARAMS", "invalid params: %v", err)
	}
	id, _, err := mr.server.terminals.create(p.Shell, p.WorkingDir)
	if err != nil {
		return errResult("EXEC_FAILED", "%v", err)
	}
	return map[string]interface{}{"session_id": id}, nil
}

func (mr *MethodRouter) terminalWrite(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		SessionID string `json:"session_id"`
		Command   string `json:"command"`
		TimeoutMS int64  `json:"timeout_ms"`
	}
	if err := decodeParams(raw, &p); err != nil || p.SessionID == "" {
		return errResult("MALFORMED_PARAMS", "session_id is required")
	}
	sess, ok := mr.server.terminals.get(p.SessionID)
	if !ok {
		return errResult("NOT_FOUND", "no such terminal session")
	}
	if dec := tools.CheckCommand(p.Command); !dec.Permitted {
		return errResult("COMMAND_DENIED", "%s", dec.Reason)
	}
	timeout := time.Duration(p.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = terminal.DefaultTimeout
	}
	output, timedOut, err := sess.Run(ctx, p.Command, timeout)
	if err != nil {
		return errResult("EXEC_FAILED", "%v", err)
	}
	return map[string]interface{}{"output": output, "timed_out": timedOut}, nil
}

func (mr *MethodRouter) terminalRead(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeParams(raw, &p); err != nil || p.SessionID == "" {
		return errResult("MALFORMED_PARAMS", "session_id is required")
	}
	if _, ok := mr.server.terminals.get(p.SessionID); !ok {
		return errResult("NOT_FOUND", "no such terminal session")
	}
	// A persistent session's live output is delivered through its last
	// Run call's return value; terminal.read only confirms the session id is
	// still registered. It reports alive=true without checking whether the
	// shell process has exited.
	return map[string]interface{}{"session_id": p.SessionID, "alive": true}, nil
}

func (mr *MethodRouter) terminalKill(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeParams(raw, &p); err != nil || p.SessionID == "" {
		return errResult("MALFORMED_PARAMS", "session_id is required")
	}
	sess, ok := mr.server.terminals.get(p.SessionID)
	if !ok {
		return errResult("NOT_FOUND", "no such terminal session")
	}
	if err := sess.Close(5 * time.Second); err != nil {
		return errResult("EXEC_FAILED", "%v", err)
	}
	mr.server.terminals.remove(p.SessionID)
	return map[string]interface{}{"killed": true}, nil
}

func (mr *MethodRouter) terminalList(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	return mr.server.terminals.list(), nil
}

func (mr *MethodRouter) terminalExecBg(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		Command    string `json:"command"`
		WorkingDir string `json:"working_dir"`
	}
	if err := decodeParams(raw, &p); err != nil || p.Command == "" {
		return errResult("MALFORMED_PARAMS", "command is required")
	}
	if dec := tools.CheckCommand(p.Command); !dec.Permitted {
		return errResult("COMMAND_DENIED", "%s", dec.Reason)
	}
	id := fmt.Sprintf("job_%d", time.Now().UnixNano())
	job, err := mr.server.jobs.Start(id, p.Command, p.WorkingDir)
	if err != nil {
		return errResult("EXEC_FAILED", "%v", err)
	}
	return map[string]interface{}{"job_id": job.ID}, nil
}

func (mr *MethodRouter) terminalJobStatus(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		JobID string `json:"job_id"`
	}
	if err := decodeParams(raw, &p); err != nil || p.JobID == "" {
		return errResult("MALFORMED_PARAMS", "job_id is required")
	}
	job, ok := mr.server.jobs.Get(p.JobID)
	if !ok {
		return errResult("NOT_FOUND", "no such job")
	}
	status, exitCode, output := job.Snapshot()
	return map[string]interface{}{"status": status, "exit_code": exitCode, "output": output}, nil
}

func (mr *MethodRouter) terminalJobList(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	jobs := mr.server.jobs.List()
	out := make([]map[string]interface{}, 0, len(jobs))
	for _, j := range jobs {
		status, exitCode, _ := j.Snapshot()
		out = append(out, map[string]interface{}{"job_id": j.ID, "command": j.Command, "status": status, "exit_code": exitCode})
	}
	return out, nil
}

func (mr *MethodRouter) terminalJobKill(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	var p struct {
		JobID string `json:"job_id"`
	}
	if err := decodeParams(raw, &p); err != nil || p.JobID == "" {
		return errResult("MALFORMED_PARAMS", "job_id is required")
	}
	job, ok := mr.server.jobs.Get(p.JobID)
	if !ok {
		return errResult("NOT_FOUND", "no such job")
	}
	if err := job.Kill(ctx, 5*time.Second); err != nil {
		return errResult("EXEC_FAILED", "%v", err)
	}
	return map[string]interface{}{"killed": true}, nil
}

// --- system ---

func (mr *MethodRouter) systemVersion(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	v := mr.server.Version
	return map[string]interface{}{
		"version": v.Version, "commit": v.Commit, "install_mode": v.InstallMode,
		"protocol": protocol.ProtocolVersion, "data_dir": v.DataDir,
	}, nil
}

func (mr *MethodRouter) systemCheckUpdate(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	return map[string]interface{}{"update_available": false}, nil
}

func (mr *MethodRouter) systemUpdate(ctx context.Context, c *Client, raw json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	return errResult("NOT_SUPPORTED", "system.update must be invoked via the skynetctl update CLI, not over the wire protocol")
}
