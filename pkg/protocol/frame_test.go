package protocol

import (
	"encoding/json"
	"testing"
)

// TestNewOKResponseMarshalsPayload verifies NewOKResponse round-trips an
// arbitrary payload through JSON and sets the ok/type fields correctly.
func TestNewOKResponseMarshalsPayload(t *testing.T) {
	type inner struct {
		Name string `json:"name"`
	}
	resp := NewOKResponse("req-1", inner{Name: "skynet"})
	if resp.Type != FrameResponse || !resp.OK || resp.ID != "req-1" {
		t.Fatalf("unexpected response shape: %+v", resp)
	}
	if resp.Error != nil {
		t.Errorf("expected no error payload, got %+v", resp.Error)
	}

	var decoded inner
	if err := json.Unmarshal(resp.Payload, &decoded); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if decoded.Name != "skynet" {
		t.Errorf("decoded.Name = %q, want skynet", decoded.Name)
	}
}

// TestNewErrorResponseSetsErrorPayload verifies NewErrorResponse marks
// ok=false and carries the code/message pair without a payload.
func TestNewErrorResponseSetsErrorPayload(t *testing.T) {
	resp := NewErrorResponse("req-2", ErrUnknownMethod, "no such method")
	if resp.OK {
		t.Error("expected OK = false")
	}
	if resp.Error == nil || resp.Error.Code != ErrUnknownMethod || resp.Error.Message != "no such method" {
		t.Errorf("unexpected error payload: %+v", resp.Error)
	}
	if resp.Payload != nil {
		t.Errorf("expected nil payload on an error response, got %s", resp.Payload)
	}
}

// TestNewEventMarshalsPayloadAndSeq verifies NewEvent stamps the event name,
// sequence number, and marshaled payload.
func TestNewEventMarshalsPayloadAndSeq(t *testing.T) {
	ev := NewEvent(EventChatDelta, ChatDeltaPayload{ReqID: "r1", Text: "hi"}, 42)
	if ev.Type != FrameEvent || ev.Event != EventChatDelta || ev.Seq != 42 {
		t.Fatalf("unexpected event shape: %+v", ev)
	}
	var decoded ChatDeltaPayload
	if err := json.Unmarshal(ev.Payload, &decoded); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if decoded.ReqID != "r1" || decoded.Text != "hi" {
		t.Errorf("decoded payload = %+v", decoded)
	}
}

// TestRequestRoundTripsThroughJSON verifies a Request frame survives a
// marshal/unmarshal cycle with its params intact.
func TestRequestRoundTripsThroughJSON(t *testing.T) {
	req := Request{Type: FrameRequest, ID: "1", Method: MethodChatSend, Params: json.RawMessage(`{"message":"hi"}`)}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Request
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != req.Type || decoded.ID != req.ID || decoded.Method != req.Method {
		t.Errorf("decoded = %+v, want %+v", decoded, req)
	}
	if string(decoded.Params) != string(req.Params) {
		t.Errorf("decoded.Params = %s, want %s", decoded.Params, req.Params)
	}
}

// TestMethodsListContainsEveryDeclaredMethod verifies the Methods slice
// (used for fast UNKNOWN_METHOD lookups) stays in sync with every declared
// Method* constant — catching the common mistake of adding a new method
// constant without also adding it to the dispatch list.
func TestMethodsListContainsEveryDeclaredMethod(t *testing.T) {
	declared := []string{
		MethodPing, MethodConnect,
		MethodChatSend,
		MethodAgentStatus, MethodAgentModel, MethodProviderStatus,
		MethodSessionsList, MethodSessionsGet,
		MethodMemorySearch, MethodMemoryLearn, MethodMemoryForget,
		MethodCronList, MethodCronAdd, MethodCronRemove,
		MethodTerminalExec, MethodTerminalCreate, MethodTerminalWrite, MethodTerminalRead,
		MethodTerminalKill, MethodTerminalList, MethodTerminalExecBg,
		MethodTerminalJobStatus, MethodTerminalJobList, MethodTerminalJobKill,
		MethodSystemVersion, MethodSystemCheckUpdate, MethodSystemUpdate,
	}
	if len(Methods) != len(declared) {
		t.Fatalf("len(Methods) = %d, want %d", len(Methods), len(declared))
	}
	set := make(map[string]bool, len(Methods))
	for _, m := range Methods {
		set[m] = true
	}
	for _, d := range declared {
		if !set[d] {
			t.Errorf("Methods is missing declared method %q", d)
		}
	}
}

// TestMethodsHasNoDuplicates verifies the dispatch table never lists the
// same method name twice.
func TestMethodsHasNoDuplicates(t *testing.T) {
	seen := make(map[string]bool, len(Methods))
	for _, m := range Methods {
		if seen[m] {
			t.Errorf("duplicate method in Methods: %q", m)
		}
		seen[m] = true
	}
}
