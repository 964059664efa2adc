package gateway

import (
	"sync"

	"github.com/google/uuid"

	"github.com/skynet-run/skynet/internal/terminal"
)

// terminalRegistry tracks the persistent PTY sessions opened via
// terminal.create, keyed by session id, across every connection — a
// session outlives the WebSocket connection that created it so a
// reconnecting client (or a different client entirely) can terminal.read
// it back.
type terminalRegistry struct {
	mu       sync.Mutex
	sessions map[string]*terminal.Session
}

func newTerminalRegistry() *terminalRegistry {
	return &terminalRegistry{sessions: make(map[string]*terminal.Session)}
}

func (r *terminalRegistry) create(shell, workingDir string) (string, *terminal.Session, error) {
	sess, err := terminal.NewSession(shell, workingDir)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()
	return id, sess, nil
}

func (r *terminalRegistry) get(id string) (*terminal.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *terminalRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *terminalRegistry) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}
