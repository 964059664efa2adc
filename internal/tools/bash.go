package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skynet-run/skynet/internal/terminal"
)

const bashCallTimeout = 60 * time.Second

// Bash registers the bash tool: a single process-wide persistent PTY shell,
// serialized behind a mutex so only one call is ever in flight, per
// spec.md's "shared singletons" requirement.
type Bash struct {
	workingDir string

	mu      sync.Mutex
	session *terminal.Session
}

func NewBash(workingDir string) *Bash {
	return &Bash{workingDir: workingDir}
}

func (b *Bash) Register(r *Registry) {
	r.Register("bash", "Send a line to a persistent shell session and return its output once the command completes", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "Shell command to run in the persistent session"},
		},
		"required": []string{"command"},
	}, b.run)
}

func (b *Bash) run(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	decision := CheckCommand(command)
	if !decision.Permitted {
		return ErrorResult(fmt.Sprintf("command denied by safety policy: %s", decision.Reason))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		sess, err := terminal.NewSession("/bin/sh", b.workingDir)
		if err != nil {
			return ErrorResult(fmt.Sprintf("failed to start bash session: %v", err))
		}
		b.session = sess
	}

	output, timedOut, err := b.session.Run(ctx, command, bashCallTimeout)
	if err != nil {
		return ErrorResult(fmt.Sprintf("bash session error: %v", err))
	}
	if timedOut {
		return ErrorResult(fmt.Sprintf("command did not complete within %s; session left running with output so far:\n%s", bashCallTimeout, truncateMiddle(output)))
	}
	return SilentResult(truncateMiddle(output))
}

// Close terminates the underlying persistent session, if one was started.
func (b *Bash) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	return b.session.Close(5 * time.Second)
}
