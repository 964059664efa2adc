package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/skynet-run/skynet/internal/terminal"
)

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// Exec registers execute_command: a one-shot shell run through the terminal
// subsystem, gated by the three-step safety checker.
type Exec struct {
	workingDir string
}

func NewExec(workingDir string) *Exec {
	return &Exec{workingDir: workingDir}
}

func (e *Exec) Register(r *Registry) {
	r.Register("execute_command", "Execute a shell command and return its output", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command":     map[string]interface{}{"type": "string", "description": "Shell command to run"},
			"timeout_sec": map[string]interface{}{"type": "integer", "description": "Timeout in seconds (default 30, max 300)"},
		},
		"required": []string{"command"},
	}, e.execute)
}

func (e *Exec) execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	decision := CheckCommand(command)
	if !decision.Permitted {
		return ErrorResult(fmt.Sprintf("command denied by safety policy: %s", decision.Reason))
	}

	timeout := terminal.DefaultTimeout
	if secs, ok := intArg(args, "timeout_sec"); ok && secs > 0 {
		timeout = secondsToDuration(secs)
	}

	result, err := terminal.RunOneShot(ctx, command, e.workingDir, timeout)
	if err != nil {
		return ErrorResult(fmt.Sprintf("execution failed: %v", err))
	}
	if result.TimedOut {
		return ErrorResult(fmt.Sprintf("command timed out after %s and was killed", timeout))
	}

	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + result.Stderr
	}
	if output == "" {
		output = "(command completed with no output)"
	}
	if result.ExitCode != 0 {
		output = fmt.Sprintf("exit status %d\n%s", result.ExitCode, output)
		return ErrorResult(truncateMiddle(output))
	}
	return SilentResult(truncateMiddle(output))
}
