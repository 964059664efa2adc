package terminal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const ringBufferSize = 128 * 1024

// ansiPattern strips terminal escape sequences from PTY output before it's
// handed to an LLM, which has no use for cursor-movement or color codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[()][AB012]`)

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Session is a single persistent PTY-backed shell. Only one command may run
// at a time on a session; callers serialize access with their own mutex
// (the bash tool keeps a process-wide singleton per spec.md §4.7).
type Session struct {
	cmd *exec.Cmd
	f   *os.File

	mu     sync.Mutex
	buf    ringBuffer
	closed bool
}

// NewSession spawns an interactive shell backed by a PTY.
func NewSession(shell, workingDir string) (*Session, error) {
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.Command(shell)
	cmd.Dir = workingDir
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("terminal: start pty: %w", err)
	}
	s := &Session{cmd: cmd, f: f, buf: newRingBuffer(ringBufferSize)}
	go s.pump()
	return s, nil
}

func (s *Session) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := s.f.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Resize adjusts the PTY's terminal size.
func (s *Session) Resize(cols, rows int) error {
	return pty.Setsize(s.f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Run writes command to the session's stdin, then waits up to timeout for a
// unique completion sentinel to appear in the output, returning everything
// captured since the write (ANSI-stripped). On timeout the output collected
// so far is returned with timedOut=true, and the shell is left running.
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration) (output string, timedOut bool, err error) {
	nonce := time.Now().UnixNano()
	sentinel := fmt.Sprintf("__TERMINAL_DONE_%d__", nonce)
	s.mu.Lock()
	startLen := s.buf.Len()
	s.mu.Unlock()

	// The empty '' inside the echoed word keeps the terminal's echo of this
	// command line from matching the sentinel; only the echo output does.
	full := command + fmt.Sprintf("; echo __TERMINAL_''DONE_%d__ $?\n", nonce)
	if _, err := s.f.Write([]byte(full)); err != nil {
		return "", false, fmt.Errorf("terminal: write to pty: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		captured := s.buf.Since(startLen)
		s.mu.Unlock()

		if idx := bytes.Index(captured, []byte(sentinel)); idx >= 0 {
			return StripANSI(string(captured[:idx])), false, nil
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return StripANSI(string(captured)), true, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Close terminates the shell, sending SIGTERM and escalating to SIGKILL if
// it doesn't exit within the grace period.
func (s *Session) Close(grace time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.f.Close()
	if s.cmd.Process == nil {
		return nil
	}
	_ = s.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		_ = s.cmd.Process.Kill()
		<-done
		return nil
	}
}

// ringBuffer is a fixed-capacity byte buffer that drops the oldest bytes
// once full, tracking a monotonic write offset so callers can ask for
// everything written since a prior point even after wraparound.
type ringBuffer struct {
	data    []byte
	cap     int
	written int // total bytes ever written
}

func newRingBuffer(capacity int) ringBuffer {
	return ringBuffer{data: make([]byte, 0, capacity), cap: capacity}
}

func (r *ringBuffer) Write(p []byte) {
	r.written += len(p)
	r.data = append(r.data, p...)
	if len(r.data) > r.cap {
		r.data = r.data[len(r.data)-r.cap:]
	}
}

func (r *ringBuffer) Len() int { return r.written }

// Since returns everything retained since write-offset from, which may be
// less than requested if the buffer has since wrapped past it.
func (r *ringBuffer) Since(from int) []byte {
	dropped := r.written - len(r.data)
	start := from - dropped
	if start < 0 {
		start = 0
	}
	if start > len(r.data) {
		return nil
	}
	return r.data[start:]
}
