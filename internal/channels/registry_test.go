package channels

import (
	"context"
	"testing"
)

type fakeSender struct {
	lastRecipient string
	lastMessage   string
	err           error
}

func (f *fakeSender) Send(ctx context.Context, recipient, message, priority string) error {
	f.lastRecipient = recipient
	f.lastMessage = message
	return f.err
}

// TestSendUnregisteredChannel verifies ErrChannelOffline for a channel with
// no registered sender.
func TestSendUnregisteredChannel(t *testing.T) {
	r := NewRegistry()
	if err := r.Send(context.Background(), "slack", "u1", "hi", "normal"); err != ErrChannelOffline {
		t.Errorf("Send to unregistered channel = %v, want ErrChannelOffline", err)
	}
}

// TestRegisterSendUnregister verifies the register/send/unregister
// lifecycle: a registered sender receives dispatches, and after Unregister
// the channel reports offline again.
func TestRegisterSendUnregister(t *testing.T) {
	r := NewRegistry()
	fs := &fakeSender{}
	r.Register("slack", fs)

	if !r.Connected("slack") {
		t.Error("expected slack to be connected after Register")
	}
	if err := r.Send(context.Background(), "slack", "u1", "hello", "normal"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fs.lastRecipient != "u1" || fs.lastMessage != "hello" {
		t.Errorf("unexpected dispatch: recipient=%q message=%q", fs.lastRecipient, fs.lastMessage)
	}

	r.Unregister("slack")
	if r.Connected("slack") {
		t.Error("expected slack to be disconnected after Unregister")
	}
	if err := r.Send(context.Background(), "slack", "u1", "hello", "normal"); err != ErrChannelOffline {
		t.Errorf("Send after Unregister = %v, want ErrChannelOffline", err)
	}
}

// TestRegistryNames verifies Names lists every currently registered channel.
func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	r.Register("slack", &fakeSender{})
	r.Register("discord", &fakeSender{})

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}

// TestSendPropagatesSenderError verifies that a sender's own delivery error
// passes through unchanged, distinct from ErrChannelOffline.
func TestSendPropagatesSenderError(t *testing.T) {
	r := NewRegistry()
	wantErr := context.DeadlineExceeded
	r.Register("slack", &fakeSender{err: wantErr})

	if err := r.Send(context.Background(), "slack", "u1", "hi", "normal"); err != wantErr {
		t.Errorf("Send error = %v, want %v", err, wantErr)
	}
}
