package fake

import (
	"context"
	"testing"
	"time"
)

func TestTransportDeliversToPeer(t *testing.T) {
	backend := NewTransport()
	frontend := NewTransport()
	backend.Peer = frontend
	frontend.Peer = backend

	if err := backend.Send("frontend", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	source, msg, err := frontend.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if source != "frontend" || msg != "hello" {
		t.Errorf("got (%q, %v), want (\"frontend\", \"hello\")", source, msg)
	}
}

func TestTransportReceiveUnblocksOnClose(t *testing.T) {
	tr := NewTransport()
	done := make(chan error, 1)
	go func() {
		_, _, err := tr.Receive(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	tr.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Errorf("expected an error after Close with empty inbox")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}
