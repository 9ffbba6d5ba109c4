package scenectl

import (
	"sync"
	"testing"
	"time"

	"github.com/povbackend/tracebackend/internal/collab/fake"
	"github.com/povbackend/tracebackend/internal/ids"
	"github.com/povbackend/tracebackend/internal/message"
	"github.com/povbackend/tracebackend/internal/optparse"
)

type fakeSender struct {
	mu  sync.Mutex
	out []any
}

func (f *fakeSender) Send(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, msg)
	return nil
}

func (f *fakeSender) messages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.out...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartParserRunsToDoneAndUnlocksNewView(t *testing.T) {
	sender := &fakeSender{}
	parser := &fake.Parser{}
	bounder := &fake.Bounder{}
	s := New(ids.NewSceneID(), message.Address("frontend"), message.Address("backend"), parser, bounder, sender)

	go s.Run()
	defer s.Stop()

	s.StartParser(optparse.ParserOptions{InputFile: "object.pov", Bounding: true, BoundingMethod: 1, BoundingThreshold: 3})

	waitFor(t, time.Second, func() bool {
		done, _ := s.ParseDone()
		return done
	})

	done, failed := s.ParseDone()
	if !done || failed {
		t.Fatalf("ParseDone() = (%v, %v), want (true, false)", done, failed)
	}
	if !bounder.Built {
		t.Error("expected bounding stage to run")
	}
	if err := s.NewView(); err != nil {
		t.Errorf("NewView() = %v, want nil after successful parse", err)
	}
	if s.ViewCount() != 1 {
		t.Errorf("ViewCount() = %d, want 1", s.ViewCount())
	}

	var sawDone bool
	for _, m := range sender.messages() {
		if msg, ok := m.(message.Message); ok && msg.Ident == message.IdentDone {
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("expected a Done message to have been sent")
	}
}

func TestNewViewFailsBeforeParseCompletes(t *testing.T) {
	sender := &fakeSender{}
	s := New(ids.NewSceneID(), message.Address("frontend"), message.Address("backend"), &fake.Parser{}, &fake.Bounder{}, sender)
	if err := s.NewView(); err == nil {
		t.Error("expected NewView to fail before parsing completes")
	}
}

func TestStartParserFailureBlocksNewView(t *testing.T) {
	sender := &fakeSender{}
	parser := &fake.Parser{} // empty InputFile forces Parse to fail
	s := New(ids.NewSceneID(), message.Address("frontend"), message.Address("backend"), parser, &fake.Bounder{}, sender)

	go s.Run()
	defer s.Stop()

	s.StartParser(optparse.ParserOptions{InputFile: "", Bounding: true, BoundingThreshold: 3})

	waitFor(t, time.Second, func() bool {
		done, _ := s.ParseDone()
		return done
	})

	done, failed := s.ParseDone()
	if !done || !failed {
		t.Fatalf("ParseDone() = (%v, %v), want (true, true)", done, failed)
	}
	if err := s.NewView(); err == nil {
		t.Error("expected NewView to fail after a failed parse")
	}
}
