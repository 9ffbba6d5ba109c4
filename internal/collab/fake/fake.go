// Package fake provides minimal in-memory collaborators satisfying
// internal/collab's interfaces, used only by this module's own tests —
// never a real intersection kernel, shader, parser or codec.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/povbackend/tracebackend/internal/collab"
	"github.com/povbackend/tracebackend/internal/geom"
)

// Intersector returns a fixed color for every ray, optionally counting
// calls so tests can assert on how many samples were actually traced.
// Trace/photon/radiosity workers call Intersect concurrently from
// multiple goroutines, so the call counter needs its own lock.
type Intersector struct {
	Color geom.Vec3

	mu    sync.Mutex
	calls int
}

func (f *Intersector) Intersect(ctx context.Context, ray geom.Ray, maxTraceLevel int, adcBailout float64) (geom.Vec3, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	// Cheap deterministic variation so antialiasing/convergence tests have
	// something to distinguish between neighbouring samples.
	jitter := ray.Direction.X*0.01 + ray.Direction.Y*0.01
	return f.Color.Add(geom.New(jitter, jitter, jitter)), nil
}

// Calls reports how many times Intersect has been called.
func (f *Intersector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Parser reports a fixed, successful ParseResult without reading any file.
type Parser struct {
	FailWith error
}

func (p *Parser) Parse(ctx context.Context, inputFile string, declares map[string]any, clock float64) (collab.ParseResult, error) {
	if p.FailWith != nil {
		return collab.ParseResult{}, p.FailWith
	}
	if inputFile == "" {
		return collab.ParseResult{}, fmt.Errorf("missing input file")
	}
	return collab.ParseResult{ObjectCount: 1, LightCount: 1, CameraCount: 1, ParsedMaxTraceLevel: 5, ParsedAdcBailout: 1.0 / 255.0}, nil
}

// Bounder does nothing but succeed, recording the call for assertions.
type Bounder struct {
	Built  bool
	Method collab.BoundingMethod
}

func (b *Bounder) Build(ctx context.Context, method collab.BoundingMethod, threshold int) error {
	b.Built = true
	b.Method = method
	return nil
}

type envelope struct {
	source string
	msg    any
}

// Transport is an in-process duplex fake: Send on one end enqueues onto
// Peer's inbound queue (if set), so two Transports can be wired together to
// exercise backend<->front-end message flow without a real socket. The
// source the peer's Receive reports is the destination address given to
// Send, not an address of the sending Transport.
type Transport struct {
	Peer *Transport

	mu     sync.Mutex
	cond   *sync.Cond
	inbox  []envelope
	closed bool
	Sent   []envelope
}

func NewTransport() *Transport {
	t := &Transport{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *Transport) Send(destination string, msg any) error {
	t.mu.Lock()
	t.Sent = append(t.Sent, envelope{source: destination, msg: msg})
	t.mu.Unlock()
	if t.Peer != nil {
		t.Peer.deliver(destination, msg)
	}
	return nil
}

func (t *Transport) deliver(source string, msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, envelope{source: source, msg: msg})
	t.cond.Broadcast()
}

func (t *Transport) Receive(ctx context.Context) (string, any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.inbox) == 0 && !t.closed {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		t.cond.Wait()
	}
	if len(t.inbox) == 0 {
		return "", nil, fmt.Errorf("transport closed")
	}
	e := t.inbox[0]
	t.inbox = t.inbox[1:]
	return e.source, e.msg, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
	return nil
}
