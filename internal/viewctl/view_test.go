package viewctl

import (
	"sync"
	"testing"
	"time"

	"github.com/povbackend/tracebackend/internal/collab/fake"
	"github.com/povbackend/tracebackend/internal/geom"
	"github.com/povbackend/tracebackend/internal/ids"
	"github.com/povbackend/tracebackend/internal/message"
	"github.com/povbackend/tracebackend/internal/optparse"
	"github.com/povbackend/tracebackend/internal/trace"
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

func newTestView(sender *fakeSender, intersector *fake.Intersector) *View {
	v := New(ids.NewViewID(), ids.NewSceneID(), message.Address("frontend"), message.Address("backend"), 8, 8, intersector, sender)
	v.Camera = Camera{
		Location:  geom.New(0, 0, -5),
		Direction: geom.New(0, 0, 1),
		Up:        geom.New(0, 1, 0),
		Right:     geom.New(1, 0, 0),
		Sky:       geom.New(0, 1, 0),
	}
	return v
}

func TestStartRenderCompletesAndSendsDone(t *testing.T) {
	sender := &fakeSender{}
	intersector := &fake.Intersector{Color: geom.New(0.5, 0.5, 0.5)}
	v := newTestView(sender, intersector)

	go v.Run()
	defer v.Stop()

	opts := optparse.DefaultRenderOptions()
	opts.RenderBlockSize = 4
	v.StartRender(opts)

	waitFor(t, 2*time.Second, func() bool {
		for _, m := range sender.messages() {
			if msg, ok := m.(message.Message); ok && (msg.Ident == message.IdentDone || msg.Ident == message.IdentFailed) {
				return true
			}
		}
		return false
	})

	var sawDone bool
	for _, m := range sender.messages() {
		if msg, ok := m.(message.Message); ok {
			if msg.Ident == message.IdentFailed {
				t.Fatalf("render failed: %+v", msg.Attributes)
			}
			if msg.Ident == message.IdentDone {
				sawDone = true
			}
		}
	}
	if !sawDone {
		t.Error("expected a Done message")
	}
	if intersector.Calls() == 0 {
		t.Error("expected the intersector to have been sampled")
	}
}

func TestStartRenderPopulatesPixelBlockSetPixels(t *testing.T) {
	sender := &fakeSender{}
	intersector := &fake.Intersector{Color: geom.New(2, -1, 0.5)}
	v := newTestView(sender, intersector)

	go v.Run()
	defer v.Stop()

	opts := optparse.DefaultRenderOptions()
	opts.RenderBlockSize = 4
	v.StartRender(opts)

	waitFor(t, 2*time.Second, func() bool {
		for _, m := range sender.messages() {
			if msg, ok := m.(message.Message); ok && msg.Ident == message.IdentDone {
				return true
			}
		}
		return false
	})

	var sawPixels bool
	for _, m := range sender.messages() {
		msg, ok := m.(message.Message)
		if !ok || msg.Ident != message.IdentPixelBlockSet {
			continue
		}
		pbs, ok := msg.Attributes["PixelBlockSet"].(message.PixelBlockSet)
		if !ok || len(pbs.Pixels) == 0 {
			continue
		}
		sawPixels = true
		for _, p := range pbs.Pixels {
			if p.R < 0 || p.R > 1 || p.G < 0 || p.G > 1 {
				t.Fatalf("pixel out of clamped range: %+v", p)
			}
		}
	}
	if !sawPixels {
		t.Error("expected at least one PixelBlockSet carrying non-empty Pixels")
	}
}

func TestToPixelColorClampsAndGammaEncodes(t *testing.T) {
	c := toPixelColor(geom.New(2, -1, 0.25), 2.0)
	if c.R != 1 || c.G != 0 {
		t.Errorf("expected out-of-range channels clamped, got %+v", c)
	}
	if c.B != 0.5 {
		t.Errorf("expected B gamma-encoded from 0.25 to 0.5 with gamma 2, got %v", c.B)
	}
}

func TestPixelColorsPreservesOrder(t *testing.T) {
	pixels := []trace.Pixel{
		{X: 0, Y: 0, Color: geom.New(1, 0, 0)},
		{X: 1, Y: 0, Color: geom.New(0, 1, 0)},
	}
	out := pixelColors(pixels, 1.0)
	if len(out) != 2 || out[0].R != 1 || out[1].G != 1 {
		t.Errorf("unexpected conversion: %+v", out)
	}
}

func TestCameraReorientAppliesLookAt(t *testing.T) {
	base := Camera{Location: geom.New(0, 0, 0), Direction: geom.New(0, 0, 1)}
	target := [3]float64{10, 0, 0}
	override := &optparse.CameraOverride{LookAt: &target}
	out := base.Reorient(override)
	want := geom.New(10, 0, 0).Normalize()
	if !out.Direction.Equals(want) {
		t.Errorf("Direction = %v, want %v", out.Direction, want)
	}
}

func TestCameraReorientNilIsNoop(t *testing.T) {
	base := Camera{Location: geom.New(1, 2, 3)}
	if out := base.Reorient(nil); !out.Location.Equals(base.Location) {
		t.Error("expected nil override to be a no-op")
	}
}
