package radiosity

import (
	"testing"

	"github.com/povbackend/tracebackend/internal/dispatch"
)

func TestBlockInfoSatisfiesDispatchInterface(t *testing.T) {
	var _ dispatch.BlockInfo = NewBlockInfo()
}

func TestPassCompletionSumsToOne(t *testing.T) {
	const passCount = 3
	var total float64
	for p := 0; p < passCount; p++ {
		total += PassCompletion(p, passCount)
	}
	if diff := total - 1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("pass completions sum to %v, want 1", total)
	}
}

type fakeCache struct {
	reuseRatio float64
	queryCount int
	recorded   int
}

func (f *fakeCache) QueryStats(tileID int, sub SubBlock) (int, float64) {
	return f.queryCount, f.reuseRatio
}

func (f *fakeCache) Record(tileID int, sub SubBlock, position [2]float64, color [3]float64) {
	f.recorded++
}

func TestRunPassCompletesWhenCacheReuseIsHigh(t *testing.T) {
	cache := &fakeCache{queryCount: 10, reuseRatio: 0.9}
	d := &Driver{
		Settings: Settings{PretraceStartSize: 8, PretraceEndSize: 1, PretraceCoverage: 0.5, PassCount: 4},
		Cache:    cache,
	}
	trace := func(x, y float64) [3]float64 { return [3]float64{1, 1, 1} }
	next, completion, samples := d.RunPass(1, 32, 32, NewBlockInfo(), trace)
	if next != nil {
		t.Errorf("expected pretrace to complete (high reuse ratio), got carry-over %+v", next)
	}
	if completion <= 0 {
		t.Errorf("completion = %v, want > 0", completion)
	}
	if len(samples) == 0 {
		t.Errorf("expected samples to be collected")
	}
}

func TestRunPassRecursesWhenCacheReuseIsLow(t *testing.T) {
	cache := &fakeCache{queryCount: 10, reuseRatio: 0.1}
	d := &Driver{
		Settings: Settings{PretraceStartSize: 8, PretraceEndSize: 1, PretraceCoverage: 0.5, PassCount: 4},
		Cache:    cache,
	}
	trace := func(x, y float64) [3]float64 { return [3]float64{1, 1, 1} }
	next, _, _ := d.RunPass(1, 32, 32, NewBlockInfo(), trace)
	if next == nil {
		t.Fatal("expected pretrace to recurse (low reuse ratio), got nil carry-over")
	}
	if next.Pass != 1 {
		t.Errorf("next.Pass = %d, want 1", next.Pass)
	}
	if len(next.IncompleteSubBlocks) <= len(NewBlockInfo().IncompleteSubBlocks) {
		t.Errorf("expected sub-block refinement to increase the incomplete count")
	}
}

func TestStrideDoublesPerPassCappedAtActualThreads(t *testing.T) {
	s := Settings{HighReproducibility: true, NominalThreads: 2, ActualThreads: 10}
	if got := Stride(s, 0); got != 2 {
		t.Errorf("Stride(pass 0) = %d, want 2", got)
	}
	if got := Stride(s, 1); got != 4 {
		t.Errorf("Stride(pass 1) = %d, want 4", got)
	}
	if got := Stride(s, 5); got != 10 {
		t.Errorf("Stride(pass 5) = %d, want capped at 10", got)
	}
}

func TestStrideDisabledWithoutHighReproducibility(t *testing.T) {
	if got := Stride(Settings{NominalThreads: 2, ActualThreads: 10}, 0); got != 0 {
		t.Errorf("Stride = %d, want 0 when HighReproducibility is false", got)
	}
}
