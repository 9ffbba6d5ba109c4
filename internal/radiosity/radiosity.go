// Package radiosity implements the multi-pass adaptive pretrace driver
// (spec.md §4.5): per tile, a decreasing sequence of sample spacings with
// recursive sub-block refinement driven by a reuse-ratio cache query.
package radiosity

import (
	"math"
	"math/rand"
	"time"

	"github.com/povbackend/tracebackend/internal/dispatch"
	"github.com/povbackend/tracebackend/internal/metrics"
)

// SubBlock is an integer (x,y) index inside a tile's current sub-block
// grid (spec.md's RadiositySubBlock).
type SubBlock struct {
	X, Y int
}

// BlockInfo is the dispatcher carry-over payload for a tile mid-pretrace
// (spec.md §3's RadiosityBlockInfo variant).
type BlockInfo struct {
	Pass                int
	SubBlockCountX      int
	SubBlockCountY      int
	Completion          float32
	IncompleteSubBlocks []SubBlock
}

func (BlockInfo) BlockInfoTag() {}

var _ dispatch.BlockInfo = BlockInfo{}

// NewBlockInfo returns the initial carry-over for a tile that has not
// started pretrace yet: pass 0, a single sub-block, fully incomplete.
func NewBlockInfo() BlockInfo {
	return BlockInfo{
		Pass:                 0,
		SubBlockCountX:       1,
		SubBlockCountY:       1,
		IncompleteSubBlocks: []SubBlock{{0, 0}},
	}
}

// Cache reports query/reuse counters for a tile's sub-block, driving the
// recurse-or-stop decision (spec.md §4.5). The actual radiosity
// interpolation math behind these counters is out of scope; this is the
// narrow slice the driver reads.
type Cache interface {
	QueryStats(tileID int, sub SubBlock) (queryCount int, reuseRatio float64)
	Record(tileID int, sub SubBlock, position [2]float64, color [3]float64)
}

// Settings controls the pretrace driver (spec.md §6.3's Radiosity* keys).
type Settings struct {
	PretraceStartSize     float64
	PretraceEndSize        float64
	PretraceCoverage       float64 // reuse-ratio threshold below which a sub-block recurses
	PassCount              int
	HighReproducibility    bool
	NominalThreads         int
	ActualThreads          int
}

// Sample is one pretrace position/color pair collected within a sub-block.
type Sample struct {
	X, Y  float64
	Color [3]float64
}

// TracePointFunc samples radiance at (x, y) in tile-local pixel
// coordinates; an external collaborator (the intersector/shader pair).
type TracePointFunc func(x, y float64) [3]float64

// Driver runs the per-pass sequence for one tile. It carries no per-call
// mutable state itself (Settings is fixed up-front, Cache is its own
// collaborator contract), so a single Driver is safe to share across
// concurrent RunPass calls from multiple pretrace worker tasks; the sample
// function is passed into RunPass directly rather than stored on the
// struct for exactly that reason — a shared Trace field reassigned per
// tile would race across workers.
type Driver struct {
	Settings Settings
	Cache    Cache
}

// PassCompletion is 4^pass / sum(4^i, i=0..passCount-1), the fraction of
// the final image this pass contributes (spec.md §4.5).
func PassCompletion(pass, passCount int) float64 {
	if passCount <= 0 {
		return 1
	}
	var total float64
	for i := 0; i < passCount; i++ {
		total += math.Pow(4, float64(i))
	}
	return math.Pow(4, float64(pass)) / total
}

// pretraceSize returns max(start * 0.5^pass, end).
func pretraceSize(start, end float64, pass int) float64 {
	return math.Max(start*math.Pow(0.5, float64(pass)), end)
}

// RunPass executes one pretrace pass over tile's current BlockInfo,
// sampling every incomplete sub-block of a tileWidth x tileHeight tile,
// deciding whether each sub-block needs to recurse into finer children,
// and returning the next carry-over (nil if the tile's pretrace is done).
func (d *Driver) RunPass(tileID, tileWidth, tileHeight int, info BlockInfo, trace TracePointFunc) (*BlockInfo, float64, []Sample) {
	start := time.Now()
	defer func() {
		metrics.RadiosityPassesTotal.Inc()
		metrics.PassDuration.WithLabelValues("radiosity").Observe(time.Since(start).Seconds())
	}()
	size := pretraceSize(d.Settings.PretraceStartSize, d.Settings.PretraceEndSize, info.Pass)
	offset := (size - 1) / 2
	jitter := math.Min(1, size/2)
	rng := rand.New(rand.NewSource(int64(info.Pass)*1_000_003 + int64(tileID)))

	var samples []Sample
	var nextIncomplete []SubBlock
	nextCountX, nextCountY := info.SubBlockCountX, info.SubBlockCountY

	subW := float64(tileWidth) / float64(info.SubBlockCountX)
	subH := float64(tileHeight) / float64(info.SubBlockCountY)

	for _, sub := range info.IncompleteSubBlocks {
		x0 := float64(sub.X) * subW
		y0 := float64(sub.Y) * subH
		count := 0
		for y := y0; y < y0+subH; y += size {
			for x := x0; x < x0+subW; x += size {
				px := x + offset + jitter*(rng.Float64()-0.5)
				py := y + offset + jitter*(rng.Float64()-0.5)
				color := trace(px, py)
				samples = append(samples, Sample{X: px, Y: py, Color: color})
				if d.Cache != nil {
					d.Cache.Record(tileID, sub, [2]float64{px, py}, color)
				}
				count++
			}
		}

		recurse := false
		if d.Cache != nil && count >= 9 {
			queryCount, reuseRatio := d.Cache.QueryStats(tileID, sub)
			recurse = queryCount > 0 && reuseRatio < d.Settings.PretraceCoverage
		}
		if recurse {
			divX, divY := divisorsForNextPass(d.Settings.PretraceStartSize, d.Settings.PretraceEndSize, info.Pass)
			nextCountX = info.SubBlockCountX * divX
			nextCountY = info.SubBlockCountY * divY
			for cy := 0; cy < divY; cy++ {
				for cx := 0; cx < divX; cx++ {
					nextIncomplete = append(nextIncomplete, SubBlock{
						X: sub.X*divX + cx,
						Y: sub.Y*divY + cy,
					})
				}
			}
		}
	}

	completion := PassCompletion(info.Pass, d.Settings.PassCount)
	lastPass := info.Pass+1 == d.Settings.PassCount || len(nextIncomplete) == 0
	if lastPass {
		return nil, completion, samples
	}
	next := BlockInfo{
		Pass:                 info.Pass + 1,
		SubBlockCountX:       nextCountX,
		SubBlockCountY:       nextCountY,
		IncompleteSubBlocks: nextIncomplete,
	}
	return &next, completion, samples
}

// divisorsForNextPass splits each sub-block 2x2 for the next pass, or 1x1
// once the next pass's pretrace size is not positive. The split does not
// depend on the sub-block's pixel size, so a minimum of 4x4 pixels per
// sub-block is not enforced.
func divisorsForNextPass(start, end float64, pass int) (int, int) {
	nextSize := pretraceSize(start, end, pass+1)
	if nextSize <= 0 {
		return 1, 1
	}
	// Halving sub-block count growth matches the halving of sample
	// spacing, which keeps sample density per sub-block roughly constant.
	return 2, 2
}

// Stride returns the dispatcher avoidance stride for high-reproducibility
// mode: nominal thread count doubled each pass, capped at actual threads.
func Stride(settings Settings, pass int) int {
	if !settings.HighReproducibility {
		return 0
	}
	nominal := settings.NominalThreads
	for i := 0; i < pass; i++ {
		nominal *= 2
	}
	if nominal > settings.ActualThreads {
		nominal = settings.ActualThreads
	}
	if nominal < 1 {
		nominal = 1
	}
	return nominal
}
