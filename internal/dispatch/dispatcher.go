package dispatch

import (
	"sync"

	"github.com/povbackend/tracebackend/internal/metrics"
)

// Config configures a Dispatcher for one render area (spec.md §3 ViewData
// subset relevant to the dispatcher).
type Config struct {
	Area      Rect
	BlockSize int
	Pattern   Pattern
	BlockStep int // 0 disables clock-stepping
}

// clampBlockSize enforces spec.md's [4, max(areaW,areaH)] clamp.
func clampBlockSize(size, areaW, areaH int) int {
	maxDim := areaW
	if areaH > maxDim {
		maxDim = areaH
	}
	if size < 4 {
		size = 4
	}
	if size > maxDim {
		size = maxDim
	}
	return size
}

// Dispatcher maintains nextBlock and the three block sets for one render
// area (spec.md §4.3 TileDispatcher). All exported methods are safe for
// concurrent use.
type Dispatcher struct {
	mu sync.Mutex

	area      Rect
	blockSize int
	pattern   Pattern
	step      int

	blockWidth, blockHeight int

	nextBlock          int
	skip               map[int]struct{}
	busy               map[int]struct{}
	postponed          map[int]struct{}
	info               map[int]BlockInfo
	completedFirstPass bool

	pixelsPending   float64
	pixelsCompleted float64
}

// New creates a dispatcher for the given configuration.
func New(cfg Config) *Dispatcher {
	bs := clampBlockSize(cfg.BlockSize, cfg.Area.Width(), cfg.Area.Height())
	bw := ceilDiv(cfg.Area.Width(), bs)
	bh := ceilDiv(cfg.Area.Height(), bs)
	n := bw * bh
	return &Dispatcher{
		area:      cfg.Area,
		blockSize: bs,
		pattern:   cfg.Pattern,
		step:      ReduceToCoprime(cfg.BlockStep, n),

		blockWidth:  bw,
		blockHeight: bh,

		skip:      make(map[int]struct{}),
		busy:      make(map[int]struct{}),
		postponed: make(map[int]struct{}),
		info:      make(map[int]BlockInfo),
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func (d *Dispatcher) totalBlocks() int { return d.blockWidth * d.blockHeight }

// TileBounds computes the pixel rectangle for a tile id, clipped to the
// render area (the last row/column of tiles may be smaller than blockSize).
func (d *Dispatcher) TileBounds(id int) Rect {
	x, y := PatternXY(d.pattern, id, d.blockWidth, d.blockHeight)
	left := d.area.Left + x*d.blockSize
	top := d.area.Top + y*d.blockSize
	right := left + d.blockSize - 1
	if right > d.area.Right {
		right = d.area.Right
	}
	bottom := top + d.blockSize - 1
	if bottom > d.area.Bottom {
		bottom = d.area.Bottom
	}
	return Rect{Left: left, Top: top, Right: right, Bottom: bottom}
}

// logicalID applies the clock-step remap on top of the raw counter value.
func (d *Dispatcher) logicalID(raw int) int {
	return ClockID(raw, d.step, d.totalBlocks())
}

func (d *Dispatcher) isTaken(id int) bool {
	if _, ok := d.skip[id]; ok {
		return true
	}
	if _, ok := d.busy[id]; ok {
		return true
	}
	if _, ok := d.postponed[id]; ok {
		return true
	}
	return false
}

// GetNextRectangle returns the next tile to dispatch, applying
// stride-avoidance when stride > 0 (spec.md §4.3). ok is false once a full
// lap has found nothing dispatchable.
func (d *Dispatcher) GetNextRectangle(stride int) (id int, bounds Rect, info BlockInfo, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.totalBlocks()
	if n == 0 {
		return 0, Rect{}, nil, false
	}

	if stride > 0 {
		if pid, found := d.pickPostponed(stride); found {
			d.dispatchLocked(pid)
			return pid, d.TileBounds(pid), d.info[pid], true
		}
	}

	// 2*n bounds the search generously: in the worst case a wrap happens on
	// the very first attempt of this call, and finding a dispatchable tile
	// on the resulting new pass still needs up to n further attempts.
	for attempts := 0; attempts < 2*n; attempts++ {
		if d.nextBlock >= n {
			d.nextBlock = 0
			d.completedFirstPass = true
			if !d.wrapHasCarryOver() {
				return 0, Rect{}, nil, false
			}
		}
		raw := d.nextBlock
		d.nextBlock++
		id := d.logicalID(raw)

		if d.completedFirstPass {
			if _, has := d.info[id]; !has {
				continue // nothing left to refine for this tile
			}
		}
		if _, skipped := d.skip[id]; skipped {
			continue
		}
		if _, busy := d.busy[id]; busy {
			continue
		}

		if stride > 0 {
			if d.conflictsWithBusy(id, stride) {
				d.postponed[id] = struct{}{}
				continue
			}
		} else if _, postponed := d.postponed[id]; postponed {
			continue
		}

		d.dispatchLocked(id)
		return id, d.TileBounds(id), d.info[id], true
	}

	return 0, Rect{}, nil, false
}

// wrapHasCarryOver reports whether any tile still carries BlockInfo, i.e.
// whether a further pass is meaningful after this wrap.
func (d *Dispatcher) wrapHasCarryOver() bool {
	return len(d.info) > 0
}

// conflictsWithBusy reports whether id's distance to any busy tile is a
// multiple of stride (spec.md §4.3 neighbourhood-avoidance).
func (d *Dispatcher) conflictsWithBusy(id, stride int) bool {
	for b := range d.busy {
		dist := id - b
		if dist < 0 {
			dist = -dist
		}
		if dist%stride == 0 {
			return true
		}
	}
	return false
}

// pickPostponed returns the first postponed id whose distance to every busy
// tile is NOT a multiple of stride.
func (d *Dispatcher) pickPostponed(stride int) (int, bool) {
	for id := range d.postponed {
		if !d.conflictsWithBusy(id, stride) {
			delete(d.postponed, id)
			return id, true
		}
	}
	return 0, false
}

func (d *Dispatcher) dispatchLocked(id int) {
	delete(d.postponed, id)
	d.busy[id] = struct{}{}
	d.pixelsPending += float64(d.TileBounds(id).Area())
	metrics.TilesDispatchedTotal.Inc()
}

// CompletedRectangle atomically removes tileID from the busy set, stores the
// carry-over (nil clears it), and accounts completed pixels. The caller is
// responsible for reporting the tile's pixels (spec.md §6.4 PixelBlockSet);
// the dispatcher only tracks scheduling state, not pixel data.
func (d *Dispatcher) CompletedRectangle(tileID int, completion float64, carryOver BlockInfo) {
	d.mu.Lock()
	delete(d.busy, tileID)
	if carryOver == nil {
		delete(d.info, tileID)
	} else {
		d.info[tileID] = carryOver
	}
	bounds := d.TileBounds(tileID)
	d.pixelsCompleted += float64(bounds.Area()) * completion
	d.mu.Unlock()

	stage := "pass"
	if completion >= 1 {
		stage = "final"
	}
	metrics.TilesCompletedTotal.WithLabelValues(stage).Inc()
}

// SetNextRectangle replaces the skip list and resets nextBlock,
// completedFirstPass and pixelsCompleted, used between render stages
// (spec.md §4.3 setNextRectangle).
func (d *Dispatcher) SetNextRectangle(skip []int, firstBlock int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.skip = make(map[int]struct{}, len(skip))
	for _, id := range skip {
		d.skip[id] = struct{}{}
	}
	d.nextBlock = firstBlock
	d.completedFirstPass = false
	d.pixelsCompleted = 0
	d.postponed = make(map[int]struct{})
}

// Stats returns pixelsPending/pixelsCompleted for progress reporting.
func (d *Dispatcher) Stats() (pending, completed float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pixelsPending, d.pixelsCompleted
}

// BlockCounts returns blockWidth, blockHeight for tests/callers that need
// to enumerate the full tile id space.
func (d *Dispatcher) BlockCounts() (w, h int) {
	return d.blockWidth, d.blockHeight
}

// BlockSize returns the (clamped) tile edge length in effect.
func (d *Dispatcher) BlockSize() int { return d.blockSize }
