package viewctl

import (
	"sync"
	"time"

	"github.com/povbackend/tracebackend/internal/message"
)

// rtrFrameTimeout bounds how long a worker waits at the RTR frame barrier
// before giving up (spec.md §5's "3-second timed wait on a condition
// variable to avoid deadlock if a render is cancelled while a worker is
// blocked on the frame barrier").
const rtrFrameTimeout = 3 * time.Second

// RTRData is the real-time raytracing frame barrier: each frame's N render
// workers call Arrive when they run out of tiles to dispatch; the last
// arriver advances to the next camera in the cyclic list and runs onLast
// (resetting the dispatcher and emitting the full-frame pixel message)
// before releasing everyone else (spec.md §5).
type RTRData struct {
	mu      sync.Mutex
	cond    *sync.Cond
	workers int
	arrived int
	gen     int

	cameras     []Camera
	cameraIndex int

	width, height int
	pixels        []message.PixelColor
}

// NewRTRData builds a frame barrier for workers workers cycling through
// cameras, with a width*height full-frame pixel buffer the workers write
// into and the barrier flushes once a frame completes (mirroring
// _examples/original_source's view.cpp RTRData::rtrPixels). An empty
// cameras list degenerates to a single static camera, i.e. RTR without
// clockless-animation camera cycling.
func NewRTRData(workers int, cameras []Camera, width, height int) *RTRData {
	if len(cameras) == 0 {
		cameras = []Camera{{}}
	}
	r := &RTRData{
		workers: workers,
		cameras: cameras,
		width:   width,
		height:  height,
		pixels:  make([]message.PixelColor, width*height),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// WritePixel stores a tile's rendered color at (x, y) into the current
// frame's accumulation buffer. Safe for concurrent callers as long as each
// caller owns disjoint (x, y) pairs, which holds here since no two workers
// are ever dispatched the same tile.
func (r *RTRData) WritePixel(x, y int, c message.PixelColor) {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return
	}
	r.pixels[y*r.width+x] = c
}

// Frame returns the accumulation buffer as it stands: every pixel written
// so far, which is the whole finished frame when read from Arrive's onLast.
func (r *RTRData) Frame() []message.PixelColor {
	return r.pixels
}

// Arrive blocks the calling worker until every worker has arrived at the
// barrier for the current frame, or the timeout elapses. The last arriver
// runs onLast with the barrier's own lock released (so onLast is free to
// touch the dispatcher and queue without risking a barrier/queue deadlock),
// then wakes the others.
func (r *RTRData) Arrive(onLast func(next Camera)) {
	r.mu.Lock()
	myGen := r.gen
	r.arrived++
	if r.arrived >= r.workers {
		r.arrived = 0
		r.gen++
		r.cameraIndex = (r.cameraIndex + 1) % len(r.cameras)
		next := r.cameras[r.cameraIndex]
		r.mu.Unlock()

		if onLast != nil {
			onLast(next)
		}

		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
		return
	}

	deadline := time.Now().Add(rtrFrameTimeout)
	timer := time.AfterFunc(rtrFrameTimeout, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	for r.gen == myGen && time.Now().Before(deadline) {
		r.cond.Wait()
	}
	timer.Stop()
	r.mu.Unlock()
}
