// Package dispatch implements the tile dispatcher (C3): tile enumeration
// order, stride-avoidance, and per-tile carry-over state (spec.md §4.3).
package dispatch

// Rect is an inclusive integer rectangle in pixel coordinates
// (spec.md §3 "Tile (RectInt)").
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left + 1 }
func (r Rect) Height() int { return r.Bottom - r.Top + 1 }
func (r Rect) Area() int   { return r.Width() * r.Height() }

// BlockInfo is the opaque, dispatcher-owned carry-over payload returned to
// the trace/radiosity driver on each re-dispatch of a tile (spec.md §3).
// The dispatcher never inspects its contents beyond nil-ness; BlockInfoTag
// only distinguishes deliberate carry-over variants from an arbitrary value
// accidentally being passed where one is expected.
type BlockInfo interface {
	BlockInfoTag()
}
