package message

// PixelColor is a single (R,G,B,_,T) sample, spec.md §6.4.
type PixelColor struct {
	R, G, B, Filter, Transmit float64
}

// PixelRect carries the bounds a pixel message covers, in pixel coordinates.
type PixelRect struct {
	Left, Top, Right, Bottom int
}

// PixelBlockSet is a dense tile of pixels (spec.md §6.4 PixelBlockSet).
// PixelID is attached only when the block is completely rendered, so
// continue-trace can trust it (spec.md §6.4). PixelFinal mirrors
// passCompletesImage.
type PixelBlockSet struct {
	Rect       PixelRect
	PixelSize  int
	Pixels     []PixelColor // dense, row-major, len == width*height
	PixelID    *int
	PixelFinal bool
}

// PixelSet is the sparse counterpart (positions + colors), used by splats
// and supersampled point updates rather than a whole tile.
type PixelSet struct {
	PixelSize int
	Positions [][2]int
	Colors    []PixelColor
	PixelID   *int
	PixelFinal bool
}
