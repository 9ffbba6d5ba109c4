package dispatch

// Pattern selects one of the six tile-traversal orders of spec.md §4.3.
type Pattern int

const (
	PatternRowMajor Pattern = iota
	PatternColumnMajor
	PatternRowMajorOutsideIn
	PatternRowMajorOutsideInReversed
	PatternColumnMajorOutsideIn
	PatternColumnMajorOutsideInReversed
)

// outsideIn maps a linear index in [0,n) to a "halve and mirror" index: the
// walk visits 0, n-1, 1, n-2, 2, n-3, ... i.e. alternates from the outside
// of the range inward. It is its own kind of bijection on [0,n).
func outsideIn(k, n int) int {
	if k%2 == 0 {
		return k / 2
	}
	return n - 1 - k/2
}

// PatternXY maps a tile id k in [0, W*H) to (x, y) in [0,W)x[0,H) for the
// given pattern. It is a bijection for every pattern (spec.md P2).
func PatternXY(pattern Pattern, k, w, h int) (x, y int) {
	switch pattern {
	case PatternRowMajor:
		return k % w, k / w

	case PatternColumnMajor:
		return k / h, k % h

	case PatternRowMajorOutsideIn:
		// Row-major walk, but each axis index is itself taken outside-in.
		rx, ry := k%w, k/w
		return outsideIn(rx, w), outsideIn(ry, h)

	case PatternRowMajorOutsideInReversed:
		return PatternXY(PatternRowMajorOutsideIn, w*h-1-k, w, h)

	case PatternColumnMajorOutsideIn:
		rx, ry := k/h, k%h
		return outsideIn(rx, w), outsideIn(ry, h)

	case PatternColumnMajorOutsideInReversed:
		return PatternXY(PatternColumnMajorOutsideIn, w*h-1-k, w, h)

	default:
		return k % w, k / w
	}
}

// gcd is the textbook Euclidean algorithm.
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ReduceToCoprime decrements step until it is coprime with n, per spec.md
// §4.3 / Open Question 1 ("the source reduces renderBlockStep to the next
// coprime by simple decrement"). step==0 disables clock-stepping and is
// returned unchanged. Never returns a negative step; bottoms out at 1,
// which is coprime with every n.
func ReduceToCoprime(step, n int) int {
	if step <= 0 || n <= 0 {
		return step
	}
	step = step % n
	if step == 0 {
		step = 1
	}
	for gcd(step, n) != 1 {
		step--
		if step <= 1 {
			return 1
		}
	}
	return step
}

// ClockID applies the clock-arithmetic remap k' = (k*step) mod (w*h), used
// when RenderBlockStep > 0 (spec.md §4.3). step must already be coprime
// with w*h (see ReduceToCoprime) for the mapping to remain a bijection.
func ClockID(k, step, n int) int {
	if step <= 0 || n <= 0 {
		return k
	}
	return (k * step) % n
}
