package dispatch

import "testing"

// TestPatternBijection is spec.md P2: for every pattern and every (W,H,step)
// with gcd(step,W*H)=1, k -> (x,y) is a bijection onto [0,W)x[0,H).
func TestPatternBijection(t *testing.T) {
	patterns := []Pattern{
		PatternRowMajor, PatternColumnMajor,
		PatternRowMajorOutsideIn, PatternRowMajorOutsideInReversed,
		PatternColumnMajorOutsideIn, PatternColumnMajorOutsideInReversed,
	}
	dims := [][2]int{{1, 1}, {4, 4}, {5, 3}, {7, 1}, {1, 7}, {8, 8}}

	for _, p := range patterns {
		for _, dim := range dims {
			w, h := dim[0], dim[1]
			seen := make(map[[2]int]bool, w*h)
			for k := 0; k < w*h; k++ {
				x, y := PatternXY(p, k, w, h)
				if x < 0 || x >= w || y < 0 || y >= h {
					t.Fatalf("pattern %d dim %dx%d k=%d -> out of range (%d,%d)", p, w, h, k, x, y)
				}
				if seen[[2]int{x, y}] {
					t.Fatalf("pattern %d dim %dx%d k=%d -> duplicate (%d,%d)", p, w, h, k, x, y)
				}
				seen[[2]int{x, y}] = true
			}
			if len(seen) != w*h {
				t.Fatalf("pattern %d dim %dx%d: covered %d of %d cells", p, w, h, len(seen), w*h)
			}
		}
	}
}

func TestReduceToCoprimeProducesCoprimeStep(t *testing.T) {
	cases := []struct{ step, n int }{
		{4, 8}, {6, 9}, {10, 100}, {17, 101}, {0, 8}, {1, 8}, {8, 8},
	}
	for _, c := range cases {
		got := ReduceToCoprime(c.step, c.n)
		if c.step == 0 {
			if got != 0 {
				t.Errorf("ReduceToCoprime(0,%d) = %d, want 0 (disabled)", c.n, got)
			}
			continue
		}
		if gcd(got, c.n) != 1 {
			t.Errorf("ReduceToCoprime(%d,%d) = %d, not coprime with %d", c.step, c.n, got, c.n)
		}
	}
}

func TestClockIDWithCoprimeStepIsBijection(t *testing.T) {
	n := 60
	step := ReduceToCoprime(13, n)
	seen := make(map[int]bool, n)
	for k := 0; k < n; k++ {
		id := ClockID(k, step, n)
		if id < 0 || id >= n || seen[id] {
			t.Fatalf("ClockID produced non-bijective id %d for k=%d", id, k)
		}
		seen[id] = true
	}
}
