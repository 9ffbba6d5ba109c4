package dispatch

import "testing"

// TestMinimalRender is spec.md §8 scenario 1.
func TestMinimalRender(t *testing.T) {
	d := New(Config{Area: Rect{0, 0, 15, 15}, BlockSize: 8, Pattern: PatternRowMajor})

	var ids []int
	for {
		id, bounds, _, ok := d.GetNextRectangle(0)
		if !ok {
			break
		}
		ids = append(ids, id)
		d.CompletedRectangle(id, 1.0, nil)
		if bounds.Area() != 64 {
			t.Errorf("tile %d area = %d, want 64", id, bounds.Area())
		}
	}

	if len(ids) != 4 {
		t.Fatalf("dispatched %d tiles, want 4", len(ids))
	}
	for i, id := range ids {
		if id != i {
			t.Errorf("tile order[%d] = %d, want %d (row-major default)", i, id, i)
		}
	}

	_, completed := d.Stats()
	if completed != 256 {
		t.Errorf("pixelsCompleted = %f, want 256", completed)
	}
}

// TestContinueTrace is spec.md §8 scenario 2 / P3.
func TestContinueTrace(t *testing.T) {
	d := New(Config{Area: Rect{0, 0, 15, 15}, BlockSize: 8, Pattern: PatternRowMajor})
	d.SetNextRectangle([]int{1, 3}, 0)

	var ids []int
	for {
		id, _, _, ok := d.GetNextRectangle(0)
		if !ok {
			break
		}
		ids = append(ids, id)
		d.CompletedRectangle(id, 1.0, nil)
	}

	if len(ids) != 2 {
		t.Fatalf("dispatched %d tiles, want 2 (skip-list honoured)", len(ids))
	}
	for _, id := range ids {
		if id == 1 || id == 3 {
			t.Errorf("tile %d should have been skipped", id)
		}
	}

	_, completed := d.Stats()
	if completed != 128 {
		t.Errorf("pixelsCompleted = %f, want 128", completed)
	}
}

// TestTileCoverage is spec.md P1: the bag of dispatched tiles over one full
// lap partitions the render area with no duplicates and no omissions.
func TestTileCoverage(t *testing.T) {
	d := New(Config{Area: Rect{0, 0, 62, 30}, BlockSize: 8, Pattern: PatternColumnMajorOutsideIn})
	w, h := d.BlockCounts()

	seen := make(map[int]bool)
	for {
		id, _, _, ok := d.GetNextRectangle(0)
		if !ok {
			break
		}
		if seen[id] {
			t.Fatalf("tile %d dispatched twice", id)
		}
		seen[id] = true
		d.CompletedRectangle(id, 1.0, nil)
	}

	if len(seen) != w*h {
		t.Fatalf("dispatched %d tiles, want %d", len(seen), w*h)
	}
}

// TestStrideAvoidance is spec.md §8 scenario 3: with stride=2 over 8 tiles,
// every difference mod 2 means only one even-indexed and one odd-indexed
// tile (2 worker threads) can ever be busy concurrently; a third request
// must wait until one of those two completes.
func TestStrideAvoidance(t *testing.T) {
	d := New(Config{Area: Rect{0, 0, 63, 0}, BlockSize: 8, Pattern: PatternRowMajor})
	stride := 2

	var busy []int
	for i := 0; i < 2; i++ {
		id, _, _, ok := d.GetNextRectangle(stride)
		if !ok {
			t.Fatalf("expected a dispatchable tile at step %d", i)
		}
		for _, b := range busy {
			if (id-b)%stride == 0 {
				t.Fatalf("tile %d conflicts with busy tile %d under stride %d", id, b, stride)
			}
		}
		busy = append(busy, id)
	}

	// A third concurrent request conflicts with one of the two busy tiles
	// no matter which candidate is tried (every tile shares parity with one
	// of the two busy tiles), so none should be dispatchable yet.
	if _, _, _, ok := d.GetNextRectangle(stride); ok {
		t.Fatal("expected no dispatchable tile while both parity classes are busy")
	}

	// Completing one tile frees its parity class for the postponed tiles.
	d.CompletedRectangle(busy[0], 1.0, nil)
	if _, _, _, ok := d.GetNextRectangle(stride); !ok {
		t.Fatal("expected a dispatchable tile after completing a conflicting busy tile")
	}
}

func TestBlockSizeClamping(t *testing.T) {
	d := New(Config{Area: Rect{0, 0, 9, 9}, BlockSize: 1, Pattern: PatternRowMajor})
	if d.BlockSize() != 4 {
		t.Errorf("BlockSize = %d, want clamped to 4", d.BlockSize())
	}

	d2 := New(Config{Area: Rect{0, 0, 9, 9}, BlockSize: 1000, Pattern: PatternRowMajor})
	if d2.BlockSize() != 10 {
		t.Errorf("BlockSize = %d, want clamped to max(areaW,areaH)=10", d2.BlockSize())
	}
}
