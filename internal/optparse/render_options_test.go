package optparse

import (
	"testing"

	"github.com/povbackend/tracebackend/internal/dispatch"
)

func TestDecodeRenderOptionsAppliesDefaults(t *testing.T) {
	opts, err := DecodeRenderOptions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.RenderBlockSize != 32 {
		t.Errorf("RenderBlockSize = %d, want 32", opts.RenderBlockSize)
	}
	if opts.RenderPattern != dispatch.PatternRowMajor {
		t.Errorf("RenderPattern = %v, want PatternRowMajor", opts.RenderPattern)
	}
	if opts.AntialiasDepth != 3 {
		t.Errorf("AntialiasDepth = %d, want 3", opts.AntialiasDepth)
	}
}

func TestDecodeRenderOptionsClampsAntialiasDepth(t *testing.T) {
	opts, err := DecodeRenderOptions(map[string]any{"AntialiasDepth": 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.AntialiasDepth != 9 {
		t.Errorf("AntialiasDepth = %d, want clamped to 9", opts.AntialiasDepth)
	}
}

func TestDecodeRenderOptionsClampsPreviewEndToStart(t *testing.T) {
	opts, err := DecodeRenderOptions(map[string]any{
		"PreviewStartSize": 8,
		"PreviewEndSize":   32,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.PreviewEndSize != 8 {
		t.Errorf("PreviewEndSize = %d, want clamped down to PreviewStartSize 8", opts.PreviewEndSize)
	}
}

func TestDecodeRenderOptionsInvalidAntialiasMethodFallsBackToNonAdaptive(t *testing.T) {
	opts, err := DecodeRenderOptions(map[string]any{"AntialiasMethod": 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.AntialiasMethod != 1 {
		t.Errorf("AntialiasMethod = %d, want reset to 1", opts.AntialiasMethod)
	}
}

func TestResolveBlockStepReducesToCoprime(t *testing.T) {
	step := ResolveBlockStep(4, 10)
	if step != 3 {
		t.Errorf("ResolveBlockStep(4, 10) = %d, want 3", step)
	}
	if ResolveBlockStep(0, 10) != 0 {
		t.Errorf("ResolveBlockStep(0, 10) should stay 0 (no clock-step remap)")
	}
}
