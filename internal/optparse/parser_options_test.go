package optparse

import "testing"

func TestDecodeParserOptionsAppliesDefaults(t *testing.T) {
	opts, err := DecodeParserOptions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Width != 160 || opts.Height != 120 {
		t.Errorf("Width/Height = %d/%d, want 160/120", opts.Width, opts.Height)
	}
	if opts.WarningLevel != 9 {
		t.Errorf("WarningLevel = %d, want 9", opts.WarningLevel)
	}
	if opts.BoundingMethod != 1 {
		t.Errorf("BoundingMethod = %d, want 1", opts.BoundingMethod)
	}
}

func TestDecodeParserOptionsOverridesAndClamps(t *testing.T) {
	opts, err := DecodeParserOptions(map[string]any{
		"Width":             640,
		"Height":            480,
		"Version":           50,    // below min, should clamp to 100
		"WarningLevel":      99,    // above max, should clamp to 9
		"BoundingMethod":    7,     // invalid, should fall back to 1
		"BoundingThreshold": 99999, // above max, should clamp to 32767
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Width != 640 || opts.Height != 480 {
		t.Errorf("Width/Height = %d/%d, want 640/480", opts.Width, opts.Height)
	}
	if opts.Version != 100 {
		t.Errorf("Version = %d, want clamped to 100", opts.Version)
	}
	if opts.WarningLevel != 9 {
		t.Errorf("WarningLevel = %d, want clamped to 9", opts.WarningLevel)
	}
	if opts.BoundingMethod != 1 {
		t.Errorf("BoundingMethod = %d, want reset to 1", opts.BoundingMethod)
	}
	if opts.BoundingThreshold != 32767 {
		t.Errorf("BoundingThreshold = %d, want clamped to 32767", opts.BoundingThreshold)
	}
}

func TestDecodeParserOptionsDeclareList(t *testing.T) {
	opts, err := DecodeParserOptions(map[string]any{
		"Declare": []map[string]any{
			{"Identifier": "clock", "Value": 0.5},
			{"Identifier": "Quality", "Value": "high"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts.Declare) != 2 {
		t.Fatalf("len(Declare) = %d, want 2", len(opts.Declare))
	}
	if opts.Declare[0].Identifier != "clock" || opts.Declare[1].Value != "high" {
		t.Errorf("Declare decoded incorrectly: %+v", opts.Declare)
	}
}
