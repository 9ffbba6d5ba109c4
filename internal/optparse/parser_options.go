// Package optparse decodes the attribute dictionaries of
// SceneControl.StartParser (spec.md §6.2) and ViewControl.StartRender
// (spec.md §6.3) into typed, defaulted, clamped option structs, using
// mapstructure — the decode engine viper itself is built on, exercised here
// directly since these dictionaries arrive as message attributes rather
// than a config file (see firestige-Otus's internal/config for the
// mapstructure-tagged-struct convention this follows).
package optparse

import (
	"github.com/mitchellh/mapstructure"
)

// Declare is one (Identifier, Value) pair injected as an SDL variable
// (spec.md §6.2 Declare). Value is either a float64 or a string.
type Declare struct {
	Identifier string
	Value      any
}

// ParserOptions is the decoded, defaulted form of SceneControl.StartParser's
// attribute dictionary (spec.md §6.2).
type ParserOptions struct {
	Version            int       `mapstructure:"Version"`
	WarningLevel       int       `mapstructure:"WarningLevel"`
	InputFile          string    `mapstructure:"InputFile"`
	IncludeHeader      string    `mapstructure:"IncludeHeader"`
	Width              int       `mapstructure:"Width"`
	Height             int       `mapstructure:"Height"`
	OutputFileType     string    `mapstructure:"OutputFileType"`
	ClocklessAnimation bool      `mapstructure:"ClocklessAnimation"`
	SplitUnions        bool      `mapstructure:"SplitUnions"`
	RemoveBounds       bool      `mapstructure:"RemoveBounds"`
	Bounding           bool      `mapstructure:"Bounding"`
	BoundingMethod     int       `mapstructure:"BoundingMethod"`
	BoundingThreshold  int       `mapstructure:"BoundingThreshold"`
	OutputAlpha        bool      `mapstructure:"OutputAlpha"`
	BSPMaxDepth        int       `mapstructure:"BSP_MaxDepth"`
	BSPISectCost       float64   `mapstructure:"BSP_ISectCost"`
	BSPBaseAccessCost  float64   `mapstructure:"BSP_BaseAccessCost"`
	BSPChildAccessCost float64   `mapstructure:"BSP_ChildAccessCost"`
	BSPMissChance      float64   `mapstructure:"BSP_MissChance"`
	RealTimeRaytracing bool      `mapstructure:"RealTimeRaytracing"`
	Declare            []Declare `mapstructure:"Declare"`
	Clock              float64   `mapstructure:"Clock"`
}

// DefaultParserOptions returns the defaults of spec.md §6.2's table.
func DefaultParserOptions() ParserOptions {
	return ParserOptions{
		Version:           1000, // "Version" is language version x100; 10.00 default
		WarningLevel:      9,
		InputFile:         "object.pov",
		IncludeHeader:     "",
		Width:             160,
		Height:            120,
		RemoveBounds:      true,
		Bounding:          true,
		BoundingMethod:    1,
		BoundingThreshold: 3,
		OutputAlpha:       false,
	}
}

// DecodeParserOptions decodes attrs over the defaults, then clamps.
func DecodeParserOptions(attrs map[string]any) (ParserOptions, error) {
	opts := DefaultParserOptions()
	if len(attrs) > 0 {
		if err := mapstructure.Decode(attrs, &opts); err != nil {
			return ParserOptions{}, err
		}
	}
	clampParserOptions(&opts)
	return opts, nil
}

func clampParserOptions(o *ParserOptions) {
	o.Version = clampInt(o.Version, 100, 10000)
	o.WarningLevel = clampInt(o.WarningLevel, 0, 9)
	if o.BoundingMethod != 1 && o.BoundingMethod != 2 {
		o.BoundingMethod = 1
	}
	o.BoundingThreshold = clampInt(o.BoundingThreshold, 1, 32767)
	const epsilon = 1e-9
	o.BSPMissChance = clampFloat(o.BSPMissChance, 0, 1-epsilon)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
