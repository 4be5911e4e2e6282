package scene

import (
	"github.com/cespare/xxhash/v2"

	"github.com/Faultbox/blockforge/internal/engine/blocks"
)

// Color is a linear RGB colour.
type Color [3]float32

// Known texture colours. Anything else gets a stable hashed colour.
var knownColors = map[string]Color{
	"stone":               {0.50, 0.50, 0.52},
	"dirt":                {0.47, 0.33, 0.22},
	"grass_top":           {0.36, 0.62, 0.25},
	"grass_side":          {0.44, 0.46, 0.25},
	"sand":                {0.86, 0.80, 0.58},
	"glass":               {0.72, 0.86, 0.92},
	"planks":              {0.66, 0.50, 0.30},
	"torch":               {0.98, 0.78, 0.30},
	"tall_grass":          {0.30, 0.55, 0.20},
	blocks.MissingTexture: {1.00, 0.00, 1.00},
}

// Palette holds one colour per texture index of a registry.
type Palette []Color

// NewPalette assigns a colour to every texture the registry knows.
func NewPalette(reg *blocks.Registry) Palette {
	names := reg.Textures()
	p := make(Palette, len(names))
	for i, name := range names {
		p[i] = ColorFor(name)
	}
	return p
}

// ColorFor returns the colour for a texture name.
func ColorFor(name string) Color {
	if c, ok := knownColors[name]; ok {
		return c
	}
	h := xxhash.Sum64String(name)
	// keep channels in a mid range so edges and shading stay visible
	ch := func(shift uint) float32 {
		return 0.25 + float32((h>>shift)&0xff)/255*0.6
	}
	return Color{ch(0), ch(8), ch(16)}
}

// At returns the colour of a texture index, magenta when out of range.
func (p Palette) At(i int) Color {
	if i < 0 || i >= len(p) {
		return knownColors[blocks.MissingTexture]
	}
	return p[i]
}
