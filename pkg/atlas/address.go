// Package atlas packs logical textures into shared texture-array layers and
// describes where each one lives: offset, size, layer, address modes, UV
// transform and sampler. Layers carry full mip chains.
package atlas

import "math"

// AddressMode determines how coordinates outside [0,1] are folded back.
// Only coordinates are folded; derivatives never are.
type AddressMode int

const (
	ClampToEdge    AddressMode = iota // Clamp to the edge texel
	Repeat                            // Tile the texture
	MirroredRepeat                    // Tile, flipping every other copy
)

// String returns the glTF-style name of the mode.
func (m AddressMode) String() string {
	switch m {
	case Repeat:
		return "repeat"
	case MirroredRepeat:
		return "mirrored-repeat"
	default:
		return "clamp-to-edge"
	}
}

// Apply folds coord into [0,1].
func (m AddressMode) Apply(coord float64) float64 {
	if math.IsNaN(coord) {
		return 0
	}
	switch m {
	case Repeat:
		coord -= math.Floor(coord)
	case MirroredRepeat:
		f := coord - 2*math.Floor(coord/2) // [0,2)
		if f > 1 {
			f = 2 - f
		}
		coord = f
	default:
		coord = math.Max(0, math.Min(1, coord))
	}
	return coord
}

// texelIndex folds an integer texel index into [0, size).
func (m AddressMode) texelIndex(i, size int) int {
	switch m {
	case Repeat:
		i %= size
		if i < 0 {
			i += size
		}
	case MirroredRepeat:
		period := 2 * size
		i %= period
		if i < 0 {
			i += period
		}
		if i >= size {
			i = period - 1 - i
		}
	default:
		if i < 0 {
			i = 0
		} else if i >= size {
			i = size - 1
		}
	}
	return i
}
