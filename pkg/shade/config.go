package shade

import (
	"errors"
	"fmt"

	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/lod"
	"github.com/taigrr/vbshade/pkg/msaa"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

// DerivMode selects how texture fetches pick a mip level.
type DerivMode int

const (
	// DerivGradient computes analytic UV derivatives per sample.
	DerivGradient DerivMode = iota
	// DerivNoMipmap always samples the finest level.
	DerivNoMipmap
)

// String returns the mode name used on the command line.
func (m DerivMode) String() string {
	switch m {
	case DerivGradient:
		return "gradient"
	case DerivNoMipmap:
		return "nomipmap"
	default:
		return fmt.Sprintf("DerivMode(%d)", int(m))
	}
}

// ParseDerivMode parses the names returned by DerivMode.String.
func ParseDerivMode(s string) (DerivMode, error) {
	switch s {
	case "gradient":
		return DerivGradient, nil
	case "nomipmap", "no-mipmap":
		return DerivNoMipmap, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrDerivMode, s)
}

var (
	ErrDerivMode      = errors.New("shade: unknown derivative mode")
	ErrSampleMismatch = errors.New("shade: sample count does not match buffers")
	ErrTileSize       = errors.New("shade: tile size must be positive")
	ErrVariant        = errors.New("shade: variant exceeds supported attribute sets")
	ErrThresholds     = errors.New("shade: invalid edge thresholds")
	ErrAnisotropy     = errors.New("shade: max anisotropy out of range")
	ErrNilInput       = errors.New("shade: nil frame or buffers")
)

// Config is the per-dispatch configuration. The zero value is not valid;
// start from DefaultConfig.
type Config struct {
	Deriv DerivMode

	// MSAA enables edge classification. Samples must then equal the
	// buffers' sample count. With MSAA off only sample 0 is shaded.
	MSAA    bool
	Samples int

	// Variant is the attribute layout this dispatch accepts. MatchAll
	// disables the check for single-variant scenes.
	Variant  frame.Layout
	MatchAll bool

	LodBias       float64
	Anisotropic   bool
	MaxAnisotropy float64
	Thresholds    msaa.Thresholds

	TileSize int
	Workers  int // <= 0 means one per CPU

	Lighting Lighting
	Backdrop Backdrop
}

// DefaultConfig returns a single-sample gradient configuration that
// accepts every mesh layout.
func DefaultConfig() Config {
	return Config{
		Deriv:         DerivGradient,
		Samples:       1,
		MatchAll:      true,
		MaxAnisotropy: lod.DefaultMaxAnisotropy,
		Thresholds:    msaa.DefaultThresholds(),
		TileSize:      8,
		Lighting:      DefaultLight().Shade,
		Backdrop:      DefaultSky().Color,
	}
}

// Validate checks the configuration on its own. Sample count agreement
// with the buffers is checked by NewKernel.
func (c Config) Validate() error {
	if c.Deriv != DerivGradient && c.Deriv != DerivNoMipmap {
		return fmt.Errorf("%w: %d", ErrDerivMode, int(c.Deriv))
	}
	if c.MSAA && !visbuf.ValidSampleCount(c.Samples) {
		return fmt.Errorf("validate config: %w", visbuf.ErrSampleCount)
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("%w: %d", ErrTileSize, c.TileSize)
	}
	if c.Variant.UVSets < 0 || c.Variant.UVSets > frame.MaxUVSets ||
		c.Variant.ColorSets < 0 || c.Variant.ColorSets > 1 {
		return fmt.Errorf("%w: %+v", ErrVariant, c.Variant)
	}
	// Each anisotropic fetch takes up to ceil(MaxAnisotropy) taps.
	if !(c.MaxAnisotropy >= 0 && c.MaxAnisotropy <= lod.DefaultMaxAnisotropy) {
		return fmt.Errorf("%w: %v", ErrAnisotropy, c.MaxAnisotropy)
	}
	th := c.Thresholds
	if th.NormalCos < -1 || th.NormalCos > 1 || th.NeighborDepth < 0 || th.SampleDepth < 0 {
		return fmt.Errorf("%w: %+v", ErrThresholds, th)
	}
	return nil
}
