package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/taigrr/vbshade/pkg/shade"
	"github.com/taigrr/vbshade/pkg/vispass"
)

// shadeOptions are the shading flags shared by render and view.
type shadeOptions struct {
	samples     int
	mode        string
	bias        float64
	anisotropic bool
	workers     int
	tile        int
	baryDerivs  bool
	cullBack    bool
	wireframe   bool
}

func (o *shadeOptions) register(fs *pflag.FlagSet) {
	fs.IntVarP(&o.samples, "samples", "s", 1, "samples per pixel (1, 2, 4 or 8)")
	fs.StringVarP(&o.mode, "mode", "m", shade.DerivGradient.String(), "texture derivative mode: gradient or nomipmap")
	fs.Float64Var(&o.bias, "bias", 0, "texture LOD bias")
	fs.BoolVar(&o.anisotropic, "anisotropic", false, "take extra taps along the stretched UV axis")
	fs.IntVar(&o.workers, "workers", 0, "shading workers (0 = one per CPU)")
	fs.IntVar(&o.tile, "tile", 8, "dispatch tile edge in pixels")
	fs.BoolVar(&o.baryDerivs, "bary-derivs", false, "store barycentric derivatives in the visibility pass")
	fs.BoolVar(&o.cullBack, "cull", true, "cull back faces in the visibility pass")
	fs.BoolVar(&o.wireframe, "wireframe", false, "overlay triangle edges")
}

// config turns the flags into a shading configuration.
func (o *shadeOptions) config() (shade.Config, error) {
	mode, err := shade.ParseDerivMode(o.mode)
	if err != nil {
		return shade.Config{}, err
	}
	cfg := shade.DefaultConfig()
	cfg.Deriv = mode
	cfg.Samples = o.samples
	cfg.MSAA = o.samples > 1
	cfg.LodBias = o.bias
	cfg.Anisotropic = o.anisotropic
	cfg.Workers = o.workers
	cfg.TileSize = o.tile
	if err := cfg.Validate(); err != nil {
		return shade.Config{}, fmt.Errorf("shading flags: %w", err)
	}
	return cfg, nil
}

func (o *shadeOptions) raster() vispass.Options {
	return vispass.Options{CullBackfaces: o.cullBack}
}
