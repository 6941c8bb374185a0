// Package shade is the per-pixel resolve kernel of the visibility-buffer
// renderer. For every pixel it decodes geometry, rebuilds UV derivatives,
// evaluates the material through the texture atlas, lights it and, under
// MSAA, re-shades edge pixels per sample.
package shade

import (
	"fmt"

	"github.com/taigrr/vbshade/pkg/deriv"
	"github.com/taigrr/vbshade/pkg/fetch"
	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/geometry"
	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/msaa"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

// Neutral is written for samples whose frame data is inconsistent.
var Neutral = math3d.Vec4{}

// Kernel shades one frame. Its inputs are read-only; a Kernel may be used
// from many goroutines at once.
type Kernel struct {
	cfg        Config
	frame      *frame.Frame
	decoder    *geometry.Decoder
	fetcher    *fetch.Fetcher
	classifier *msaa.Classifier
}

// NewKernel validates cfg against the buffers and binds the frame.
func NewKernel(cfg Config, f *frame.Frame, buf *visbuf.Buffers, view geometry.View) (*Kernel, error) {
	if f == nil || buf == nil {
		return nil, ErrNilInput
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MSAA && cfg.Samples != buf.Samples {
		return nil, fmt.Errorf("%w: config %d, buffers %d", ErrSampleMismatch, cfg.Samples, buf.Samples)
	}
	if cfg.Lighting == nil {
		cfg.Lighting = DefaultLight().Shade
	}
	if cfg.Backdrop == nil {
		cfg.Backdrop = DefaultSky().Color
	}

	fetcher := &fetch.Fetcher{}
	if f.Atlas != nil {
		fetcher = fetch.New(f.Atlas, f.Entries, f.UvTransforms, cfg.LodBias)
		fetcher.Mapper.Anisotropic = cfg.Anisotropic
		fetcher.Mapper.MaxAnisotropy = cfg.MaxAnisotropy
	}
	dec := &geometry.Decoder{
		Frame:    f,
		Buffers:  buf,
		View:     view,
		Variant:  cfg.Variant,
		MatchAll: cfg.MatchAll,
	}
	return &Kernel{
		cfg:        cfg,
		frame:      f,
		decoder:    dec,
		fetcher:    fetcher,
		classifier: &msaa.Classifier{Source: dec, Thresholds: cfg.Thresholds},
	}, nil
}

// Config returns the configuration the kernel was built with.
func (k *Kernel) Config() Config { return k.cfg }

// multisampled reports whether pixels go through the edge classifier.
func (k *Kernel) multisampled() bool {
	return k.cfg.MSAA && k.cfg.Samples > 1
}

// ShadePixel resolves pixel (x, y). Out-of-bounds pixels report nothing
// written.
func (k *Kernel) ShadePixel(x, y int) msaa.Result {
	if !k.decoder.InBounds(x, y) {
		return msaa.Result{}
	}
	if k.multisampled() {
		return k.classifier.Resolve(x, y, k.ShadeSample)
	}
	col, ok := k.ShadeSample(x, y, 0)
	r := msaa.Result{Invocations: 1}
	if ok {
		r.Color, r.Written, r.Valid = col, true, 1
	}
	return r
}

// ShadeSample runs the full pipeline for sample s of pixel (x, y). ok is
// false when the sample belongs to another variant.
func (k *Kernel) ShadeSample(x, y, s int) (math3d.Vec4, bool) {
	smp, status := k.decoder.Decode(x, y, s)
	switch status {
	case geometry.StatusBackground:
		dir := k.decoder.View.Unproject(smp.Pixel, 1).Sub(k.decoder.View.Eye)
		return k.cfg.Backdrop(dir.Normalize()), true
	case geometry.StatusSkipped:
		return math3d.Vec4{}, false
	case geometry.StatusInvalid:
		return Neutral, true
	}

	mat, ok := k.frame.Material(smp.Meta.Material)
	if !ok {
		return Neutral, true
	}
	surf := k.evaluate(smp, mat)
	if mat.Kind == frame.KindUnlit {
		return surf.BaseColor, true
	}
	rgb := k.cfg.Lighting(&surf)
	return math3d.V4FromV3(rgb, surf.BaseColor.W), true
}

// gradients returns the screen-space barycentric gradients of smp's
// triangle, from the buffer when the geometry pass supplied them.
func (k *Kernel) gradients(smp geometry.Sample) deriv.Gradients {
	buf := k.decoder.Buffers
	if buf.HasDerivs() {
		return deriv.FromBuffer(buf.BaryDerivs[buf.Index(smp.X, smp.Y, smp.S)])
	}
	s, ok := k.decoder.ScreenPositions(smp)
	if !ok {
		return deriv.Gradients{}
	}
	g, _ := deriv.FromScreen(s[0], s[1], s[2])
	return g
}
