package main

import (
	"context"
	"fmt"
	"math"

	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/models"
	"github.com/taigrr/vbshade/pkg/render"
	"github.com/taigrr/vbshade/pkg/shade"
	"github.com/taigrr/vbshade/pkg/visbuf"
	"github.com/taigrr/vbshade/pkg/vispass"
)

// loadMesh loads path, or returns the built-in checker cube when path is
// empty.
func loadMesh(path string) (*models.Mesh, error) {
	if path == "" {
		return models.Cube(1.5, 2, models.CheckerMaterial()), nil
	}
	mesh, err := models.NewGLTFLoader().Load(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return mesh, nil
}

// buildFrame packs mesh into a frame, scaled to fit a 2-unit cube
// centered on the origin.
func buildFrame(mesh *models.Mesh) (*frame.Frame, error) {
	mesh.CalculateBounds()
	center := mesh.Center()
	size := mesh.Size()
	maxDim := math.Max(size.X, math.Max(size.Y, size.Z))
	if maxDim > 0 {
		scale := 2.0 / maxDim
		mesh.Transform(math3d.Scale(math3d.V3(scale, scale, scale)).Mul(math3d.Translate(center.Negate())))
	}

	b := frame.NewBuilder(frame.DefaultAtlasOptions())
	if _, err := b.AddMesh(mesh, math3d.Identity()); err != nil {
		return nil, fmt.Errorf("build frame: %w", err)
	}
	return b.Build(), nil
}

// pipeline owns the per-resolution state of a render: the visibility
// buffers and the output image.
type pipeline struct {
	scene  *frame.Frame
	camera *render.Camera
	cfg    shade.Config
	opts   shadeOptions

	buf *visbuf.Buffers
	img *render.StorageImage
}

func newPipeline(scene *frame.Frame, cfg shade.Config, opts shadeOptions) *pipeline {
	cam := render.NewCamera()
	// The scene is normalized to a 2-unit cube, so a tight depth range
	// keeps depth precision for the edge tests.
	cam.SetClipPlanes(0.05, 50)
	return &pipeline{
		scene:  scene,
		camera: cam,
		cfg:    cfg,
		opts:   opts,
	}
}

// resize reallocates the buffers when the target size changes.
func (p *pipeline) resize(width, height int) error {
	if p.buf != nil && p.buf.Width == width && p.buf.Height == height {
		return nil
	}
	buf, err := visbuf.NewBuffers(width, height, p.cfg.Samples, p.opts.baryDerivs)
	if err != nil {
		return fmt.Errorf("resize to %dx%d: %w", width, height, err)
	}
	p.buf = buf
	p.img = render.NewStorageImage(width, height)
	return nil
}

// draw runs the visibility pass and the shading dispatch for one frame.
func (p *pipeline) draw(ctx context.Context) (shade.Stats, error) {
	view, err := p.camera.View(p.buf.Width, p.buf.Height)
	if err != nil {
		return shade.Stats{}, err
	}
	rs := vispass.Rasterize(p.scene, view, p.buf, p.opts.raster())

	kernel, err := shade.NewKernel(p.cfg, p.scene, p.buf, view)
	if err != nil {
		return shade.Stats{}, err
	}
	p.img.Clear(math3d.Vec4{})
	stats, err := kernel.Dispatch(ctx, p.img)
	if err != nil {
		return stats, err
	}
	if p.opts.wireframe {
		render.NewWireframe(view, p.img).DrawFrame(p.scene, render.ColorWire)
	}

	shade.Logger().Debug("frame",
		"triangles", rs.Triangles,
		"culled", rs.Culled,
		"clipped", rs.Clipped,
		"covered", rs.Covered,
		"edges", stats.EdgePixels,
		"invocations", stats.Invocations,
	)
	return stats, nil
}

// toggleMode switches between gradient and no-mipmap texture sampling.
func (p *pipeline) toggleMode() {
	if p.cfg.Deriv == shade.DerivGradient {
		p.cfg.Deriv = shade.DerivNoMipmap
	} else {
		p.cfg.Deriv = shade.DerivGradient
	}
	shade.Logger().Info("texture sampling", "mode", p.cfg.Deriv)
}
