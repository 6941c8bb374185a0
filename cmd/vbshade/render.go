package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/taigrr/vbshade/pkg/math3d"
)

func newRenderCmd() *cobra.Command {
	var (
		opts          shadeOptions
		output        string
		width, height int
		yaw, pitch    float64
		distance, fov float64
	)
	cmd := &cobra.Command{
		Use:   "render [model.glb]",
		Short: "Render a model to a PNG file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			mesh, err := loadMesh(path)
			if err != nil {
				return err
			}
			scene, err := buildFrame(mesh)
			if err != nil {
				return err
			}

			p := newPipeline(scene, cfg, opts)
			if err := p.resize(width, height); err != nil {
				return err
			}
			p.camera.SetFOV(fov * math.Pi / 180)
			p.camera.Orbit(math3d.Vec3{}, distance, yaw*math.Pi/180, pitch*math.Pi/180)

			stats, err := p.draw(cmd.Context())
			if err != nil {
				return err
			}
			if err := p.img.SavePNG(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %d edge pixels, %d invocations in %v\n",
				output, width, height, stats.EdgePixels, stats.Invocations, stats.Elapsed)
			return nil
		},
	}

	fs := cmd.Flags()
	opts.register(fs)
	fs.StringVarP(&output, "output", "o", "out.png", "output PNG path")
	fs.IntVar(&width, "width", 640, "image width in pixels")
	fs.IntVar(&height, "height", 480, "image height in pixels")
	fs.Float64Var(&yaw, "yaw", 30, "camera yaw around the model in degrees")
	fs.Float64Var(&pitch, "pitch", 20, "camera pitch in degrees")
	fs.Float64Var(&distance, "distance", 4, "camera distance from the model center")
	fs.Float64Var(&fov, "fov", 60, "vertical field of view in degrees")
	return cmd
}
