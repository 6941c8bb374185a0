package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/spf13/cobra"

	"github.com/taigrr/vbshade/pkg/math3d"
)

// orbitAxis is one camera angle with a spring that decays its velocity.
type orbitAxis struct {
	Position  float64
	Velocity  float64
	velSpring harmonica.Spring
	velAccel  float64
}

func newOrbitAxis(fps int) orbitAxis {
	// Critically damped: the spin slows without overshooting.
	return orbitAxis{velSpring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0)}
}

// Update applies velocity to position and eases velocity toward 0.
func (a *orbitAxis) Update() {
	a.Position += a.Velocity
	a.Velocity, a.velAccel = a.velSpring.Update(a.Velocity, a.velAccel, 0)
}

// orbit is the interactive camera state of the viewer.
type orbit struct {
	Yaw, Pitch orbitAxis
	Distance   float64
	fps        int
}

func newOrbit(fps int) *orbit {
	return &orbit{
		Yaw:      newOrbitAxis(fps),
		Pitch:    newOrbitAxis(fps),
		Distance: 4,
		fps:      fps,
	}
}

func (o *orbit) Update() {
	o.Yaw.Update()
	o.Pitch.Update()
	o.Pitch.Position = math3d.Clamp(o.Pitch.Position, -1.4, 1.4)
}

func (o *orbit) Impulse(yaw, pitch float64) {
	o.Yaw.Velocity += yaw
	o.Pitch.Velocity += pitch
}

func (o *orbit) Zoom(delta float64) {
	o.Distance = math3d.Clamp(o.Distance+delta, 1.5, 20)
}

func (o *orbit) Reset() {
	*o = *newOrbit(o.fps)
}

func newViewCmd() *cobra.Command {
	var (
		opts shadeOptions
		fps  int
	)
	cmd := &cobra.Command{
		Use:   "view [model.glb]",
		Short: "Preview a model in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fps <= 0 {
				return fmt.Errorf("fps must be positive, got %d", fps)
			}
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
			return runViewer(cmd.Context(), newPipeline(scene, cfg, opts), fps)
		},
	}
	opts.register(cmd.Flags())
	cmd.Flags().IntVar(&fps, "fps", 30, "target frames per second")
	return cmd
}

func runViewer(ctx context.Context, p *pipeline, fps int) error {
	term := uv.DefaultTerminal()
	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)
	defer func() {
		term.Erase()
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cam := newOrbit(fps)
	// Input handlers run on the render loop so camera and pipeline state
	// stay single-threaded.
	actions := make(chan func(), 16)
	send := func(f func()) {
		select {
		case actions <- f:
		case <-ctx.Done():
		}
	}

	go func() {
		for ev := range term.Events() {
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				w, h := ev.Width, ev.Height
				send(func() {
					width, height = w, h
					term.Erase()
					term.Resize(width, height)
				})
			case uv.KeyPressEvent:
				switch {
				case ev.MatchString("escape", "ctrl+c"):
					cancel()
					return
				case ev.MatchString("a", "left"):
					send(func() { cam.Impulse(-0.05, 0) })
				case ev.MatchString("d", "right"):
					send(func() { cam.Impulse(0.05, 0) })
				case ev.MatchString("w", "up"):
					send(func() { cam.Impulse(0, 0.03) })
				case ev.MatchString("s", "down"):
					send(func() { cam.Impulse(0, -0.03) })
				case ev.MatchString("space"):
					yaw, pitch := (rand.Float64()-0.5)*0.6, (rand.Float64()-0.5)*0.2
					send(func() { cam.Impulse(yaw, pitch) })
				case ev.MatchString("+", "="):
					send(func() { cam.Zoom(-0.25) })
				case ev.MatchString("-", "_"):
					send(func() { cam.Zoom(0.25) })
				case ev.MatchString("r"):
					send(cam.Reset)
				case ev.MatchString("m"):
					send(p.toggleMode)
				case ev.MatchString("x"):
					send(func() { p.opts.wireframe = !p.opts.wireframe })
				}
			case uv.MouseWheelEvent:
				switch ev.Button {
				case uv.MouseWheelUp:
					send(func() { cam.Zoom(-0.25) })
				case uv.MouseWheelDown:
					send(func() { cam.Zoom(0.25) })
				}
			}
		}
	}()

	frameTime := time.Second / time.Duration(fps)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	drain:
		for {
			select {
			case f := <-actions:
				f()
			default:
				break drain
			}
		}

		start := time.Now()
		cam.Update()
		// Each cell shows two pixel rows.
		if err := p.resize(width, height*2); err != nil {
			return err
		}
		p.camera.Orbit(math3d.Vec3{}, cam.Distance, cam.Yaw.Position, cam.Pitch.Position)
		if _, err := p.draw(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.img.Draw(term, uv.Rect(0, 0, width, height))
		if err := term.Display(); err != nil {
			return fmt.Errorf("display: %w", err)
		}

		if elapsed := time.Since(start); elapsed < frameTime {
			time.Sleep(frameTime - elapsed)
		}
	}
}
