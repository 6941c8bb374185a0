// vbshade - visibility-buffer shading from the command line.
//
// Render a glTF/GLB model (or a built-in checker cube) to a PNG, or preview
// it in the terminal:
//
//	vbshade render model.glb -o out.png --samples 4
//	vbshade view model.glb
//
// View controls:
//
//	A/D, arrows  - Spin the orbit camera
//	W/S          - Tilt the camera
//	Space        - Random spin
//	Scroll, +/-  - Zoom in/out
//	M            - Toggle gradient / no-mipmap texture sampling
//	X            - Toggle wireframe overlay
//	R            - Reset view
//	Esc          - Quit
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taigrr/vbshade/pkg/shade"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vbshade",
		Short:         "Shade glTF models through a visibility buffer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			shade.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log per-frame shading statistics")
	root.AddCommand(newRenderCmd(), newViewCmd())
	return root
}
