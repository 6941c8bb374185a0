package shade

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taigrr/vbshade/pkg/math3d"
)

// Target receives resolved pixels. Dispatch writes each pixel at most once
// and never reads it back, so implementations need no locking as long as
// distinct pixels are independent.
type Target interface {
	SetPixel(x, y int, c math3d.Vec4)
}

// Stats summarizes one dispatch.
type Stats struct {
	Pixels      int64 // pixels written
	Skipped     int64 // pixels left for another variant
	EdgePixels  int64
	Invocations int64 // full pipeline runs
	Diagnostic  int64 // edge pixels without a valid sample
	Elapsed     time.Duration
}

type counters struct {
	pixels, skipped, edges, invocations, diagnostic atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Pixels:      c.pixels.Load(),
		Skipped:     c.skipped.Load(),
		EdgePixels:  c.edges.Load(),
		Invocations: c.invocations.Load(),
		Diagnostic:  c.diagnostic.Load(),
	}
}

// Dispatch shades every pixel of the buffers into dst, one tile per task.
// Tiles run on at most Config.Workers goroutines in no particular order.
// If ctx is cancelled the frame is abandoned: remaining tiles are skipped
// and ctx.Err() is returned.
func (k *Kernel) Dispatch(ctx context.Context, dst Target) (Stats, error) {
	start := time.Now()
	buf := k.decoder.Buffers
	tile := k.cfg.TileSize
	tilesX := (buf.Width + tile - 1) / tile
	tilesY := (buf.Height + tile - 1) / tile

	workers := k.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ty := range tilesY {
		for tx := range tilesX {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				k.shadeTile(tx*tile, ty*tile, dst, &c)
				return nil
			})
		}
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	stats := c.snapshot()
	stats.Elapsed = time.Since(start)
	log := Logger()
	if err != nil {
		log.Debug("dispatch abandoned", "err", err, "pixels", stats.Pixels)
		return stats, err
	}
	log.Debug("dispatch complete",
		"width", buf.Width,
		"height", buf.Height,
		"samples", buf.Samples,
		"pixels", stats.Pixels,
		"edges", stats.EdgePixels,
		"invocations", stats.Invocations,
		"elapsed", stats.Elapsed,
	)
	if stats.Diagnostic > 0 {
		log.Warn("edge pixels with no valid sample", "count", stats.Diagnostic)
	}
	return stats, nil
}

// shadeTile resolves the tile whose top-left pixel is (x0, y0). The grid
// may overhang the image, so every pixel is bounds-checked.
func (k *Kernel) shadeTile(x0, y0 int, dst Target, c *counters) {
	var pixels, skipped, edges, invocations, diagnostic int64
	for y := y0; y < y0+k.cfg.TileSize; y++ {
		for x := x0; x < x0+k.cfg.TileSize; x++ {
			if !k.decoder.InBounds(x, y) {
				continue
			}
			r := k.ShadePixel(x, y)
			invocations += int64(r.Invocations)
			if r.Edge() {
				edges++
				if r.Valid == 0 {
					diagnostic++
				}
			}
			if !r.Written {
				skipped++
				continue
			}
			dst.SetPixel(x, y, r.Color)
			pixels++
		}
	}
	c.pixels.Add(pixels)
	c.skipped.Add(skipped)
	c.edges.Add(edges)
	c.invocations.Add(invocations)
	c.diagnostic.Add(diagnostic)
}
