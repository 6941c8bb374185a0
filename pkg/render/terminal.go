package render

import (
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw converts the image to terminal cells and draws them on the screen.
// Each cell shows two pixel rows with an upper half block: the foreground
// is the top pixel, the background the bottom one. The image height should
// be 2x the area height.
func (im *StorageImage) Draw(scr uv.Screen, area uv.Rectangle) {
	for row := area.Min.Y; row < area.Max.Y; row++ {
		topY := (row - area.Min.Y) * 2
		botY := topY + 1

		for col := area.Min.X; col < area.Max.X && col-area.Min.X < im.Width; col++ {
			x := col - area.Min.X
			cell := &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: cellColor(Encode(im.Pixel(x, topY))),
					Bg: cellColor(Encode(im.Pixel(x, botY))),
				},
			}
			scr.SetCell(col, row, cell)
		}
	}
}

// cellColor returns nil for transparent pixels so the terminal default
// shows through.
func cellColor(c color.NRGBA) color.Color {
	if c.A == 0 {
		return nil
	}
	return c
}
