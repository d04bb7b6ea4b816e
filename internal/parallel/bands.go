package parallel

import "github.com/gogpu/shaderdbg/internal/raster"

// Bands splits r into at most n horizontal bands. Band edges fall on
// multiples of block (a power of two) so that no raster block straddles
// two bands. Empty rectangles yield no bands.
func Bands(r raster.Rect, block, n int) []raster.Rect {
	if r.Empty() || n <= 0 {
		return nil
	}
	aligned := r.AlignOut(block)
	rows := (aligned.Y1 - aligned.Y0 + 1) / block
	n = min(n, rows)

	bands := make([]raster.Rect, 0, n)
	start := 0
	for i := range n {
		end := (i + 1) * rows / n
		if end == start {
			continue
		}
		band := raster.Rect{
			X0: r.X0,
			X1: r.X1,
			Y0: max(r.Y0, aligned.Y0+start*block),
			Y1: min(r.Y1, aligned.Y0+end*block-1),
		}
		if !band.Empty() {
			bands = append(bands, band)
		}
		start = end
	}
	return bands
}
