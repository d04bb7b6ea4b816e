package color

// heatStops are the heatmap gradient stops, evenly spaced over [0,1].
var heatStops = [...]ColorF32{
	{R: 0, G: 0, B: 1, A: 1}, // blue
	{R: 0, G: 1, B: 1, A: 1}, // cyan
	{R: 0, G: 1, B: 0, A: 1}, // green
	{R: 1, G: 1, B: 0, A: 1}, // yellow
	{R: 1, G: 0, B: 0, A: 1}, // red
}

// Heatmap maps t in [0,1] to the blue, cyan, green, yellow, red gradient.
// Values outside the range (and NaN) are clamped.
func Heatmap(t float32) ColorF32 {
	if !(t > 0) {
		return heatStops[0]
	}
	if t >= 1 {
		return heatStops[len(heatStops)-1]
	}
	segments := float32(len(heatStops) - 1)
	pos := t * segments
	i := int(pos)
	if i >= len(heatStops)-1 {
		return heatStops[len(heatStops)-1]
	}
	return Lerp(heatStops[i], heatStops[i+1], pos-float32(i))
}

// HeatRank orders heatmap colors along the gradient: a color produced by
// Heatmap(t) has rank 4*t. It returns a value in [0,4].
func HeatRank(c ColorF32) float32 {
	switch {
	case c.R == 0 && c.G < 1:
		return c.G
	case c.R == 0 && c.B > 0:
		return 1 + (1 - c.B)
	case c.R < 1 && c.B == 0:
		return 2 + c.R
	default:
		return 3 + (1 - c.G)
	}
}
