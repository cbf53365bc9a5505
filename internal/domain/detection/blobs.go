package detection

import "image"

// Blob is one 8-connected foreground region, the pure-Go stand-in for an external contour.
type Blob struct {
	Area   float64         `json:"area"`
	Bounds image.Rectangle `json:"bounds"`
}

var neighbors8 = [...]image.Point{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Blobs labels 8-connected components in scan order.
func (m *Mask) Blobs() []Blob {
	seen := make([]bool, len(m.Pix))
	var blobs []Blob
	var stack []int
	for start, p := range m.Pix {
		if p == 0 || seen[start] {
			continue
		}
		x0, y0 := start%m.Width, start/m.Width
		b := Blob{Bounds: image.Rect(x0, y0, x0+1, y0+1)}
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%m.Width, i/m.Width
			b.Area++
			b.Bounds = b.Bounds.Union(image.Rect(x, y, x+1, y+1))
			for _, d := range neighbors8 {
				nx, ny := x+d.X, y+d.Y
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				j := ny*m.Width + nx
				if m.Pix[j] != 0 && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		blobs = append(blobs, b)
	}
	return blobs
}
