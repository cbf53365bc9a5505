package detection

import (
	"fmt"
	"image"
)

// Mask is a binary foreground mask stored row-major, one byte per pixel (0 or 1).
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask returns an empty mask of the given size.
func NewMask(w, h int) *Mask {
	return &Mask{Width: w, Height: h, Pix: make([]uint8, w*h)}
}

// At reports whether (x, y) is foreground. Out-of-range points are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] != 0
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, on bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	var v uint8
	if on {
		v = 1
	}
	m.Pix[y*m.Width+x] = v
}

// Fill marks every point of r that lies inside the mask.
func (m *Mask) Fill(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Pix[y*m.Width+x] = 1
		}
	}
}

// CountNonZero returns the number of foreground pixels.
func (m *Mask) CountNonZero() int {
	n := 0
	for _, p := range m.Pix {
		if p != 0 {
			n++
		}
	}
	return n
}

// Area is the total number of pixels in the mask.
func (m *Mask) Area() int { return m.Width * m.Height }

// Erode applies a 3x3 cross erosion n times. Points outside the mask do not erode.
func (m *Mask) Erode(n int) *Mask {
	out := m
	for i := 0; i < n; i++ {
		out = out.morph(true)
	}
	return out
}

// Dilate applies a 3x3 cross dilation n times.
func (m *Mask) Dilate(n int) *Mask {
	out := m
	for i := 0; i < n; i++ {
		out = out.morph(false)
	}
	return out
}

// Open erodes then dilates n times each, removing specks.
func (m *Mask) Open(n int) *Mask { return m.Erode(n).Dilate(n) }

// Close dilates then erodes n times each, filling small holes.
func (m *Mask) Close(n int) *Mask { return m.Dilate(n).Erode(n) }

var crossOffsets = [...]image.Point{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}

func (m *Mask) morph(erode bool) *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			on := m.Pix[y*m.Width+x] != 0
			for _, d := range crossOffsets {
				nx, ny := x+d.X, y+d.Y
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				nb := m.Pix[ny*m.Width+nx] != 0
				if erode {
					on = on && nb
				} else {
					on = on || nb
				}
			}
			if on {
				out.Pix[y*m.Width+x] = 1
			}
		}
	}
	return out
}

// AbsDiffMask marks pixels where |a-b| exceeds threshold.
func AbsDiffMask(a, b *image.Gray, threshold int) (*Mask, error) {
	if a == nil || b == nil {
		return nil, ErrEmptyFrame
	}
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return nil, fmt.Errorf("%w: %v vs %v", ErrFrameSize, ab.Size(), bb.Size())
	}
	w, h := ab.Dx(), ab.Dy()
	m := NewMask(w, h)
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := 0; x < w; x++ {
			if absDiff(ra[x], rb[x]) > threshold {
				m.Pix[y*w+x] = 1
			}
		}
	}
	return m, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
