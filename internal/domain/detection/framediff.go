package detection

import (
	"image"

	"github.com/okian/laptimer/internal/domain/model"
)

const (
	frameDiffPixelThreshold = 30
	frameDiffCountThreshold = 1000
)

// FrameDiff compares consecutive frames inside the start-line band and
// triggers when enough pixels changed.
type FrameDiff struct {
	tuner          *Tuner
	prev           *grayFrame
	pixelThreshold int
	countThreshold int
}

type grayFrame struct {
	w, h int
	pix  []uint8
}

// pack copies img into a tightly packed buffer.
func pack(img *image.Gray) *grayFrame {
	b := img.Bounds()
	g := &grayFrame{w: b.Dx(), h: b.Dy(), pix: make([]uint8, b.Dx()*b.Dy())}
	for y := 0; y < g.h; y++ {
		copy(g.pix[y*g.w:(y+1)*g.w], img.Pix[y*img.Stride:y*img.Stride+g.w])
	}
	return g
}

// at returns the pixel at (x, y), clamping coordinates to the frame edge.
func (g *grayFrame) at(x, y int) uint8 {
	x = min(max(x, 0), g.w-1)
	y = min(max(y, 0), g.h-1)
	return g.pix[y*g.w+x]
}

// FrameDiffOption configures a FrameDiff detector.
type FrameDiffOption func(*FrameDiff)

// WithDiffThresholds overrides the per-pixel and changed-pixel thresholds.
func WithDiffThresholds(pixel, count int) FrameDiffOption {
	return func(d *FrameDiff) {
		if pixel >= 0 {
			d.pixelThreshold = pixel
		}
		if count >= 0 {
			d.countThreshold = count
		}
	}
}

// NewFrameDiff returns a band frame-difference detector. The band comes from the tuner.
func NewFrameDiff(tuner *Tuner, opts ...FrameDiffOption) *FrameDiff {
	d := &FrameDiff{
		tuner:          tuner,
		pixelThreshold: frameDiffPixelThreshold,
		countThreshold: frameDiffCountThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *FrameDiff) Name() string { return KindFrameDiff }

func (d *FrameDiff) Reset() { d.prev = nil }

func (d *FrameDiff) Detect(f model.Frame) (Decision, error) {
	img, err := frameImage(f)
	if err != nil {
		return Decision{}, err
	}
	s := d.tuner.Get()
	band := Band(img, s.BandTop, s.BandBottom)
	prev := d.prev
	d.prev = pack(band)
	if prev == nil || prev.w != d.prev.w || prev.h != d.prev.h {
		return stamp(Decision{Required: 1, Reason: "no previous frame"}, d.Name(), f), nil
	}

	changed := 0
	for y := 0; y < prev.h; y++ {
		for x := 0; x < prev.w; x++ {
			if absDiff(prev.pix[y*prev.w+x], d.prev.pix[y*prev.w+x]) > d.pixelThreshold {
				changed++
			}
		}
	}
	m := measure(changed, prev.w*prev.h, nil)
	dec := tally(m, []Condition{{
		Name:      CondMotionPixels,
		Value:     float64(changed),
		Threshold: float64(d.countThreshold),
		Met:       changed > d.countThreshold,
	}}, 1)
	return stamp(dec, d.Name(), f), nil
}
