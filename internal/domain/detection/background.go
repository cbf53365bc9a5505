package detection

import (
	"image"

	"github.com/okian/laptimer/internal/domain/model"
)

// BackgroundVote keeps a running-average background model and votes on the
// foreground mask. During warm-up the model is the plain mean of the frames seen.
type BackgroundVote struct {
	tuner  *Tuner
	bg     []float64
	size   image.Point
	frames int
	cons   consistency
}

// NewBackgroundVote returns the default pure-Go detector.
func NewBackgroundVote(tuner *Tuner) *BackgroundVote {
	return &BackgroundVote{tuner: tuner}
}

func (d *BackgroundVote) Name() string { return KindVote }

func (d *BackgroundVote) Reset() {
	d.bg = nil
	d.frames = 0
	d.cons.reset()
}

func (d *BackgroundVote) Detect(f model.Frame) (Decision, error) {
	img, err := frameImage(f)
	if err != nil {
		return Decision{}, err
	}
	s := d.tuner.Get()
	size := img.Bounds().Size()
	if d.bg == nil || size != d.size {
		d.Reset()
		d.size = size
		d.bg = make([]float64, size.X*size.Y)
	}

	mask := NewMask(size.X, size.Y)
	d.frames++
	warming := d.frames == 1 || d.frames <= s.WarmupFrames
	rate := s.LearningRate
	if warming {
		rate = 1 / float64(d.frames)
	}
	for y := 0; y < size.Y; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+size.X]
		for x, px := range row {
			i := y*size.X + x
			v := float64(px)
			if d.frames > 1 {
				diff := v - d.bg[i]
				if diff < 0 {
					diff = -diff
				}
				if diff > float64(s.PixelDiffThreshold) {
					mask.Pix[i] = 1
				}
			}
			d.bg[i] += rate * (v - d.bg[i])
		}
	}

	if warming {
		return stamp(Decision{Required: s.ConditionsRequired, Reason: "warming up"}, d.Name(), f), nil
	}

	m := NewMeasurement(mask.Open(1).Close(2))
	return stamp(d.cons.apply(Vote(m, s), s), d.Name(), f), nil
}
