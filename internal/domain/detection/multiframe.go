package detection

import (
	"github.com/okian/laptimer/internal/domain/model"
)

// Multi-frame defaults. Frames are compared at 160x120.
const (
	multiFrameWidth      = 160
	multiFrameHeight     = 120
	multiFrameBlurSigma  = 0.8
	multiFrameBufferSize = 3
	multiFramePixelDiff  = 10
	multiFrameTotalDiff  = 500
	multiFrameMotionPct  = 0.1
	multiFrameRegionDiff = 50
)

const (
	condTotalDiff        = "total_diff"
	condMotionPercentage = "motion_percentage"
	condLongRangeDiff    = "long_range_diff"
)

// MultiFrame keeps a short buffer of downscaled frames. It triggers when any
// consecutive pair differs enough, or when the newest and oldest frames of a
// full buffer differ.
type MultiFrame struct {
	buffer []*grayFrame
}

// NewMultiFrame returns a multi-frame difference detector.
func NewMultiFrame() *MultiFrame {
	return &MultiFrame{}
}

func (d *MultiFrame) Name() string { return KindMultiFrame }

func (d *MultiFrame) Reset() { d.buffer = nil }

func (d *MultiFrame) Detect(f model.Frame) (Decision, error) {
	img, err := frameImage(f)
	if err != nil {
		return Decision{}, err
	}
	small := Blur(Downscale(img, multiFrameWidth, multiFrameHeight), multiFrameBlurSigma)
	d.buffer = append(d.buffer, pack(small))
	if len(d.buffer) > multiFrameBufferSize {
		d.buffer = d.buffer[1:]
	}
	if len(d.buffer) < 2 {
		return stamp(Decision{Required: 1, Reason: "filling frame buffer"}, d.Name(), f), nil
	}

	area := multiFrameWidth * multiFrameHeight
	maxDiff := 0
	for i := 1; i < len(d.buffer); i++ {
		maxDiff = max(maxDiff, countChanged(d.buffer[i-1], d.buffer[i], multiFramePixelDiff))
	}
	pct := float64(maxDiff) / float64(area) * 100

	long := Condition{Name: condLongRangeDiff, Threshold: multiFrameRegionDiff}
	if len(d.buffer) == multiFrameBufferSize {
		n := countChanged(d.buffer[0], d.buffer[len(d.buffer)-1], multiFramePixelDiff)
		long.Value = float64(n)
		long.Met = n > multiFrameRegionDiff
	}

	dec := tally(measure(maxDiff, area, nil), []Condition{
		{Name: condTotalDiff, Value: float64(maxDiff), Threshold: multiFrameTotalDiff, Met: maxDiff > multiFrameTotalDiff},
		{Name: condMotionPercentage, Value: pct, Threshold: multiFrameMotionPct, Met: pct > multiFrameMotionPct},
		long,
	}, 1)
	return stamp(dec, d.Name(), f), nil
}

func countChanged(a, b *grayFrame, threshold int) int {
	n := 0
	for i := range a.pix {
		if absDiff(a.pix[i], b.pix[i]) > threshold {
			n++
		}
	}
	return n
}
