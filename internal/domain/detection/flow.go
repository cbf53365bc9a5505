package detection

import (
	"image"
	"math"

	"github.com/okian/laptimer/internal/domain/model"
)

// Flow parameters. Vectors are measured on a grid by block matching over an
// image pyramid, coarse to fine, so a point can move up to
// flowSearchRadius * (2^flowLevels - 1) pixels between frames.
const (
	flowWidth        = 160
	flowHeight       = 120
	flowLevels       = 3
	flowGridStep     = 4
	flowHalfBlock    = 4
	flowSearchRadius = 3
	flowMinTexture   = 400.0
	flowMotionMin    = 2.0
	flowMaxMagnitude = 50.0
	flowMinMoving    = 10
)

const (
	condMovingPoints = "moving_points"
	condAvgMotion    = "avg_motion"
)

// Flow estimates sparse motion vectors between consecutive frames on
// textured grid points and triggers when enough of them move.
type Flow struct {
	prev []*grayFrame
}

// NewFlow returns a pyramidal block-matching optical flow detector.
func NewFlow() *Flow {
	return &Flow{}
}

func (d *Flow) Name() string { return KindFlow }

func (d *Flow) Reset() { d.prev = nil }

func (d *Flow) Detect(f model.Frame) (Decision, error) {
	img, err := frameImage(f)
	if err != nil {
		return Decision{}, err
	}
	if img.Bounds().Dx() > flowWidth {
		img = Downscale(img, flowWidth, flowHeight)
	}
	cur := pyramid(img)
	prev := d.prev
	d.prev = cur
	if prev == nil || prev[0].w != cur[0].w || prev[0].h != cur[0].h {
		return stamp(Decision{Required: 2, Reason: "no previous frame"}, d.Name(), f), nil
	}

	base := prev[0]
	var tracked, moving int
	var sum float64
	for y := flowHalfBlock; y+flowHalfBlock <= base.h; y += flowGridStep {
		for x := flowHalfBlock; x+flowHalfBlock <= base.w; x += flowGridStep {
			if blockVariance(base, x, y) < flowMinTexture {
				continue
			}
			dx, dy := track(prev, cur, x, y)
			mag := math.Hypot(float64(dx), float64(dy))
			if mag >= flowMaxMagnitude {
				continue
			}
			tracked++
			sum += mag
			if mag > flowMotionMin {
				moving++
			}
		}
	}
	var avg float64
	if tracked > 0 {
		avg = sum / float64(tracked)
	}

	dec := tally(measure(moving, tracked, nil), []Condition{
		{Name: condMovingPoints, Value: float64(moving), Threshold: flowMinMoving, Met: moving >= flowMinMoving},
		{Name: condAvgMotion, Value: avg, Threshold: flowMotionMin, Met: avg > flowMotionMin},
	}, 2)
	if tracked == 0 {
		dec.Reason = "no textured points"
	}
	return stamp(dec, d.Name(), f), nil
}

// pyramid returns img followed by successive half-size copies, stopping
// before a level would be narrower than one block.
func pyramid(img *image.Gray) []*grayFrame {
	levels := []*grayFrame{pack(img)}
	for len(levels) < flowLevels {
		w, h := img.Bounds().Dx()/2, img.Bounds().Dy()/2
		if w < 2*flowHalfBlock || h < 2*flowHalfBlock {
			break
		}
		img = Downscale(img, w, h)
		levels = append(levels, pack(img))
	}
	return levels
}

// track follows the point (x, y) from the coarsest level down, doubling the
// estimate at each finer level and refining it there.
func track(prev, cur []*grayFrame, x, y int) (int, int) {
	dx, dy := 0, 0
	for l := len(prev) - 1; l >= 0; l-- {
		dx, dy = refine(prev[l], cur[l], x>>l, y>>l, dx, dy)
		if l > 0 {
			dx, dy = 2*dx, 2*dy
		}
	}
	return dx, dy
}

func blockVariance(g *grayFrame, cx, cy int) float64 {
	var sum, sq float64
	for y := cy - flowHalfBlock; y < cy+flowHalfBlock; y++ {
		for x := cx - flowHalfBlock; x < cx+flowHalfBlock; x++ {
			v := float64(g.at(x, y))
			sum += v
			sq += v * v
		}
	}
	n := float64(4 * flowHalfBlock * flowHalfBlock)
	mean := sum / n
	return sq/n - mean*mean
}

// refine searches around the predicted displacement (px, py) for the one
// minimizing the sum of absolute differences. Ties keep the prediction, then
// the first candidate in scan order.
func refine(prev, cur *grayFrame, cx, cy, px, py int) (int, int) {
	best := sad(prev, cur, cx, cy, px, py)
	bx, by := px, py
	for dy := py - flowSearchRadius; dy <= py+flowSearchRadius && best > 0; dy++ {
		for dx := px - flowSearchRadius; dx <= px+flowSearchRadius; dx++ {
			if dx == px && dy == py {
				continue
			}
			if s := sad(prev, cur, cx, cy, dx, dy); s < best {
				best, bx, by = s, dx, dy
				if best == 0 {
					break
				}
			}
		}
	}
	return bx, by
}

func sad(prev, cur *grayFrame, cx, cy, dx, dy int) int {
	total := 0
	for y := cy - flowHalfBlock; y < cy+flowHalfBlock; y++ {
		for x := cx - flowHalfBlock; x < cx+flowHalfBlock; x++ {
			total += absDiff(prev.at(x, y), cur.at(x+dx, y+dy))
		}
	}
	return total
}
