package detection

import (
	"fmt"
	"image"

	"github.com/okian/laptimer/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// Detector decides, frame by frame, whether a car crossed the start line.
type Detector interface {
	// Name returns the detector kind.
	Name() string
	// Detect consumes one frame. Detectors keep history between calls.
	Detect(f model.Frame) (Decision, error)
	// Reset drops learned state such as background models and frame buffers.
	Reset()
}

// New builds the detector named by kind using thresholds from tuner.
func New(kind string, tuner *Tuner) (Detector, error) {
	switch kind {
	case KindVote, "":
		return NewBackgroundVote(tuner), nil
	case KindFrameDiff:
		return NewFrameDiff(tuner), nil
	case KindMultiFrame:
		return NewMultiFrame(), nil
	case KindFlow:
		return NewFlow(), nil
	case KindMOG2:
		return NewMOG2(tuner)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDetector, kind)
}

// UsesConsistency reports whether detectors of kind apply the consistency gate.
func UsesConsistency(kind string) bool {
	return kind == KindVote || kind == KindMOG2
}

func frameImage(f model.Frame) (*image.Gray, error) {
	if f.Image == nil || f.Image.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}
	return ToGray(f.Image), nil
}

func stamp(d Decision, name string, f model.Frame) Decision {
	d.Detector = name
	d.FrameSeq = f.Seq
	d.At = f.CapturedAt
	return d
}

const consistencyHistory = 10

// consistency vetoes triggers whose recent motion is erratic, measured by the
// coefficient of variation of the last window motion-pixel counts.
type consistency struct {
	history []float64
}

func (c *consistency) observe(v float64) {
	c.history = append(c.history, v)
	if len(c.history) > consistencyHistory {
		c.history = c.history[1:]
	}
}

// check returns the CV condition. It passes until window samples exist or when the mean is zero.
func (c *consistency) check(window int, maxCV float64) Condition {
	cond := Condition{Name: "motion_consistency", Threshold: maxCV, Met: true}
	if window <= 0 || len(c.history) < window {
		return cond
	}
	recent := c.history[len(c.history)-window:]
	mean, std := stat.PopMeanStdDev(recent, nil)
	if mean > 0 {
		cond.Value = std / mean
		cond.Met = cond.Value < maxCV
	}
	return cond
}

// apply records the decision's motion and vetoes an erratic trigger.
func (c *consistency) apply(dec Decision, s Settings) Decision {
	c.observe(float64(dec.Measurement.MotionPixels))
	if s.ConsistencyWindow <= 0 {
		return dec
	}
	cond := c.check(s.ConsistencyWindow, s.ConsistencyMaxCV)
	dec.Conditions = append(dec.Conditions, cond)
	if dec.Triggered && !cond.Met {
		dec.Triggered = false
		dec.Reason = "inconsistent motion"
	}
	return dec
}

func (c *consistency) reset() { c.history = c.history[:0] }
