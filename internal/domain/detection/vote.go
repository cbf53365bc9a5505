package detection

import "time"

// Vote condition names.
const (
	CondMotionPixels = "motion_pixels"
	CondMaxArea      = "max_contour_area"
	CondAreaRatio    = "motion_area_ratio"
	CondContourCount = "contour_count"
	CondAvgArea      = "avg_contour_area"
	CondDensity      = "motion_density"
)

// Condition is one threshold comparison inside a decision.
type Condition struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Met       bool    `json:"met"`
}

// Decision is the outcome of running a detector on one frame.
type Decision struct {
	Detector      string      `json:"detector"`
	FrameSeq      uint64      `json:"frame_seq"`
	At            time.Time   `json:"at"`
	Measurement   Measurement `json:"measurement"`
	Conditions    []Condition `json:"conditions"`
	ConditionsMet int         `json:"conditions_met"`
	Required      int         `json:"conditions_required"`
	Triggered     bool        `json:"triggered"`
	Reason        string      `json:"reason,omitempty"`
}

// Vote evaluates the six crossing conditions and triggers when at least
// ConditionsRequired of them hold.
func Vote(m Measurement, s Settings) Decision {
	conds := []Condition{
		{
			Name:      CondMotionPixels,
			Value:     float64(m.MotionPixels),
			Threshold: float64(s.MotionPixelsThreshold),
			Met:       m.MotionPixels > s.MotionPixelsThreshold,
		},
		{
			Name:      CondMaxArea,
			Value:     m.MaxBlobArea,
			Threshold: s.MinContourArea,
			Met:       m.BlobCount > 0 && m.MaxBlobArea > s.MinContourArea,
		},
		{
			Name:      CondAreaRatio,
			Value:     m.Ratio,
			Threshold: s.MotionAreaRatioMin,
			Met:       s.MotionAreaRatioMin < m.Ratio && m.Ratio < s.MotionAreaRatioMax,
		},
		{
			Name:      CondContourCount,
			Value:     float64(m.BlobCount),
			Threshold: float64(s.MinContourCount),
			Met:       m.BlobCount >= s.MinContourCount,
		},
		{
			Name:      CondAvgArea,
			Value:     m.AvgBlobArea,
			Threshold: s.MinAvgContourArea,
			Met:       m.AvgBlobArea > s.MinAvgContourArea,
		},
		{
			Name:      CondDensity,
			Value:     m.Density,
			Threshold: s.MinMotionDensity,
			Met:       m.Density > s.MinMotionDensity,
		},
	}
	return tally(m, conds, s.ConditionsRequired)
}

func tally(m Measurement, conds []Condition, required int) Decision {
	d := Decision{Measurement: m, Conditions: conds, Required: required}
	for _, c := range conds {
		if c.Met {
			d.ConditionsMet++
		}
	}
	d.Triggered = d.ConditionsMet >= required
	return d
}
