package detection

// Measurement summarizes a foreground mask.
type Measurement struct {
	MotionPixels  int     `json:"motion_pixels"`
	FrameArea     int     `json:"frame_area"`
	Ratio         float64 `json:"motion_ratio"`
	Blobs         []Blob  `json:"-"`
	BlobCount     int     `json:"contour_count"`
	MaxBlobArea   float64 `json:"max_contour_area"`
	TotalBlobArea float64 `json:"total_contour_area"`
	AvgBlobArea   float64 `json:"avg_contour_area"`
	Density       float64 `json:"motion_density"`
}

// NewMeasurement counts foreground pixels and labels blobs in m.
func NewMeasurement(m *Mask) Measurement {
	return measure(m.CountNonZero(), m.Area(), m.Blobs())
}

// measure derives the aggregate figures. Averages and density are 0 without blobs.
func measure(motionPixels, frameArea int, blobs []Blob) Measurement {
	out := Measurement{
		MotionPixels: motionPixels,
		FrameArea:    frameArea,
		Blobs:        blobs,
		BlobCount:    len(blobs),
	}
	if frameArea > 0 {
		out.Ratio = float64(motionPixels) / float64(frameArea)
	}
	for _, b := range blobs {
		out.TotalBlobArea += b.Area
		if b.Area > out.MaxBlobArea {
			out.MaxBlobArea = b.Area
		}
	}
	if len(blobs) > 0 {
		out.AvgBlobArea = out.TotalBlobArea / float64(len(blobs))
		out.Density = float64(motionPixels) / float64(len(blobs))
	}
	return out
}
