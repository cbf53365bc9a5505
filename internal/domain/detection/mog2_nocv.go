//go:build !withcv

package detection

// NewMOG2 reports that OpenCV support was not compiled in.
func NewMOG2(*Tuner) (Detector, error) {
	return nil, ErrOpenCVUnavailable
}
