//go:build !withcv

package camera

// NewWebcamSource reports that OpenCV capture was not compiled in.
func NewWebcamSource(string, int, int, int, int) (Source, error) {
	return nil, ErrOpenCVUnavailable
}
