//go:build withcv

package camera

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// WebcamSource reads frames from a V4L/DirectShow device through OpenCV.
type WebcamSource struct {
	name string
	cap  *gocv.VideoCapture
	mat  gocv.Mat
}

// NewWebcamSource opens device index and requests the given frame size and rate.
func NewWebcamSource(name string, index, width, height, fps int) (Source, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %w", ErrCameraOpen, index, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d", ErrCameraOpen, index)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	vc.Set(gocv.VideoCaptureFPS, float64(fps))
	return &WebcamSource{name: name, cap: vc, mat: gocv.NewMat()}, nil
}

func (s *WebcamSource) Name() string { return s.name }

func (s *WebcamSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("camera %s: empty frame", s.name)
	}
	return s.mat.ToImage()
}

func (s *WebcamSource) Close() error {
	_ = s.mat.Close()
	return s.cap.Close()
}
