package camera

import "errors"

var (
	// ErrOpenCVUnavailable is returned by NewWebcamSource without -tags withcv.
	ErrOpenCVUnavailable = errors.New("webcam capture requires -tags withcv")
	// ErrCameraOpen is returned when a capture device cannot be opened.
	ErrCameraOpen = errors.New("camera open failed")
	// ErrNoImages is returned when an image directory holds no PNG or JPEG files.
	ErrNoImages = errors.New("no images found")
	// ErrNoFrame is returned by Snapshot before the first frame arrives.
	ErrNoFrame = errors.New("no frame captured yet")
	// ErrUnknownCamera is returned for camera names the rig does not have.
	ErrUnknownCamera = errors.New("unknown camera")
)
