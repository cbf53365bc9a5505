package detection

import "errors"

var (
	// ErrUnknownDetector is returned by New for an unsupported detector kind.
	ErrUnknownDetector = errors.New("unknown detector")
	// ErrInvalidSettings is returned when thresholds fail validation.
	ErrInvalidSettings = errors.New("invalid detection settings")
	// ErrUnknownParam is returned by Adjust for an unknown tuning parameter.
	ErrUnknownParam = errors.New("unknown tuning parameter")
	// ErrOpenCVUnavailable is returned when the binary was built without -tags withcv.
	ErrOpenCVUnavailable = errors.New("opencv support not compiled in (build with -tags withcv)")
	// ErrEmptyFrame is returned when a frame carries no image.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrFrameSize is returned when two frames being compared differ in size.
	ErrFrameSize = errors.New("frame size mismatch")
)
