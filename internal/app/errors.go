package service

import "errors"

// ErrNotStarted is returned by operations that need the running pipeline.
var ErrNotStarted = errors.New("service not started")
