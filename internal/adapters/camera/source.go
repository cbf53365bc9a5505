// Package camera captures frames from cameras, image sequences or a synthetic
// track scene into lock-protected slots.
package camera

import (
	"context"
	"image"
)

// Source produces frames. Read returns io.EOF once a finite source is exhausted.
type Source interface {
	Name() string
	Read(ctx context.Context) (image.Image, error)
	Close() error
}
