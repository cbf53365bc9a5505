package camera

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Snapshot encodings.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// EncodeSnapshot writes the latest frame of slot as JPEG or PNG.
func EncodeSnapshot(w io.Writer, slot *Slot, format string) error {
	f, ok := slot.Latest()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFrame, slot.Camera())
	}
	switch format {
	case FormatPNG:
		return png.Encode(w, f.Image)
	default:
		return jpeg.Encode(w, f.Image, &jpeg.Options{Quality: 85})
	}
}

// SaveScreenshots writes a PNG of every slot's latest frame into dir and
// returns the written paths. Slots without frames are skipped.
func SaveScreenshots(dir string, at time.Time, slots ...*Slot) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, s := range slots {
		var buf bytes.Buffer
		if err := EncodeSnapshot(&buf, s, FormatPNG); err != nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("screenshot_%s_%s.png", s.Camera(), at.Format("20060102_150405")))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, ErrNoFrame
	}
	return paths, nil
}
