package detection

import (
	"image"
	"math"

	"github.com/disintegration/gift"
)

// ToGray converts img to an 8-bit grayscale image anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	return apply(img, gift.Grayscale())
}

// Blur applies a Gaussian blur with the given sigma.
func Blur(img *image.Gray, sigma float32) *image.Gray {
	if sigma <= 0 {
		return img
	}
	return apply(img, gift.GaussianBlur(sigma))
}

// Downscale resizes img to w x h unless it already has that size.
func Downscale(img *image.Gray, w, h int) *image.Gray {
	if s := img.Bounds().Size(); s.X == w && s.Y == h {
		return img
	}
	return apply(img, gift.Resize(w, h, gift.LinearResampling))
}

// Band crops the horizontal strip between the top and bottom fractions of the height.
func Band(img *image.Gray, top, bottom float64) *image.Gray {
	b := img.Bounds()
	y0 := b.Min.Y + int(math.Round(top*float64(b.Dy())))
	y1 := b.Min.Y + int(math.Round(bottom*float64(b.Dy())))
	if y0 <= b.Min.Y && y1 >= b.Max.Y {
		return img
	}
	return apply(img, gift.Crop(image.Rect(b.Min.X, y0, b.Max.X, y1)))
}

func apply(src image.Image, filters ...gift.Filter) *image.Gray {
	g := gift.New(filters...)
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}
