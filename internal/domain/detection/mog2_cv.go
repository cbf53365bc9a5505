//go:build withcv

package detection

import (
	"image"

	"github.com/okian/laptimer/internal/domain/model"
	"gocv.io/x/gocv"
)

// MOG2 parameters.
const (
	mog2History      = 200
	mog2VarThreshold = 16
)

// MOG2 runs OpenCV's Gaussian-mixture background subtractor, cleans the mask
// with an elliptical kernel and votes on the external contours.
type MOG2 struct {
	tuner  *Tuner
	sub    gocv.BackgroundSubtractorMOG2
	kernel gocv.Mat
	cons   consistency
}

// NewMOG2 returns the OpenCV detector. Call Close to release native memory.
func NewMOG2(tuner *Tuner) (Detector, error) {
	return &MOG2{
		tuner:  tuner,
		sub:    gocv.NewBackgroundSubtractorMOG2WithParams(mog2History, mog2VarThreshold, false),
		kernel: gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3)),
	}, nil
}

func (d *MOG2) Name() string { return KindMOG2 }

func (d *MOG2) Reset() {
	d.sub.Close()
	d.sub = gocv.NewBackgroundSubtractorMOG2WithParams(mog2History, mog2VarThreshold, false)
	d.cons.reset()
}

// Close releases the subtractor and kernel.
func (d *MOG2) Close() error {
	d.sub.Close()
	d.kernel.Close()
	return nil
}

func (d *MOG2) Detect(f model.Frame) (Decision, error) {
	img, err := frameImage(f)
	if err != nil {
		return Decision{}, err
	}
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return Decision{}, err
	}
	defer src.Close()

	fg := gocv.NewMat()
	defer fg.Close()
	d.sub.Apply(src, &fg)

	clean := gocv.NewMat()
	defer clean.Close()
	gocv.MorphologyEx(fg, &clean, gocv.MorphOpen, d.kernel)
	for i := 0; i < 2; i++ {
		gocv.Dilate(clean, &clean, d.kernel)
	}
	for i := 0; i < 2; i++ {
		gocv.Erode(clean, &clean, d.kernel)
	}

	motion := gocv.CountNonZero(clean)
	contours := gocv.FindContours(clean, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	blobs := make([]Blob, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		blobs = append(blobs, Blob{Area: gocv.ContourArea(pv), Bounds: gocv.BoundingRect(pv)})
	}

	s := d.tuner.Get()
	m := measure(motion, clean.Rows()*clean.Cols(), blobs)
	dec := Vote(m, s)
	dec = d.cons.apply(dec, s)
	return stamp(dec, d.Name(), f), nil
}
