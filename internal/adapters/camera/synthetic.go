package camera

import (
	"context"
	"image"
	"io"
	"math"
	"math/rand"
	"time"
)

// Synthetic scene defaults.
const (
	defaultSyntheticFPS = 30
	defaultLeadIn       = 2 * time.Second
	defaultTail         = time.Second
	defaultPass         = 500 * time.Millisecond

	backgroundLevel = 90
	trackLevel      = 60
	lineLevel       = 230
	carLevel        = 210
	cockpitLevel    = 140
)

// Synthetic views.
const (
	ViewStartLine = "startline"
	ViewOverview  = "overview"
)

var defaultLaps = []time.Duration{12 * time.Second, 10500 * time.Millisecond, 11200 * time.Millisecond}

// SyntheticSource renders a track scene with a car that crosses the start line
// on a fixed schedule. Frame i shows the scene at i/fps after the source started.
type SyntheticSource struct {
	name      string
	view      string
	width     int
	height    int
	fps       int
	leadIn    time.Duration
	tail      time.Duration
	pass      time.Duration
	laps      []time.Duration
	crossings []time.Duration
	noise     int
	rng       *rand.Rand
	loop      bool
	frame     int
}

// SyntheticOption configures a SyntheticSource.
type SyntheticOption func(*SyntheticSource)

// WithFrameSize sets the rendered frame size.
func WithFrameSize(w, h int) SyntheticOption {
	return func(s *SyntheticSource) {
		if w > 0 && h > 0 {
			s.width, s.height = w, h
		}
	}
}

// WithSyntheticFPS sets the frame rate used to derive scene time.
func WithSyntheticFPS(fps int) SyntheticOption {
	return func(s *SyntheticSource) {
		if fps > 0 {
			s.fps = fps
		}
	}
}

// WithLaps sets the lap durations. The car crosses once to start and once per lap.
func WithLaps(laps ...time.Duration) SyntheticOption {
	return func(s *SyntheticSource) {
		if len(laps) > 0 {
			s.laps = append([]time.Duration(nil), laps...)
		}
	}
}

// WithLeadIn sets the quiet time before the first crossing.
func WithLeadIn(d time.Duration) SyntheticOption {
	return func(s *SyntheticSource) {
		if d >= 0 {
			s.leadIn = d
		}
	}
}

// WithPass sets how long the car takes to cross the whole frame.
func WithPass(d time.Duration) SyntheticOption {
	return func(s *SyntheticSource) {
		if d > 0 {
			s.pass = d
		}
	}
}

// WithNoise adds uniform per-pixel noise of the given amplitude.
func WithNoise(amplitude int, seed int64) SyntheticOption {
	return func(s *SyntheticSource) {
		if amplitude > 0 {
			s.noise = amplitude
			s.rng = rand.New(rand.NewSource(seed))
		}
	}
}

// WithLoop restarts the schedule instead of returning io.EOF.
func WithLoop(loop bool) SyntheticOption {
	return func(s *SyntheticSource) {
		s.loop = loop
	}
}

// WithView selects the start-line side view or the overview of the oval.
func WithView(view string) SyntheticOption {
	return func(s *SyntheticSource) {
		if view == ViewStartLine || view == ViewOverview {
			s.view = view
		}
	}
}

// NewSyntheticSource creates a synthetic camera.
func NewSyntheticSource(name string, opts ...SyntheticOption) *SyntheticSource {
	s := &SyntheticSource{
		name:   name,
		view:   ViewStartLine,
		width:  640,
		height: 480,
		fps:    defaultSyntheticFPS,
		leadIn: defaultLeadIn,
		tail:   defaultTail,
		pass:   defaultPass,
		laps:   defaultLaps,
	}
	for _, opt := range opts {
		opt(s)
	}
	at := s.leadIn
	s.crossings = []time.Duration{at}
	for _, l := range s.laps {
		at += l
		s.crossings = append(s.crossings, at)
	}
	return s
}

func (s *SyntheticSource) Name() string { return s.name }

// Crossings returns the scene times at which the car is centered on the start line.
func (s *SyntheticSource) Crossings() []time.Duration {
	return append([]time.Duration(nil), s.crossings...)
}

// Duration is the scene length before the source ends or loops.
func (s *SyntheticSource) Duration() time.Duration {
	return s.crossings[len(s.crossings)-1] + s.tail
}

// FrameInterval is the scene time between frames.
func (s *SyntheticSource) FrameInterval() time.Duration {
	return time.Second / time.Duration(s.fps)
}

func (s *SyntheticSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := time.Duration(s.frame) * s.FrameInterval()
	if t > s.Duration() {
		if !s.loop {
			return nil, io.EOF
		}
		s.frame = 0
		t = 0
	}
	s.frame++

	var img *image.Gray
	if s.view == ViewOverview {
		img = s.renderOverview(t)
	} else {
		img = s.renderStartLine(t)
	}
	s.addNoise(img)
	return img, nil
}

func (s *SyntheticSource) Close() error { return nil }

func (s *SyntheticSource) renderStartLine(t time.Duration) *image.Gray {
	w, h := s.width, s.height
	img := image.NewGray(image.Rect(0, 0, w, h))
	fill(img, img.Rect, backgroundLevel)
	fill(img, image.Rect(0, h*35/100, w, h*65/100), trackLevel)
	fill(img, image.Rect(w/2-2, h*35/100, w/2+2, h*65/100), lineLevel)

	carW, carH := w/5, h/8
	for _, c := range s.crossings {
		off := t - c
		if off <= -s.pass/2 || off >= s.pass/2 {
			continue
		}
		cx := w/2 + int(float64(off)/float64(s.pass)*float64(w+carW))
		car := image.Rect(cx-carW/2, h/2-carH/2, cx+carW/2, h/2+carH/2)
		fill(img, car, carLevel)
		fill(img, car.Inset(carH/4), cockpitLevel)
	}
	return img
}

func (s *SyntheticSource) renderOverview(t time.Duration) *image.Gray {
	w, h := s.width, s.height
	img := image.NewGray(image.Rect(0, 0, w, h))
	fill(img, img.Rect, backgroundLevel)

	cx, cy := float64(w)/2, float64(h)/2
	outerX, outerY := float64(w)*0.45, float64(h)*0.42
	innerX, innerY := outerX*0.7, outerY*0.6
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			outer := dx*dx/(outerX*outerX) + dy*dy/(outerY*outerY)
			inner := dx*dx/(innerX*innerX) + dy*dy/(innerY*innerY)
			if outer <= 1 && inner >= 1 {
				img.Pix[y*img.Stride+x] = trackLevel
			}
		}
	}

	angle := 2 * math.Pi * s.progress(t)
	rx, ry := (outerX+innerX)/2, (outerY+innerY)/2
	px := int(cx + rx*math.Cos(angle+math.Pi/2))
	py := int(cy + ry*math.Sin(angle+math.Pi/2))
	r := max(h/30, 2)
	fill(img, image.Rect(px-r, py-r, px+r, py+r), carLevel)
	return img
}

// progress is the fraction of the current lap driven at t.
func (s *SyntheticSource) progress(t time.Duration) float64 {
	for i := 1; i < len(s.crossings); i++ {
		if t < s.crossings[i] {
			start := s.crossings[i-1]
			if t < start {
				return 0
			}
			return float64(t-start) / float64(s.crossings[i]-start)
		}
	}
	return 0
}

func (s *SyntheticSource) addNoise(img *image.Gray) {
	if s.noise <= 0 {
		return
	}
	for i, p := range img.Pix {
		v := int(p) + s.rng.Intn(2*s.noise+1) - s.noise
		img.Pix[i] = uint8(min(255, max(0, v)))
	}
}

func fill(img *image.Gray, r image.Rectangle, v uint8) {
	r = r.Intersect(img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[y*img.Stride+r.Min.X : y*img.Stride+r.Max.X]
		for i := range row {
			row[i] = v
		}
	}
}
