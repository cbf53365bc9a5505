package camera_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/laptimer/internal/adapters/camera"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestSlot(t *testing.T) {
	Convey("Given an empty slot", t, func() {
		slot := camera.NewSlot(model.CameraStartLine)
		_, ok := slot.Latest()
		So(ok, ShouldBeFalse)

		Convey("When frames are put", func() {
			at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			f1 := slot.Put(image.NewGray(image.Rect(0, 0, 2, 2)), at)
			f2 := slot.Put(image.NewGray(image.Rect(0, 0, 2, 2)), at.Add(time.Second))

			Convey("Then sequence numbers increase and the latest wins", func() {
				So(f1.Seq, ShouldEqual, uint64(1))
				So(f2.Seq, ShouldEqual, uint64(2))
				latest, ok := slot.Latest()
				So(ok, ShouldBeTrue)
				So(latest.Seq, ShouldEqual, uint64(2))
				So(latest.Camera, ShouldEqual, model.CameraStartLine)
			})

			Convey("Then waiting for an older sequence returns immediately", func() {
				f, err := slot.Wait(context.Background(), 1)
				So(err, ShouldBeNil)
				So(f.Seq, ShouldEqual, uint64(2))
			})
		})

		Convey("When a reader waits for a frame", func() {
			got := make(chan model.Frame, 1)
			go func() {
				f, err := slot.Wait(context.Background(), 0)
				if err == nil {
					got <- f
				}
			}()
			slot.Put(image.NewGray(image.Rect(0, 0, 1, 1)), time.Now())

			Convey("Then it wakes on put", func() {
				select {
				case f := <-got:
					So(f.Seq, ShouldEqual, uint64(1))
				case <-time.After(2 * time.Second):
					So("timeout", ShouldBeEmpty)
				}
			})
		})

		Convey("When the context ends first", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err := slot.Wait(ctx, 0)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestSyntheticSource(t *testing.T) {
	Convey("Given a synthetic start-line camera", t, func() {
		src := camera.NewSyntheticSource("synthetic",
			camera.WithFrameSize(160, 120),
			camera.WithSyntheticFPS(10),
			camera.WithLeadIn(time.Second),
			camera.WithLaps(3*time.Second, 2*time.Second),
		)

		Convey("Then the schedule has a start crossing and one per lap", func() {
			So(src.Crossings(), ShouldResemble, []time.Duration{time.Second, 4 * time.Second, 6 * time.Second})
			So(src.Duration(), ShouldEqual, 7*time.Second)
		})

		Convey("Then the car is on the line at a crossing and absent otherwise", func() {
			ctx := context.Background()
			var frames []*image.Gray
			for {
				img, err := src.Read(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				So(err, ShouldBeNil)
				frames = append(frames, img.(*image.Gray))
			}
			So(frames, ShouldHaveLength, 71)

			body := func(g *image.Gray) uint8 { return g.GrayAt(65, 54).Y }
			So(body(frames[0]), ShouldNotEqual, uint8(210))
			So(body(frames[10]), ShouldEqual, uint8(210)) // t = 1s
			So(body(frames[40]), ShouldEqual, uint8(210)) // t = 4s
			So(body(frames[25]), ShouldNotEqual, uint8(210))
		})

		Convey("Then a looping source never ends", func() {
			loop := camera.NewSyntheticSource("loop", camera.WithFrameSize(32, 24), camera.WithSyntheticFPS(10),
				camera.WithLeadIn(0), camera.WithLaps(time.Second), camera.WithLoop(true))
			for i := 0; i < 50; i++ {
				_, err := loop.Read(context.Background())
				So(err, ShouldBeNil)
			}
		})
	})

	Convey("Given a synthetic overview camera", t, func() {
		src := camera.NewSyntheticSource("overview", camera.WithFrameSize(64, 48), camera.WithView(camera.ViewOverview))
		img, err := src.Read(context.Background())
		So(err, ShouldBeNil)
		So(img.Bounds().Dx(), ShouldEqual, 64)
	})
}

func writePNG(t *testing.T, path string, v uint8) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestImageDirSource(t *testing.T) {
	Convey("Given a directory of frames", t, func() {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "frame_002.png"), 20)
		writePNG(t, filepath.Join(dir, "frame_001.png"), 10)
		So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600), ShouldBeNil)

		Convey("When read once", func() {
			src, err := camera.NewImageDirSource("dir", dir, false)
			So(err, ShouldBeNil)
			So(src.Len(), ShouldEqual, 2)

			Convey("Then frames come back in name order and end with EOF", func() {
				first, err := src.Read(context.Background())
				So(err, ShouldBeNil)
				So(color.GrayModel.Convert(first.At(0, 0)).(color.Gray).Y, ShouldEqual, uint8(10))
				_, err = src.Read(context.Background())
				So(err, ShouldBeNil)
				_, err = src.Read(context.Background())
				So(errors.Is(err, io.EOF), ShouldBeTrue)
			})
		})

		Convey("When looping", func() {
			src, err := camera.NewImageDirSource("dir", dir, true)
			So(err, ShouldBeNil)
			for i := 0; i < 5; i++ {
				_, err = src.Read(context.Background())
				So(err, ShouldBeNil)
			}
		})

		Convey("When the directory has no images", func() {
			_, err := camera.NewImageDirSource("dir", t.TempDir(), false)
			So(errors.Is(err, camera.ErrNoImages), ShouldBeTrue)
		})
	})
}

func TestCapturer(t *testing.T) {
	Convey("Given an unpaced capturer over a finite source", t, func() {
		src := camera.NewSyntheticSource("synthetic", camera.WithFrameSize(32, 24), camera.WithSyntheticFPS(10),
			camera.WithLeadIn(0), camera.WithLaps(time.Second))
		slot := camera.NewSlot(model.CameraStartLine)
		c := camera.NewCapturer(src, slot, camera.WithFPS(0))

		Convey("When run to exhaustion", func() {
			err := c.Run(context.Background())

			Convey("Then every frame reached the slot", func() {
				So(err, ShouldBeNil)
				So(c.Frames(), ShouldEqual, uint64(21))
				f, ok := slot.Latest()
				So(ok, ShouldBeTrue)
				So(f.Seq, ShouldEqual, uint64(21))
			})

			Convey("Then snapshots encode the latest frame", func() {
				var buf bytes.Buffer
				So(camera.EncodeSnapshot(&buf, slot, camera.FormatPNG), ShouldBeNil)
				img, err := png.Decode(&buf)
				So(err, ShouldBeNil)
				So(img.Bounds().Dx(), ShouldEqual, 32)

				paths, err := camera.SaveScreenshots(t.TempDir(), time.Now(), slot, camera.NewSlot(model.CameraOverview))
				So(err, ShouldBeNil)
				So(paths, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given an empty slot", t, func() {
		var buf bytes.Buffer
		err := camera.EncodeSnapshot(&buf, camera.NewSlot(model.CameraOverview), camera.FormatJPEG)
		So(errors.Is(err, camera.ErrNoFrame), ShouldBeTrue)
	})
}
