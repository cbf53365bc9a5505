package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/laptimer/internal/adapters/camera"
	"github.com/okian/laptimer/internal/adapters/http/api"
	"github.com/okian/laptimer/internal/adapters/mq/queue"
	"github.com/okian/laptimer/internal/adapters/repository"
	"github.com/okian/laptimer/internal/domain/cooldown"
	"github.com/okian/laptimer/internal/domain/dedupe"
	"github.com/okian/laptimer/internal/domain/detection"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	dedupe.Deduper

	status     model.RaceStatus
	startErr   error
	stopResult *model.RaceResult
	crossErr   error
	crossings  int
	resets     int

	settings  detection.Settings
	decision  *detection.Decision
	lastParam string

	results   []model.RaceResult
	board     []types.LapEntry
	lastLimit int
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		Deduper:  dedupe.NewInMemoryDeduper(),
		settings: detection.DefaultSettings(),
	}
}

func (m *mockDeps) RaceStatus() model.RaceStatus { return m.status }

func (m *mockDeps) StartRace(context.Context) error { return m.startErr }

func (m *mockDeps) StopRace(context.Context) (*model.RaceResult, error) {
	if m.status.State != model.RaceRunning {
		return nil, race.ErrNotRunning
	}
	return m.stopResult, nil
}

func (m *mockDeps) ResetRace(context.Context) { m.resets++ }

func (m *mockDeps) TriggerCrossing(context.Context) error {
	if m.crossErr != nil {
		return m.crossErr
	}
	m.crossings++
	return nil
}

func (m *mockDeps) Screenshot(context.Context) ([]string, error) {
	return []string{"data/screenshots/screenshot_startline.png"}, nil
}

func (m *mockDeps) Tuning() detection.Settings { return m.settings }

func (m *mockDeps) AdjustTuning(_ context.Context, param string, dir detection.Direction) (detection.Settings, error) {
	m.lastParam = param
	s, err := m.settings.Adjust(param, dir)
	if err != nil {
		return m.settings, err
	}
	m.settings = s
	return s, nil
}

func (m *mockDeps) UpdateTuning(_ context.Context, s detection.Settings) (detection.Settings, error) {
	if err := s.Validate(); err != nil {
		return m.settings, err
	}
	m.settings = s
	return s, nil
}

func (m *mockDeps) LatestDecision() (detection.Decision, bool) {
	if m.decision == nil {
		return detection.Decision{}, false
	}
	return *m.decision, true
}

func (m *mockDeps) ListResults(_ context.Context, limit int) ([]model.RaceResult, error) {
	m.lastLimit = limit
	if limit > len(m.results) {
		return m.results, nil
	}
	return m.results[:limit], nil
}

func (m *mockDeps) GetResult(_ context.Context, id string) (model.RaceResult, error) {
	for _, r := range m.results {
		if r.ID == id {
			return r, nil
		}
	}
	return model.RaceResult{}, repository.ErrNotFound
}

func (m *mockDeps) BestLaps(_ context.Context, n int) ([]types.LapEntry, error) {
	m.lastLimit = n
	if n > len(m.board) {
		return m.board, nil
	}
	return m.board[:n], nil
}

func (m *mockDeps) Snapshot(_ context.Context, w io.Writer, name, _ string) error {
	switch name {
	case model.CameraStartLine:
		_, err := w.Write([]byte{0xff, 0xd8, 0xff})
		return err
	case model.CameraOverview:
		return fmt.Errorf("%w: %s", camera.ErrNoFrame, name)
	default:
		return fmt.Errorf("%w: %s", camera.ErrUnknownCamera, name)
	}
}

func (m *mockDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"frames": 10}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, 100).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMockDeps())

		Convey("Then health and metrics endpoints respond", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/stats", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the dashboard is served", func() {
			w := do(mux, http.MethodGet, "/dashboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "<title>Lap Timer</title>")
		})

		Convey("Then wrong methods and unknown paths are not found", func() {
			So(do(mux, http.MethodPost, "/race", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/race/start", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRaceHandler(t *testing.T) {
	Convey("Given a running race with two laps", t, func() {
		deps := newMockDeps()
		deps.status = model.RaceStatus{
			State:      model.RaceRunning,
			CurrentLap: 3,
			MaxLaps:    5,
			Laps: []model.Lap{
				{Number: 1, Duration: 12 * time.Second},
				{Number: 2, Duration: 10 * time.Second},
			},
			Elapsed:           25 * time.Second,
			CurrentLapElapsed: 3 * time.Second,
			LastLap:           10 * time.Second,
			BestLap:           10 * time.Second,
			BestLapNumber:     2,
			TimerVisible:      true,
		}
		mux := newMux(deps)

		Convey("When reading the race", func() {
			w := do(mux, http.MethodGet, "/race", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var view types.RaceView
			So(json.NewDecoder(w.Body).Decode(&view), ShouldBeNil)

			Convey("Then times are formatted and the best lap is flagged", func() {
				So(view.State, ShouldEqual, "running")
				So(view.CurrentLap, ShouldEqual, 3)
				So(view.Elapsed, ShouldEqual, "00:25.000")
				So(view.CurrentLapElapsed, ShouldEqual, "00:03.000")
				So(view.LastLap, ShouldEqual, "00:10.000")
				So(view.BestLapNumber, ShouldEqual, 2)
				So(view.Laps, ShouldHaveLength, 2)
				So(view.Laps[0].Best, ShouldBeFalse)
				So(view.Laps[1].Best, ShouldBeTrue)
				So(view.Laps[0].Seconds, ShouldEqual, 12.0)
			})
		})

		Convey("When the timer is hidden", func() {
			deps.status.TimerVisible = false
			var view types.RaceView
			So(json.NewDecoder(do(mux, http.MethodGet, "/race", "").Body).Decode(&view), ShouldBeNil)

			Convey("Then running times are withheld", func() {
				So(view.TimerVisible, ShouldBeFalse)
				So(view.Elapsed, ShouldBeEmpty)
				So(view.CurrentLapElapsed, ShouldBeEmpty)
				So(view.Laps, ShouldHaveLength, 2)
			})
		})

		Convey("When listing laps", func() {
			var laps []types.LapView
			So(json.NewDecoder(do(mux, http.MethodGet, "/laps", "").Body).Decode(&laps), ShouldBeNil)
			So(laps, ShouldHaveLength, 2)
			So(laps[1].Formatted, ShouldEqual, "00:10.000")
		})

		Convey("When starting an already running race", func() {
			deps.startErr = race.ErrAlreadyRunning
			So(do(mux, http.MethodPost, "/race/start", "").Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When stopping the race", func() {
			deps.stopResult = &model.RaceResult{ID: "r1", LapCount: 2, LapTimes: []float64{12, 10}}
			w := do(mux, http.MethodPost, "/race/stop", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"id":"r1"`)

			Convey("Then stopping again conflicts", func() {
				deps.status.State = model.RaceFinished
				So(do(mux, http.MethodPost, "/race/stop", "").Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When resetting the race", func() {
			So(do(mux, http.MethodPost, "/race/reset", "").Code, ShouldEqual, http.StatusOK)
			So(deps.resets, ShouldEqual, 1)
		})

		Convey("When triggering crossings", func() {
			So(do(mux, http.MethodPost, "/race/crossing", "").Code, ShouldEqual, http.StatusAccepted)
			So(deps.crossings, ShouldEqual, 1)

			deps.crossErr = cooldown.ErrCoolingDown
			So(do(mux, http.MethodPost, "/race/crossing", "").Code, ShouldEqual, http.StatusTooManyRequests)

			deps.crossErr = queue.ErrFull
			So(do(mux, http.MethodPost, "/race/crossing", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When a crossing is retried with the same idempotency key", func() {
			send := func() *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodPost, "/race/crossing", nil)
				req.Header.Set(api.IdempotencyKeyHeader, "lap-7")
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				return w
			}

			So(send().Code, ShouldEqual, http.StatusAccepted)
			w := send()
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"duplicate"`)
			So(deps.crossings, ShouldEqual, 1)
		})

		Convey("When a keyed crossing is rejected", func() {
			deps.crossErr = cooldown.ErrCoolingDown
			req := httptest.NewRequest(http.MethodPost, "/race/crossing", nil)
			req.Header.Set(api.IdempotencyKeyHeader, "lap-8")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)

			Convey("Then the key can be retried", func() {
				So(deps.Size(), ShouldEqual, 0)
			})
		})

		Convey("When taking a screenshot", func() {
			w := do(mux, http.MethodPost, "/race/screenshot", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "screenshot_startline.png")
		})
	})
}

func TestDetectionHandler(t *testing.T) {
	Convey("Given the default detection settings", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When no frame was processed", func() {
			So(do(mux, http.MethodGet, "/detection", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When a decision exists", func() {
			deps.decision = &detection.Decision{Detector: detection.KindVote, ConditionsMet: 4, Required: 3, Triggered: true}
			w := do(mux, http.MethodGet, "/detection", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"triggered":true`)
		})

		Convey("When reading the tuning", func() {
			var got map[string]any
			So(json.NewDecoder(do(mux, http.MethodGet, "/tuning", "").Body).Decode(&got), ShouldBeNil)
			So(got["detection_cooldown"], ShouldEqual, 2.5)
			So(got["motion_pixels_threshold"], ShouldEqual, 500.0)
		})

		Convey("When stepping a parameter", func() {
			w := do(mux, http.MethodPost, "/tuning", `{"param":"motion_pixels","direction":"up"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastParam, ShouldEqual, detection.ParamMotionPixels)
			So(deps.settings.MotionPixelsThreshold, ShouldEqual, 550)
		})

		Convey("When the direction or parameter is unknown", func() {
			So(do(mux, http.MethodPost, "/tuning", `{"param":"motion_pixels","direction":"sideways"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/tuning", `{"param":"exposure","direction":"up"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When overlaying absolute values", func() {
			w := do(mux, http.MethodPost, "/tuning", `{"min_contour_area":400,"detection_cooldown":1.5}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then only the given values change", func() {
				So(deps.settings.MinContourArea, ShouldEqual, 400.0)
				So(deps.settings.Cooldown, ShouldEqual, 1500*time.Millisecond)
				So(deps.settings.MotionPixelsThreshold, ShouldEqual, 500)
			})
		})

		Convey("When the overlay is invalid", func() {
			So(do(mux, http.MethodPost, "/tuning", `{"conditions_required":9}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/tuning", `{"exposure":1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/tuning", `{not json`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestResultsHandler(t *testing.T) {
	Convey("Given stored results", t, func() {
		deps := newMockDeps()
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		deps.results = []model.RaceResult{
			{ID: "b", Timestamp: at.Add(time.Minute), LapCount: 2, LapTimes: []float64{9.8, 10.5}, BestLapNumber: 1},
			{ID: "a", Timestamp: at, LapCount: 2, LapTimes: []float64{12, 11}, BestLapNumber: 2},
		}
		deps.board = []types.LapEntry{
			{Rank: 1, RaceID: "b", LapNumber: 1, Seconds: 9.8, Formatted: "00:09.800"},
			{Rank: 2, RaceID: "b", LapNumber: 2, Seconds: 10.5, Formatted: "00:10.500"},
		}
		mux := newMux(deps)

		Convey("When listing without a limit", func() {
			w := do(mux, http.MethodGet, "/results", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 20)
		})

		Convey("When listing with an explicit limit", func() {
			var got []model.RaceResult
			So(json.NewDecoder(do(mux, http.MethodGet, "/results?limit=1", "").Body).Decode(&got), ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].ID, ShouldEqual, "b")
		})

		Convey("When the limit is invalid", func() {
			So(do(mux, http.MethodGet, "/results?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/results?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/results?limit=101", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When fetching one result", func() {
			So(do(mux, http.MethodGet, "/results/a", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/results/zzz", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When reading the leaderboard", func() {
			var got []types.LapEntry
			So(json.NewDecoder(do(mux, http.MethodGet, "/leaderboard?limit=1", "").Body).Decode(&got), ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].Rank, ShouldEqual, 1)
		})

		Convey("When rendering charts", func() {
			w := do(mux, http.MethodGet, "/charts/laps", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "text/html")

			png := do(mux, http.MethodGet, "/charts/laps.png?id=a", "")
			So(png.Code, ShouldEqual, http.StatusOK)
			So(png.Header().Get("Content-Type"), ShouldEqual, "image/png")
		})

		Convey("When there are no results", func() {
			deps.results = nil
			So(do(mux, http.MethodGet, "/results", "").Body.String(), ShouldStartWith, "[]")
			So(do(mux, http.MethodGet, "/charts/laps.png", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSnapshotHandler(t *testing.T) {
	Convey("Given cameras in different states", t, func() {
		mux := newMux(newMockDeps())

		Convey("Then the start line camera is the default", func() {
			w := do(mux, http.MethodGet, "/snapshot.jpg", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "image/jpeg")
		})

		Convey("Then a camera without frames is unavailable", func() {
			So(do(mux, http.MethodGet, "/snapshot.jpg?camera=overview", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Then an unknown camera is not found", func() {
			So(do(mux, http.MethodGet, "/snapshot.jpg?camera=pit", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
