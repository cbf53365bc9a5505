package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/okian/laptimer/internal/adapters/http/api"
	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/types"
	"github.com/okian/laptimer/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request without a body. A non-empty key is sent as
// the idempotency key so a retried request is applied once.
func (c *HTTPClient) Post(ctx context.Context, url, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if key != "" {
		req.Header.Set(api.IdempotencyKeyHeader, key)
	}
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

// check reads the response and fails unless the status is one of want.
func check(resp *http.Response, err error, what string, want ...int) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(want, resp.StatusCode) {
		return nil, fmt.Errorf("%s: status %d: %s", what, resp.StatusCode, body)
	}
	return body, nil
}

func (c *HTTPClient) getOK(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	return check(resp, err, "GET "+url, StatusOK)
}

func (c *HTTPClient) postOK(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Post(ctx, url, "")
	return check(resp, err, "POST "+url, StatusOK)
}

// sendCrossing posts one crossing, retrying once on a transport error. A
// retry that the rig reports as a duplicate counts as delivered.
func (c *HTTPClient) sendCrossing(ctx context.Context, url string) error {
	key := uuid.NewString()
	resp, err := c.Post(ctx, url, key)
	if err != nil && ctx.Err() == nil {
		resp, err = c.Post(ctx, url, key)
	}
	_, err = check(resp, err, "POST "+url, StatusAccepted, StatusOK)
	return err
}

// runRemote drives a running rig through its operator API: it resets the
// race, triggers a crossing per lap on the scaled schedule and reads back the
// laps the rig recorded.
func runRemote(ctx context.Context, cfg *Config, stats *Stats) (*Report, error) {
	log := logger.Get().Named("replay")
	client := newHTTPClient(cfg.Timeout)
	base := cfg.BaseURL

	if len(cfg.Laps) == 0 {
		return nil, fmt.Errorf("remote replay needs at least one lap")
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}

	if err := checkServiceHealth(ctx, client, base); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	warnOnCooldown(ctx, client, base, cfg.Laps, speed)

	if _, err := client.postOK(ctx, base+"/race/reset"); err != nil {
		return nil, fmt.Errorf("reset race: %w", err)
	}

	expected := make([]float64, len(cfg.Laps))
	var crossings []float64
	start := time.Now()
	for i := 0; i <= len(cfg.Laps); i++ {
		if i > 0 {
			wait := time.Duration(float64(cfg.Laps[i-1]) / speed)
			expected[i-1] = laps.Round3(wait.Seconds())
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		if err := client.sendCrossing(ctx, base+"/race/crossing"); err != nil {
			return nil, fmt.Errorf("crossing %d: %w", i, err)
		}
		crossings = append(crossings, laps.Round3(time.Since(start).Seconds()))
		stats.CrossingsAccepted++
		log.Debug(ctx, "crossing sent", logger.Int("crossing", i))
	}

	view, err := raceView(ctx, client, base)
	if err != nil {
		return nil, err
	}
	if view.State == "running" {
		if _, err := client.postOK(ctx, base+"/race/stop"); err != nil {
			return nil, fmt.Errorf("stop race: %w", err)
		}
		if view, err = raceView(ctx, client, base); err != nil {
			return nil, err
		}
	}

	detected := make([]float64, 0, len(view.Laps))
	for _, l := range view.Laps {
		detected = append(detected, l.Seconds)
	}
	return &Report{
		Mode:      ModeRemote,
		Expected:  expected,
		Detected:  detected,
		Crossings: crossings,
		Accepted:  stats.CrossingsAccepted,
	}, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient, base string) error {
	logger.Get().Info(ctx, "checking service health")
	if _, err := client.getOK(ctx, base+"/healthz"); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// warnOnCooldown logs when a scaled lap is shorter than the rig's cooldown,
// in which case the rig rejects the crossing that closes it.
func warnOnCooldown(ctx context.Context, client *HTTPClient, base string, lapTimes []time.Duration, speed float64) {
	body, err := client.getOK(ctx, base+"/tuning")
	if err != nil {
		return
	}
	var tuning struct {
		Cooldown float64 `json:"detection_cooldown"`
	}
	if err := json.Unmarshal(body, &tuning); err != nil {
		return
	}
	for i, l := range lapTimes {
		if scaled := l.Seconds() / speed; scaled < tuning.Cooldown {
			logger.Get().Warn(ctx, "lap shorter than the rig cooldown",
				logger.Int("lap", i+1),
				logger.Float64("seconds", laps.Round3(scaled)),
				logger.Float64("cooldown", tuning.Cooldown))
		}
	}
}

func raceView(ctx context.Context, client *HTTPClient, base string) (types.RaceView, error) {
	var view types.RaceView
	body, err := client.getOK(ctx, base+"/race")
	if err != nil {
		return view, fmt.Errorf("get race: %w", err)
	}
	if err := json.Unmarshal(body, &view); err != nil {
		return view, fmt.Errorf("decode race: %w", err)
	}
	return view, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
