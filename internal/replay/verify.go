package replay

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/pkg/logger"
)

// Verification compares detected lap times against the expected ones.
type Verification struct {
	Pass      bool      `json:"pass"`
	Matched   int       `json:"matched"`
	Missing   int       `json:"missing"`
	Extra     int       `json:"extra"`
	Errors    []float64 `json:"errors"`
	MaxError  float64   `json:"max_error"`
	Tolerance float64   `json:"tolerance"`
	Failures  []string  `json:"failures,omitempty"`
}

// Verify pairs laps by number. A lap matches when it is within tolerance of
// the expected time. Missing and extra laps fail the run.
func Verify(expected, detected []float64, tolerance time.Duration) Verification {
	tol := tolerance.Seconds()
	v := Verification{Tolerance: laps.Round3(tol)}

	n := min(len(expected), len(detected))
	for i := range n {
		diff := detected[i] - expected[i]
		v.Errors = append(v.Errors, laps.Round3(diff))
		if abs := math.Abs(diff); abs > v.MaxError {
			v.MaxError = abs
		}
		if math.Abs(diff) <= tol {
			v.Matched++
			continue
		}
		v.Failures = append(v.Failures, fmt.Sprintf("lap %d: expected %s, detected %s",
			i+1, laps.FormatSeconds(expected[i]), laps.FormatSeconds(detected[i])))
	}
	v.MaxError = laps.Round3(v.MaxError)

	if len(expected) > n {
		v.Missing = len(expected) - n
		v.Failures = append(v.Failures, fmt.Sprintf("%d lap(s) not detected", v.Missing))
	}
	if len(detected) > n {
		v.Extra = len(detected) - n
		v.Failures = append(v.Failures, fmt.Sprintf("%d unexpected lap(s)", v.Extra))
	}
	v.Pass = len(v.Failures) == 0
	return v
}

// logVerification prints the lap table and the verdict.
func logVerification(ctx context.Context, report *Report, verbose bool) {
	log := logger.Get().Named("replay")
	for i, d := range report.Detected {
		fields := []logger.Field{
			logger.Int("lap", i+1),
			logger.String("detected", laps.FormatSeconds(d)),
		}
		if i < len(report.Expected) {
			fields = append(fields, logger.String("expected", laps.FormatSeconds(report.Expected[i])))
		}
		if verbose && i < len(report.Verification.Errors) {
			fields = append(fields, logger.Float64("error", report.Verification.Errors[i]))
		}
		log.Info(ctx, "lap", fields...)
	}

	v := report.Verification
	if len(report.Expected) == 0 {
		log.Info(ctx, "no expected laps, verification skipped", logger.Int("detected", len(report.Detected)))
		return
	}
	if v.Pass {
		log.Info(ctx, "replay verified",
			logger.Int("laps", v.Matched),
			logger.Float64("maxError", v.MaxError))
		return
	}
	for _, f := range v.Failures {
		log.Warn(ctx, "verification failure", logger.String("detail", f))
	}
}
