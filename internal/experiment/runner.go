// Package experiment drives one closed-loop run on the plant per gain
// triple: send the command frame, wait for the firmware to finish,
// collect the sampled response.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/armtune/tuner-core/internal/transport"
	"github.com/armtune/tuner-core/internal/wire"
	"github.com/armtune/tuner-core/pkg/logger"
	"github.com/armtune/tuner-core/pkg/models"
	"github.com/armtune/tuner-core/pkg/utils"
)

// seriesGrace is how long past the nominal run time the runner keeps
// waiting for the sample dump before giving up on the trial.
const seriesGrace = 5 * time.Second

// DeviceUnresponsiveError reports a trial the firmware never completed.
// It aborts the trial, not the session; the caller records a failed
// trial and moves on.
type DeviceUnresponsiveError struct {
	Phase    string
	Attempts int
}

func (e *DeviceUnresponsiveError) Error() string {
	return fmt.Sprintf("device unresponsive during %s after %d attempts", e.Phase, e.Attempts)
}

// Runner executes experiments over a transport it exclusively owns.
// Not safe for concurrent use; the session evaluates one triple at a
// time because there is one physical plant.
type Runner struct {
	transport   transport.Transport
	maxAttempts int
	backoff     utils.BackoffStrategy
	pollPause   time.Duration
}

// NewRunner creates a runner around the given transport. maxAttempts
// bounds the command handshake; backoff spaces the retries.
func NewRunner(t transport.Transport, maxAttempts int, backoff utils.BackoffStrategy) *Runner {
	return &Runner{
		transport:   t,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		pollPause:   50 * time.Millisecond,
	}
}

// Run executes one experiment and returns the sampled response.
//
// The protocol has two phases. First the command frame is written and
// the firmware must acknowledge run completion with a status line;
// lines that do not acknowledge trigger a bounded rewrite-and-retry.
// Then the runner reads until a line parses as a sample series,
// discarding diagnostic noise, and releases the firmware with a
// receipt acknowledgement.
func (r *Runner) Run(ctx context.Context, gains models.GainTriple, params models.RunParameters) (models.ResponseSeries, error) {
	if err := r.transport.Reset(); err != nil {
		return nil, fmt.Errorf("resetting transport: %w", err)
	}

	frame := wire.EncodeFrame(gains, params)
	if err := r.awaitCompletion(ctx, frame); err != nil {
		return nil, err
	}

	series, err := r.collectSeries(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := r.transport.Write([]byte(wire.AckPayload + "\n")); err != nil {
		return nil, fmt.Errorf("acknowledging series: %w", err)
	}

	logger.Debug("experiment complete",
		"kp", gains.Kp, "ki", gains.Ki, "kd", gains.Kd,
		"samples", len(series))
	return series, nil
}

// awaitCompletion writes the command frame and waits for the firmware
// to report the run done, rewriting the frame on every silent or
// unrelated line up to the attempt ceiling.
func (r *Runner) awaitCompletion(ctx context.Context, frame []byte) error {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			r.sleep(ctx, r.backoff.NextDelay(attempt-1))
		}

		if err := r.transport.Write(frame); err != nil {
			return fmt.Errorf("writing command frame: %w", err)
		}

		line, err := r.transport.ReadLine()
		if err != nil {
			return fmt.Errorf("reading status: %w", err)
		}
		if wire.DecodeStatus(line) {
			return nil
		}
		if line != "" {
			logger.Debug("ignoring non-status line", "line", line)
		}
		r.sleep(ctx, r.pollPause)
	}
	return &DeviceUnresponsiveError{Phase: "handshake", Attempts: r.maxAttempts}
}

// collectSeries reads lines until one parses as a sample series.
// Noise and malformed lines are skipped; the wait is bounded by the
// nominal run time plus a grace interval.
func (r *Runner) collectSeries(ctx context.Context, params models.RunParameters) (models.ResponseSeries, error) {
	deadline := time.Now().Add(utils.MsToTime(float64(params.RunTimeMs)) + seriesGrace)
	attempts := 0

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		line, err := r.transport.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("reading series: %w", err)
		}
		if line == "" {
			r.sleep(ctx, r.pollPause)
			continue
		}

		series, err := wire.DecodeSeries(line)
		if err != nil {
			logger.Warn("discarding malformed line", "error", err)
			continue
		}
		if series != nil {
			return series, nil
		}
	}
	return nil, &DeviceUnresponsiveError{Phase: "series", Attempts: attempts}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
