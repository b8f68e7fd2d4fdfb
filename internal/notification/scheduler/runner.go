package scheduler

import (
	"context"
	"sync"
	"time"

	"notify-backend/internal/notification/domain"

	"go.uber.org/zap"
)

// Pass runs one digest pass.
type Pass interface {
	Run(ctx context.Context, frequency domain.EmailFrequency) (Summary, error)
}

// Runner triggers the individual pass on an interval and the daily pass once
// a day at a fixed UTC hour.
type Runner struct {
	pass      Pass
	interval  time.Duration
	dailyHour int
	logger    *zap.Logger
	now       func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // one pass at a time
}

// NewRunner creates a new runner
func NewRunner(pass Pass, interval time.Duration, dailyHour int, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if dailyHour < 0 || dailyHour > 23 {
		dailyHour = 5
	}
	return &Runner{
		pass:      pass,
		interval:  interval,
		dailyHour: dailyHour,
		logger:    logger.Named("digest_runner"),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start begins both loops
func (r *Runner) Start() {
	r.logger.Info("starting digest runner",
		zap.Duration("individual_interval", r.interval),
		zap.Int("daily_hour_utc", r.dailyHour))
	if d, ok := r.pass.(interface{ DefersMismatched() bool }); ok && !d.DefersMismatched() {
		r.logger.Warn("individual passes will mark daily backlogs as none before the daily pass runs; set DIGEST_DEFER_MISMATCHED=true to keep them pending")
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.runPass(domain.EmailIndividual)
			case <-r.stopChan:
				return
			}
		}
	}()

	go func() {
		defer r.wg.Done()
		for {
			timer := time.NewTimer(r.untilNextDaily())
			select {
			case <-timer.C:
				r.runPass(domain.EmailDaily)
			case <-r.stopChan:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop gracefully stops the runner and waits for a running pass
func (r *Runner) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	r.logger.Info("digest runner stopped")
}

func (r *Runner) runPass(frequency domain.EmailFrequency) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	if _, err := r.pass.Run(ctx, frequency); err != nil {
		r.logger.Error("digest pass failed", zap.String("frequency", string(frequency)), zap.Error(err))
	}
}

func (r *Runner) untilNextDaily() time.Duration {
	return nextDaily(r.now().UTC(), r.dailyHour).Sub(r.now().UTC())
}

// nextDaily returns the next time strictly after now at hour:00 UTC.
func nextDaily(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
