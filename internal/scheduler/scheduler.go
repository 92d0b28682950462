// Package scheduler runs the background loops: the daily quota reset,
// periodic housekeeping and upstream credential probes.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

// Resetter is the quota engine slice the daily reset calls into.
type Resetter interface {
	ResetAllDaily(ctx context.Context) error
}

// Sweeper expires stale session state.
type Sweeper interface {
	Sweep()
}

// Probe is an upstream client that can verify its credentials.
type Probe interface {
	Name() string
	Ping(ctx context.Context) error
}

type Scheduler struct {
	quota     Resetter
	sessions  Sweeper
	probes    []Probe
	chartDir  string
	resetHour int
	logger    *logger.Logger

	lastProbe time.Time
}

func New(quota Resetter, sessions Sweeper, chartDir string, resetHour int, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		quota:     quota,
		sessions:  sessions,
		chartDir:  chartDir,
		resetHour: resetHour,
		logger:    logger,
	}
}

// WithProbes registers upstream clients to ping once a day.
func (s *Scheduler) WithProbes(probes ...Probe) *Scheduler {
	s.probes = append(s.probes, probes...)
	return s
}

// NextReset returns the next occurrence of hour:00 UTC strictly after now.
func NextReset(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// RunDailyReset sleeps until the reset hour, resets every user's daily
// counter and repeats. A reset missed during downtime is not backfilled;
// counters simply reset at the next boundary.
func (s *Scheduler) RunDailyReset(ctx context.Context) {
	for {
		wait := time.Until(NextReset(time.Now(), s.resetHour))
		s.logger.Infow("daily reset scheduled", "in", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := s.quota.ResetAllDaily(ctx); err != nil {
			s.logger.Errorw("daily reset failed", "error", err)
		}
	}
}

// RunMaintenance runs the hourly housekeeping loop: old chart files are
// deleted, expired session state is swept and, once a day, the upstream
// clients are pinged.
func (s *Scheduler) RunMaintenance(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.cleanupCharts()
		if s.sessions != nil {
			s.sessions.Sweep()
		}
		if time.Since(s.lastProbe) >= 24*time.Hour {
			s.runProbes(ctx)
			s.lastProbe = time.Now()
		}
	}
}

// cleanupCharts removes spooled chart PNGs older than a day.
func (s *Scheduler) cleanupCharts() {
	if s.chartDir == "" {
		return
	}
	entries, err := os.ReadDir(s.chartDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "chart_") || !strings.HasSuffix(name, ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.chartDir, name)); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Infow("old charts removed", "count", removed)
	}
}

func (s *Scheduler) runProbes(ctx context.Context) {
	for _, p := range s.probes {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := p.Ping(probeCtx)
		cancel()
		if err != nil {
			s.logger.Warnw("upstream probe failed", "probe", p.Name(), "error", err)
		} else {
			s.logger.Infow("upstream probe ok", "probe", p.Name())
		}
	}
}
