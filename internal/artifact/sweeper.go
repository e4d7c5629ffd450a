package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/voxworks/kokoro-mcp/internal/core"
	"github.com/voxworks/kokoro-mcp/internal/metrics"
)

// Log formats for the retention sweeper.
const (
	logMsgRetentionDisabled = "Artifact retention is disabled, sweeper will not run"
	logFmtSweepStarted      = "Sweeping artifacts older than %s from %s"
	logFmtSweepRemoved      = "Retention sweep removed %d artifacts"
	logFmtSweepFailed       = "Retention sweep failed: %v"
	logFmtSweepStatFailed   = "Failed to stat artifact %s during sweep: %v"
	logFmtSweepRemoveFailed = "Failed to remove aged artifact %s: %v"
)

// SweeperConfig controls the retention sweep. A MaxAge of zero or less
// disables sweeping entirely.
type SweeperConfig struct {
	Dir      string
	MaxAge   time.Duration
	Interval time.Duration
}

// Sweeper removes aged artifacts from the storage directory. It never
// touches in-flight requests: only files already settled on disk are
// considered, and each file is handled independently.
type Sweeper struct {
	cfg SweeperConfig
	met metrics.Metrics
	log *logger.Logger
}

// NewSweeper returns a sweeper over the given storage directory.
func NewSweeper(cfg SweeperConfig, met metrics.Metrics, log *logger.Logger) *Sweeper {
	if met == nil {
		met = metrics.Noop{}
	}

	return &Sweeper{
		cfg: cfg,
		met: met,
		log: log,
	}
}

// Enabled reports whether a retention window is configured.
func (s *Sweeper) Enabled() bool {
	return s.cfg.MaxAge > 0
}

// Sweep removes artifacts whose modification time falls outside the
// retention window and reports how many were removed. A file that cannot
// be removed is logged and skipped; the next sweep retries it. Running a
// sweep twice over an unchanged directory removes nothing the second time.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		s.met.IncSweeps(metrics.StatusFailed)

		return 0, fmt.Errorf("failed to read storage directory '%s': %w", s.cfg.Dir, err)
	}

	cutoff := time.Now().Add(-s.cfg.MaxAge)
	removed := 0

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}

		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), mp3Extension) {
			continue
		}

		if s.sweepEntry(entry, cutoff) {
			removed++
		}
	}

	s.met.IncSweeps(metrics.StatusOK)
	s.met.AddSweptFiles(removed)

	if removed > 0 {
		s.log.Info(logFmtSweepRemoved, removed)
	}

	return removed, nil
}

// sweepEntry removes a single aged artifact, reporting whether it did.
func (s *Sweeper) sweepEntry(entry os.DirEntry, cutoff time.Time) bool {
	info, infoErr := entry.Info()
	if infoErr != nil {
		statFailure := fmt.Errorf("%w: %v", core.ErrSweepItemFailed, infoErr)
		s.log.Warn(logFmtSweepStatFailed, entry.Name(), statFailure)

		return false
	}

	if !info.ModTime().Before(cutoff) {
		return false
	}

	path := filepath.Join(s.cfg.Dir, entry.Name())

	removeErr := os.Remove(path)
	if removeErr != nil {
		removeFailure := fmt.Errorf("%w: %v", core.ErrSweepItemFailed, removeErr)
		s.log.Warn(logFmtSweepRemoveFailed, path, removeFailure)

		return false
	}

	return true
}

// Run sweeps immediately and then on every interval tick until the context
// is canceled. It blocks, so it is meant to run on its own goroutine. When
// no retention window is configured it logs once and returns.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		s.log.Info(logMsgRetentionDisabled)

		return
	}

	s.log.Info(logFmtSweepStarted, s.cfg.MaxAge, s.cfg.Dir)
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	_, err := s.Sweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error(logFmtSweepFailed, err)
	}
}
