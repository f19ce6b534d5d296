// Package backup periodically snapshots every scanned code as JSONL and
// stores the snapshot in one or more destinations (S3, a local directory).
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// Source lists every scanned code across scopes.
type Source interface {
	ListAllCodes(ctx context.Context) ([]*model.ScannedCode, error)
}

// Destination stores snapshots.
type Destination interface {
	Name() string
	Store(ctx context.Context, snap *Snapshot) error
}

// Scheduler takes a snapshot on every tick and stores it in each
// destination. A snapshot identical to the last one stored everywhere is
// skipped.
type Scheduler struct {
	src      Source
	dests    []Destination
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	lastDigest string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(src Source, dests []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		src:      src,
		dests:    dests,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs one backup immediately and then one per interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(s.interval)
		defer tick.Stop()
		for {
			_ = s.RunOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
		}
	}()
}

// Stop cancels the scheduler and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce takes one snapshot and stores it. A failing destination does not
// stop the others; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	snap, err := Take(ctx, s.src, s.now())
	if err != nil {
		s.logger.Error("backup snapshot failed", "err", err)
		return err
	}

	s.mu.Lock()
	unchanged := snap.Digest == s.lastDigest
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug("backup unchanged, skipped", "codes", snap.Total, "digest", snap.Digest)
		return nil
	}

	var errs []error
	for _, d := range s.dests {
		if err := d.Store(ctx, snap); err != nil {
			s.logger.Error("backup store failed", "destination", d.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.mu.Lock()
	s.lastDigest = snap.Digest
	s.mu.Unlock()
	s.logger.Info("backup stored",
		"destinations", len(s.dests),
		"codes", snap.Total,
		"scopes", len(snap.Scopes),
		"bytes", len(snap.Data),
	)
	return nil
}
