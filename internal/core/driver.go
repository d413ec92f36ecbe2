package core

// driver.go walks a session's records in order and keeps the session's
// tallies current.
//
// Per row the driver:
//  1. Re-reads the session and stops if it was cancelled
//  2. Waits while it is paused, handing its concurrency slot back until the
//     session runs again
//  3. Records the row as the current index
//  4. Runs the row processor and folds the outcome into the stats
//  5. Persists the updated session and sleeps the inter-row delay
//
// Pause and cancel only take effect at row boundaries. A waiting driver is
// woken by the control path through a per-session channel and also re-checks
// the store every poll interval, so status writes that bypass the service are
// still observed.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Driver defaults.
const (
	DefaultRowDelay     = 100 * time.Millisecond
	DefaultPollInterval = time.Second
)

// DriverConfig tunes the per-session loop. Zero values fall back to defaults.
type DriverConfig struct {
	RowDelay     time.Duration
	PollInterval time.Duration
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.RowDelay <= 0 {
		c.RowDelay = DefaultRowDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

type driver struct {
	id        string
	store     SessionStore
	processor RowProcessor
	wake      <-chan struct{}
	cfg       DriverConfig
	metrics   *Metrics
	snapshots SessionSnapshotter
	logger    *slog.Logger

	slots   *ImportLimiter
	holding bool // owned by the driver goroutine
}

// run processes records[start:] and leaves the session in a terminal state,
// unless ctx is cancelled first, in which case the status is left untouched
// so a durable snapshot can be resumed later.
func (d *driver) run(ctx context.Context, start int) {
	final := StatusRunning
	defer d.releaseSlot()
	d.metrics.driverStarted()
	defer func() { d.metrics.driverStopped(final) }()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("import driver crashed", "panic", r, "stack", string(debug.Stack()))
			final = d.finish(ctx, StatusFailed, fmt.Sprintf("import aborted: %v", r))
		}
	}()

	sess, ok := d.store.Get(d.id)
	if !ok {
		d.logger.Warn("import session vanished before start")
		return
	}
	records := sess.Records

	d.logger.Info("import started",
		"total_rows", len(records),
		"start_index", start,
	)
	startedAt := time.Now()

	for i := start; i < len(records); i++ {
		status, ok := d.awaitRunnable(ctx)
		if !ok {
			d.logger.Info("import interrupted", "next_index", i)
			return
		}
		if status.Terminal() {
			final = status
			d.logger.Info("import stopped", "status", status, "next_index", i)
			return
		}

		if !d.processRow(ctx, i, records[i]) {
			d.logger.Warn("import session vanished mid-run", "index", i)
			return
		}

		if !d.pause(ctx, d.cfg.RowDelay) {
			d.logger.Info("import interrupted", "next_index", i+1)
			return
		}
	}

	status, ok := d.awaitRunnable(ctx)
	if !ok {
		return
	}
	if status.Terminal() {
		final = status
		return
	}

	final = d.finish(ctx, StatusCompleted, "")

	done, _ := d.store.Get(d.id)
	d.logger.Info("import finished",
		"status", final,
		"processed", done.Stats.ProcessedRows,
		"successful", done.Stats.SuccessfulImports,
		"failed", done.Stats.FailedImports,
		"skipped", done.Stats.SkippedRows,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
}

// awaitRunnable blocks while the session is paused. It returns the status
// once the session is terminal, or running with a concurrency slot held. It
// reports false if ctx ends or the session disappears.
func (d *driver) awaitRunnable(ctx context.Context) (SessionStatus, bool) {
	loggedPause := false
	for {
		sess, ok := d.store.Get(d.id)
		if !ok {
			return "", false
		}

		switch {
		case sess.Status == StatusPaused:
			if !loggedPause {
				d.logger.Info("import paused", "processed", sess.Stats.ProcessedRows)
				loggedPause = true
			}
			d.releaseSlot()
			if !d.pause(ctx, d.cfg.PollInterval) {
				return "", false
			}

		case sess.Status.Terminal():
			return sess.Status, true

		case !d.holdsSlot():
			if err := d.acquireSlot(ctx); err != nil {
				return "", false
			}
			// Re-read: the session may have changed while waiting.

		default:
			if loggedPause {
				d.logger.Info("import resumed", "status", sess.Status, "next_index", sess.Stats.ProcessedRows)
			}
			return sess.Status, true
		}
	}
}

func (d *driver) holdsSlot() bool {
	return d.slots == nil || d.holding
}

// acquireSlot waits one poll interval for a slot. Control signals cut the
// wait short so a cancel is seen without holding a slot.
func (d *driver) acquireSlot(ctx context.Context) error {
	ok, err := d.slots.acquireWithin(ctx, d.wake, d.cfg.PollInterval)
	if ok {
		d.holding = true
	}
	return err
}

func (d *driver) releaseSlot() {
	if d.slots != nil && d.holding {
		d.holding = false
		d.slots.Release()
	}
}

// pause sleeps for dur, returning early on a wake signal. Reports false if
// ctx ended.
func (d *driver) pause(ctx context.Context, dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-d.wake:
		return true
	case <-timer.C:
		return true
	}
}

// processRow handles one record and folds the outcome into the session.
// Reports false if the session no longer exists.
func (d *driver) processRow(ctx context.Context, index int, rec Record) bool {
	if _, ok := d.store.Update(d.id, func(s *Session) { s.CurrentIndex = index }); !ok {
		return false
	}

	began := time.Now()
	out := safeProcess(ctx, d.processor, index, rec)
	d.metrics.observeRow(out, time.Since(began))

	if out.Failed() {
		d.logger.Debug("import row failed", "row", index+RowNumberOffset, "error", out.Error)
	}

	updated, ok := d.store.Update(d.id, func(s *Session) {
		applyOutcome(s, index, rec, out)
	})
	if !ok {
		return false
	}

	d.persist(ctx, updated)
	return true
}

// finish moves a non-terminal session to status and returns the status the
// session ends up in. msg, when set, is recorded as a session-level error.
func (d *driver) finish(ctx context.Context, status SessionStatus, msg string) SessionStatus {
	updated, ok := d.store.Update(d.id, func(s *Session) {
		if s.Status.Terminal() {
			return
		}
		s.Status = status
		now := time.Now()
		s.FinishedAt = &now
		if msg != "" {
			s.Errors = append(s.Errors, ImportError{
				Row:             0,
				IdentifyingName: GeneralErrorName,
				Error:           msg,
			})
		}
	})
	if !ok {
		return status
	}
	d.persist(ctx, updated)
	return updated.Status
}

func (d *driver) persist(ctx context.Context, s Session) {
	if d.snapshots == nil {
		return
	}
	if err := d.snapshots.SaveProgress(context.WithoutCancel(ctx), s); err != nil {
		d.logger.Warn("failed to persist import progress", "error", err)
	}
}

// applyOutcome updates stats and the audit trail for one finished row.
func applyOutcome(s *Session, index int, rec Record, out RowOutcome) {
	row := index + RowNumberOffset
	name := identifyingName(rec, row)

	switch {
	case out.Success:
		s.Stats.SuccessfulImports++
	case out.Skipped:
		s.Stats.SkippedRows++
		s.SkippedCompanies = append(s.SkippedCompanies, SkippedRecord{
			Row:             row,
			IdentifyingName: name,
			Reason:          out.Reason,
			Data:            rec,
		})
	default:
		s.Stats.FailedImports++
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		s.Errors = append(s.Errors, ImportError{
			Row:             row,
			IdentifyingName: name,
			Error:           msg,
			Data:            rec,
		})
	}

	s.Stats.DownloadedImages += out.ImagesDownloaded
	s.Stats.FailedImages += out.ImagesFailed
	s.Stats.ProcessedRows++
}

func identifyingName(rec Record, row int) string {
	if name := CleanText(rec.Get("name")); name != "" {
		return name
	}
	if id := CleanCell(rec.Get("external_id")); id != "" {
		return id
	}
	return fmt.Sprintf("row %d", row)
}

// safeProcess keeps a misbehaving processor from taking the driver down.
func safeProcess(ctx context.Context, p RowProcessor, index int, rec Record) (out RowOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failure(fmt.Sprintf("unexpected error: %v", r))
		}
	}()
	return p.Process(ctx, index, rec)
}
