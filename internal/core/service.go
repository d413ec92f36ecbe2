package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dirlisting/importer/internal/logging"
)

// SessionSnapshotter writes sessions to durable storage so unfinished imports
// can be resumed after a restart.
type SessionSnapshotter interface {
	// InsertSession stores a new session including its records and settings.
	InsertSession(ctx context.Context, s Session) error

	// SaveProgress stores the mutable part of a session: status, current
	// index, stats and the audit trail.
	SaveProgress(ctx context.Context, s Session) error

	// LoadUnfinished returns every stored session that is running or paused.
	LoadUnfinished(ctx context.Context) ([]Session, error)
}

// ControlAction is an operator request against a running import.
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionCancel ControlAction = "cancel"
)

// StartRequest describes a new import.
type StartRequest struct {
	FileName string
	Records  []Record
	Settings Settings
}

// ServiceConfig holds import service settings.
type ServiceConfig struct {
	Driver        DriverConfig
	MaxConcurrent int           // Simultaneously running imports
	MaxWait       time.Duration // How long Start waits for a free slot
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithMetrics records pipeline metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithSnapshots persists every session change through snap.
func WithSnapshots(snap SessionSnapshotter) ServiceOption {
	return func(s *Service) { s.snapshots = snap }
}

// Service runs import sessions in the background and exposes the control
// surface: start, inspect, pause, resume, cancel.
type Service struct {
	store      SessionStore
	processors ProcessorFactory
	snapshots  SessionSnapshotter
	metrics    *Metrics
	limiter    *ImportLimiter
	cfg        ServiceConfig

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu   sync.Mutex
	wake map[string]chan struct{}
}

// NewService creates an import service. Drivers run until their session ends
// or Shutdown is called.
func NewService(store SessionStore, processors ProcessorFactory, cfg ServiceConfig, opts ...ServiceOption) *Service {
	ctx, stop := context.WithCancel(context.Background())

	s := &Service{
		store:      store,
		processors: processors,
		limiter:    NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:        cfg,
		ctx:        ctx,
		stop:       stop,
		wake:       make(map[string]chan struct{}),
	}
	s.cfg.Driver = cfg.Driver.withDefaults()

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a running session for req and launches its driver.
// Returns the session ID immediately.
func (s *Service) Start(ctx context.Context, req StartRequest) (string, error) {
	if len(req.Records) == 0 {
		return "", ErrNoRecords
	}

	settings, err := normalizeSettings(req.Settings)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	sess := &Session{
		ID:               uuid.New().String(),
		FileName:         req.FileName,
		Status:           StatusRunning,
		Records:          req.Records,
		Settings:         settings,
		Stats:            Stats{TotalRows: len(req.Records)},
		Errors:           []ImportError{},
		SkippedCompanies: []SkippedRecord{},
		StartedAt:        time.Now(),
	}

	if err := s.store.Create(sess); err != nil {
		s.limiter.Release()
		return "", err
	}

	if s.snapshots != nil {
		if err := s.snapshots.InsertSession(ctx, *sess); err != nil {
			slog.Warn("failed to persist new import session", "session_id", sess.ID, "error", err)
		}
	}

	submitter := SubmitterFrom(ctx)
	logging.ForSession(ctx, sess.ID).Info("import session created",
		"file", req.FileName,
		"rows", len(req.Records),
		"client_ip", submitter.IP,
		"user_agent", submitter.UserAgent,
		"duplicate_policy", settings.DuplicatePolicy,
		"download_images", settings.DownloadImages,
	)

	s.launch(sess.ID, 0, settings, true)
	return sess.ID, nil
}

// Inspect returns the current snapshot of a session.
func (s *Service) Inspect(id string) (Session, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// List returns all known sessions, most recent first.
func (s *Service) List() []Session {
	return s.store.List()
}

// Pause asks the driver to stop before its next row.
func (s *Service) Pause(id string) error {
	return s.Control(id, ActionPause)
}

// Resume lets a paused driver continue from where it stopped.
func (s *Service) Resume(id string) error {
	return s.Control(id, ActionResume)
}

// Cancel stops the import before its next row. Terminal.
func (s *Service) Cancel(id string) error {
	return s.Control(id, ActionCancel)
}

// Control applies action to a session. Only the status is touched; the
// driver owns the index and the stats. Repeating the current state is a no-op.
func (s *Service) Control(id string, action ControlAction) error {
	var target SessionStatus
	switch action {
	case ActionPause:
		target = StatusPaused
	case ActionResume:
		target = StatusRunning
	case ActionCancel:
		target = StatusCancelled
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	var transitionErr error
	updated, ok := s.store.Update(id, func(sess *Session) {
		if sess.Status.Terminal() {
			transitionErr = fmt.Errorf("%w: %s is %s", ErrSessionTerminal, id, sess.Status)
			return
		}
		if sess.Status == target {
			return
		}
		sess.Status = target
		if target == StatusCancelled {
			now := time.Now()
			sess.FinishedAt = &now
		}
	})
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if transitionErr != nil {
		return transitionErr
	}

	slog.Info("import control", "session_id", id, "action", action, "status", updated.Status)

	s.notify(id)
	if s.snapshots != nil {
		if err := s.snapshots.SaveProgress(s.ctx, updated); err != nil {
			slog.Warn("failed to persist import status", "session_id", id, "error", err)
		}
	}
	return nil
}

// Recover reloads unfinished sessions from durable storage and restarts their
// drivers from the first unprocessed row. Returns the number resumed.
func (s *Service) Recover(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}

	sessions, err := s.snapshots.LoadUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("load unfinished imports: %w", err)
	}

	resumed := 0
	for i := range sessions {
		sess := sessions[i]
		if sess.Status.Terminal() {
			continue
		}
		if err := s.store.Create(&sess); err != nil {
			slog.Warn("skipping recovered import", "session_id", sess.ID, "error", err)
			continue
		}

		slog.Info("import session recovered",
			"session_id", sess.ID,
			"status", sess.Status,
			"next_index", sess.Stats.ProcessedRows,
			"total_rows", sess.Stats.TotalRows,
		)
		// Recovered drivers queue for a slot instead of failing the restart.
		s.launch(sess.ID, sess.Stats.ProcessedRows, sess.Settings, false)
		resumed++
	}
	return resumed, nil
}

// PurgeFinished removes terminal sessions that finished before cutoff.
// Returns the number removed.
func (s *Service) PurgeFinished(cutoff time.Time) int {
	purged := 0
	for _, sess := range s.store.List() {
		if !sess.Status.Terminal() || sess.FinishedAt == nil || sess.FinishedAt.After(cutoff) {
			continue
		}
		if s.store.Delete(sess.ID) {
			purged++
		}
	}
	return purged
}

// ActiveImports returns the number of drivers holding a slot. Paused
// sessions are not counted.
func (s *Service) ActiveImports() int {
	return s.limiter.ActiveCount()
}

// LimiterStatus returns the current concurrency limiter state.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until every driver has returned or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Shutdown interrupts all drivers at their next row boundary and waits for
// them to return. Interrupted sessions keep their status.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launch starts the driver for id. holding reports whether the caller already
// took a limiter slot on the driver's behalf.
func (s *Service) launch(id string, start int, settings Settings, holding bool) {
	wake := make(chan struct{}, 1)

	s.mu.Lock()
	s.wake[id] = wake
	s.mu.Unlock()

	d := &driver{
		id:        id,
		store:     s.store,
		processor: s.processors(settings),
		wake:      wake,
		cfg:       s.cfg.Driver,
		metrics:   s.metrics,
		snapshots: s.snapshots,
		logger:    logging.ForSession(s.ctx, id),
		slots:     s.limiter,
		holding:   holding,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.wake, id)
			s.mu.Unlock()
		}()
		d.run(s.ctx, start)
	}()
}

// notify wakes a waiting driver without blocking.
func (s *Service) notify(id string) {
	s.mu.Lock()
	wake, ok := s.wake[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

func normalizeSettings(in Settings) (Settings, error) {
	switch in.DuplicatePolicy {
	case "":
		in.DuplicatePolicy = DuplicateSkip
	case DuplicateSkip, DuplicateUpdate:
	default:
		return in, fmt.Errorf("%w: duplicate policy %q must be %q or %q",
			ErrInvalidSettings, in.DuplicatePolicy, DuplicateSkip, DuplicateUpdate)
	}
	if in.MaxImagesPerRow < 0 {
		return in, fmt.Errorf("%w: maxImagesPerRow must be non-negative", ErrInvalidSettings)
	}
	return in, nil
}
