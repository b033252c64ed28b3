package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler executes one claimed task. A returned error sends the task
// through the retry ladder.
type Handler func(ctx context.Context, task *Task) error

// RunnerConfig tunes the poll loop.
type RunnerConfig struct {
	// PollInterval between claim ticks; a value <= 0 disables the loop.
	PollInterval time.Duration
	// BatchSize is the maximum tasks claimed per tick.
	BatchSize int
}

// Runner drives the queue: each tick claims a batch and dispatches every
// claimed task to its registered handler on its own goroutine. One failing
// task never aborts the batch or the loop.
type Runner struct {
	repo     Repository
	cfg      RunnerConfig
	logger   zerolog.Logger
	mu       sync.RWMutex
	handlers map[Type]Handler
	wg       sync.WaitGroup
}

func NewRunner(repo Repository, cfg RunnerConfig, logger zerolog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Runner{
		repo:     repo,
		cfg:      cfg,
		logger:   logger.With().Str("component", "taskqueue").Logger(),
		handlers: make(map[Type]Handler),
	}
}

// Register binds a handler to a task type. Later registrations replace
// earlier ones.
func (r *Runner) Register(taskType Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

// Start runs the poll loop until ctx is cancelled. Returns immediately when
// the poll interval disables the loop.
func (r *Runner) Start(ctx context.Context) {
	if r.cfg.PollInterval <= 0 {
		r.logger.Info().Msg("poll loop disabled")
		return
	}
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return
		case now := <-ticker.C:
			r.Tick(ctx, now)
		}
	}
}

// Tick claims one batch and dispatches it. Exposed so startup code and
// tests can drive the queue without the ticker.
func (r *Runner) Tick(ctx context.Context, now time.Time) {
	claimed, err := r.repo.ClaimBatch(ctx, r.cfg.BatchSize, now)
	if err != nil {
		r.logger.Error().Err(err).Msg("claim batch")
		return
	}
	for _, task := range claimed {
		task := task
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.dispatch(ctx, task)
		}()
	}
}

// Wait blocks until all in-flight task handlers return.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) dispatch(ctx context.Context, task *Task) {
	r.mu.RLock()
	handler, ok := r.handlers[task.Type]
	r.mu.RUnlock()

	log := r.logger.With().
		Stringer("task_id", task.ID).
		Str("task_type", string(task.Type)).
		Int("attempt", task.Attempts).
		Logger()

	if !ok {
		log.Error().Msg("no handler registered")
		if err := r.repo.Fail(ctx, task.ID, fmt.Sprintf("no handler for type %s", task.Type)); err != nil {
			log.Error().Err(err).Msg("record failure")
		}
		return
	}

	err := r.runHandler(ctx, handler, task)
	if err != nil {
		log.Warn().Err(err).Msg("task failed")
		if ferr := r.repo.Fail(ctx, task.ID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("record failure")
		}
		return
	}
	if cerr := r.repo.Complete(ctx, task.ID); cerr != nil {
		log.Error().Err(cerr).Msg("record completion")
		return
	}
	log.Info().Msg("task completed")
}

// runHandler isolates handler panics so a panicking task counts as a
// failure instead of killing the runner.
func (r *Runner) runHandler(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task handler panic: %v", rec)
		}
	}()
	return h(ctx, task)
}
