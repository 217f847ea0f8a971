// Package worker runs periodic maintenance tasks, such as purging expired
// sessions, alongside the HTTP server.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker runs registered tasks on a fixed interval, one goroutine per task.
type Worker struct {
	tasks  map[string]Task
	config Config
	logger *slog.Logger

	// Synchronization
	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		tasks:  make(map[string]Task),
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Register adds a task to the worker. Call this before Start().
func (w *Worker) Register(task Task) {
	name := task.Name()
	if _, exists := w.tasks[name]; exists {
		w.logger.Warn("Overwriting existing task", "task", name)
	}
	w.tasks[name] = task
	w.logger.Debug("Registered task", "task", name)
}

// Start launches one loop per registered task.
func (w *Worker) Start(ctx context.Context) {
	for _, task := range w.tasks {
		w.wg.Add(1)
		go w.runTask(ctx, task)
	}

	w.logger.Info("Worker started", "tasks", len(w.tasks), "interval", w.config.Interval)
}

// Stop signals all loops to stop and waits for them to finish.
// It respects the configured ShutdownTimeout and is safe to call twice.
func (w *Worker) Stop() {
	w.once.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some tasks may still be running")
	}
}

// runTask is the loop for one task. It exits when stopCh is closed, ctx is
// canceled, or the task returns a PermanentError.
func (w *Worker) runTask(ctx context.Context, task Task) {
	defer w.wg.Done()

	logger := w.logger.With("task", task.Name())

	if w.config.RunOnStart {
		if !w.runOnce(ctx, task, logger) {
			return
		}
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Task loop stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.runOnce(ctx, task, logger) {
				return
			}
		}
	}
}

// runOnce executes a single pass with the task timeout. It reports whether
// the task should keep being scheduled.
func (w *Worker) runOnce(ctx context.Context, task Task, logger *slog.Logger) bool {
	taskCtx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	if err == nil {
		logger.Debug("Task completed", "duration", time.Since(start))
		return true
	}

	if IsPermanent(err) {
		logger.Error("Task failed permanently, will not run again", "error", err)
		return false
	}

	logger.Error("Task failed", "error", err)
	return true
}
