// Package warmup loads the catalog and initializes the model clients ahead
// of the first query, and reports readiness to the orchestrator.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/ut-course-advisor/internal/lazy"
	"github.com/garyellow/ut-course-advisor/internal/logger"
	"github.com/garyellow/ut-course-advisor/internal/metrics"
)

// Task is one warmup step.
type Task struct {
	Name string
	// Required tasks gate readiness. Optional task failures are only logged,
	// the resource is retried on first use.
	Required bool
	Run      func(ctx context.Context) error
}

// HandleTask warms a lazy handle.
func HandleTask[T any](h *lazy.Handle[T], required bool) Task {
	return Task{
		Name:     h.Name(),
		Required: required,
		Run: func(ctx context.Context) error {
			_, err := h.Get(ctx)
			return err
		},
	}
}

// Options configures a warmup run.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Run executes all tasks concurrently and returns the joined errors of the
// required tasks that failed. A failing task does not cancel the others.
func Run(ctx context.Context, tasks []Task, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logger.New("info")
	}
	log = log.WithModule("warmup")
	start := time.Now()

	requiredErrs := make([]error, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				requiredErrs[i] = fmt.Errorf("%s: %w", task.Name, err)
				return nil
			}
			taskStart := time.Now()
			err := runTask(ctx, task)
			entry := log.WithField("task", task.Name).WithField("duration_ms", time.Since(taskStart).Milliseconds())
			if err != nil {
				opts.Metrics.RecordWarmupTask(task.Name, "error")
				entry.WithError(err).WithField("required", task.Required).Warn("Warmup task failed")
				if task.Required {
					requiredErrs[i] = fmt.Errorf("%s: %w", task.Name, err)
				}
				return nil
			}
			opts.Metrics.RecordWarmupTask(task.Name, "success")
			entry.Info("Warmup task complete")
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start)
	opts.Metrics.RecordWarmupDuration(duration)
	err := errors.Join(requiredErrs...)
	log.WithField("duration", duration.String()).WithField("tasks", len(tasks)).WithField("ok", err == nil).Info("Warmup finished")
	return err
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

// RunInBackground runs the tasks on a detached context and marks readiness
// when every required task succeeded.
//
//nolint:contextcheck // warmup outlives the caller
func RunInBackground(tasks []Task, readiness *ReadinessState, opts Options) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("warmup panic: %v", r)
				if opts.Logger != nil {
					opts.Logger.WithField("panic", r).Error("Panic in background warmup")
				}
				readiness.MarkFailed(err)
				done <- err
			}
		}()

		err := Run(context.Background(), tasks, opts)
		if err != nil {
			readiness.MarkFailed(err)
		} else {
			readiness.MarkReady()
		}
		done <- err
	}()
	return done
}
