// Package job turns a stream of task configs into a stream of lazily
// materialized tasks sharing one cleaner, cache, and context. The producer
// side stays cheap (no URL parsing); worker goroutines materialize and run
// each task independently.
package job

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/cleanerdoc"
	"github.com/edgecomet/urlcleaner/internal/jobmetrics"
	"github.com/edgecomet/urlcleaner/internal/params"
	"github.com/edgecomet/urlcleaner/internal/taskstate"
	"github.com/edgecomet/urlcleaner/pkg/urlmodel"
)

// Config groups everything a job's tasks share: the job context, the
// compiled cleaner, the cache store, the unthreader, and observability.
type Config struct {
	Context    *taskstate.JobContext
	Cleaner    *cleanerdoc.Cleaner
	Cache      cache.Store
	Unthreader *cleanerdoc.Unthreader
	Logger     *zap.Logger
	Metrics    *jobmetrics.JobMetrics
	// ParamsDiffs are applied, in order, to a clone of the cleaner's
	// params; the cleaner's own params are never mutated.
	ParamsDiffs []params.ParamsDiff
}

// Job is a Config plus a source of lazy task configs. Iteration yields
// LazyTasks; materialization and execution happen on whichever goroutine
// pulls them.
type Job struct {
	ID     string
	cfg    *Config
	source ConfigSource
	params *params.Params
	logger *zap.Logger
	nextID uint64
	mu     sync.Mutex
}

// New builds a Job over a config source. The cleaner's params are shared
// untouched unless ParamsDiffs are present, in which case a per-job clone
// is derived copy-on-write style.
func New(cfg *Config, source ConfigSource) (*Job, error) {
	if cfg.Cleaner == nil {
		return nil, fmt.Errorf("job: cleaner is required")
	}
	if cfg.Unthreader == nil {
		cfg.Unthreader = cleanerdoc.NewUnthreader(false)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	effective := cfg.Cleaner.Params
	if len(cfg.ParamsDiffs) > 0 {
		effective = effective.Clone()
		params.ApplyMultiple(effective, cfg.ParamsDiffs...)
	}
	id := uuid.NewString()
	return &Job{
		ID:     id,
		cfg:    cfg,
		source: source,
		params: effective,
		logger: logger.With(zap.String("job_id", id)),
	}, nil
}

// Next yields the next lazy task, or (nil, nil) when the source is
// exhausted. Safe for concurrent pulls.
func (j *Job) Next() (*LazyTask, error) {
	j.mu.Lock()
	cfg, err := j.source.Next()
	j.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}
	// Task IDs start at 1: the unthreader treats 0 as "no holder".
	id := atomic.AddUint64(&j.nextID, 1)
	return &LazyTask{ID: id, Config: *cfg, job: j}, nil
}

// Result is one task's outcome: the cleaned URL, or the error and the raw
// input that produced it. One failed task never affects another.
type Result struct {
	TaskID uint64
	Input  string
	Url    *urlmodel.BetterUrl
	Err    error
}

// Run fans the job out over the given number of worker goroutines and
// streams results. The result channel closes once the source is exhausted
// and every in-flight task has finished. Result order is unspecified
// across tasks.
func (j *Job) Run(workers int) <-chan Result {
	if workers < 1 {
		workers = 1
	}
	out := make(chan Result, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			j.work(out)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (j *Job) work(out chan<- Result) {
	for {
		lt, err := j.Next()
		if err != nil {
			// A source error is terminal for this worker: a broken reader
			// keeps returning the same error on every pull.
			out <- Result{Err: err}
			j.cfg.Metrics.RecordTask("source_error", 0)
			return
		}
		if lt == nil {
			return
		}
		started := time.Now()
		task, err := lt.Make()
		if err != nil {
			j.logger.Warn("task materialization failed",
				zap.Uint64("task_id", lt.ID), zap.Error(err))
			out <- Result{TaskID: lt.ID, Input: lt.Config.Raw, Err: err}
			j.cfg.Metrics.RecordTask("parse_error", time.Since(started))
			continue
		}
		input := task.Config.Url.String()
		cleaned, err := task.Do()
		elapsed := time.Since(started)
		if err != nil {
			j.logger.Warn("task failed",
				zap.Uint64("task_id", task.ID), zap.String("url", input), zap.Error(err))
			out <- Result{TaskID: task.ID, Input: input, Err: err}
			j.cfg.Metrics.RecordTask("clean_error", elapsed)
			continue
		}
		j.logger.Debug("task done",
			zap.Uint64("task_id", task.ID),
			zap.String("url", input),
			zap.String("cleaned", cleaned.String()),
			zap.Duration("duration", elapsed))
		out <- Result{TaskID: task.ID, Input: input, Url: cleaned}
		j.cfg.Metrics.RecordTask("ok", elapsed)
	}
}
