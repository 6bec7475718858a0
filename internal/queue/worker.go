package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/metrics"
	"github.com/feedback_management/internal/models"
)

// Handler processes one job. Returning an error wrapped with Permanent stops retries.
type Handler func(ctx context.Context, job *models.Job) error

// Worker pulls jobs from a Queue and dispatches them by type.
type Worker struct {
	queue        Queue
	concurrency  int
	pollInterval time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewWorker creates a worker running concurrency polling loops.
func NewWorker(q Queue, concurrency int, pollInterval time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		queue:        q,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		handlers:     make(map[string]Handler),
	}
}

// Register binds a handler to a job type, replacing any previous one.
func (w *Worker) Register(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

func (w *Worker) handler(jobType string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[jobType]
	return h, ok
}

// Run polls until ctx is cancelled. Jobs already started run to completion.
func (w *Worker) Run(ctx context.Context) error {
	log.WithFields(log.Fields{"concurrency": w.concurrency, "pollInterval": w.pollInterval}).Info("worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()

	log.Info("worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}
		// 已取出的任务不随 ctx 取消而中断
		processed, err := w.ProcessNext(context.WithoutCancel(ctx))
		if err != nil {
			log.WithError(err).WithField("slot", slot).Error("worker loop error")
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessNext handles at most one job. It reports whether a job was taken.
// The returned error concerns the queue itself; handler errors are recorded on the job.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	logger := log.WithFields(log.Fields{
		"jobID":   job.ID,
		"jobType": job.Type,
		"attempt": job.Attempts,
	})

	start := time.Now()
	handlerErr := w.dispatch(ctx, job)
	duration := time.Since(start)

	if handlerErr == nil {
		metrics.ObserveJob(job.Type, metrics.OutcomeSuccess, duration)
		logger.WithField("duration", duration).Debug("job completed")
		return true, w.queue.Complete(ctx, job)
	}

	if err := w.queue.Fail(ctx, job, handlerErr); err != nil {
		logger.WithError(err).Error("failed to record job failure")
		return true, err
	}
	if job.Status == models.JobStatusFailed {
		metrics.ObserveJob(job.Type, metrics.OutcomeError, duration)
		logger.WithError(handlerErr).Error("job failed permanently")
	} else {
		metrics.ObserveJob(job.Type, metrics.OutcomeRetry, duration)
		logger.WithError(handlerErr).WithField("retryAt", job.AvailableAt).Warn("job failed, will retry")
	}
	return true, nil
}

func (w *Worker) dispatch(ctx context.Context, job *models.Job) (err error) {
	h, ok := w.handler(job.Type)
	if !ok {
		return Permanent(fmt.Errorf("no handler registered for job type %q", job.Type))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}
