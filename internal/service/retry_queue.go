package service

import (
	"sync"
	"time"

	"depositgateway/internal/core/ports"

	"github.com/google/uuid"
)

// Processor is invoked by RetryQueue when a scheduled retry comes due.
type Processor func(transactionID uuid.UUID, attempt int)

// inProcessRetryQueue implements ports.RetryQueue (C5) with
// time.AfterFunc. It is not durable: pending retries are lost on process
// restart, and the reconciliation sweep is the authoritative backstop that
// catches anything a dropped retry missed.
type inProcessRetryQueue struct {
	baseDelayMs int
	maxDelayMs  int
	maxRetries  int
	process     Processor

	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	stopped bool
}

// NewRetryQueue creates a RetryQueue with the given backoff parameters.
// delay(attempt) = min(maxDelayMs, baseDelayMs * 2^(attempt-1)).
func NewRetryQueue(baseDelayMs, maxDelayMs, maxRetries int, process Processor) ports.RetryQueue {
	return &inProcessRetryQueue{
		baseDelayMs: baseDelayMs,
		maxDelayMs:  maxDelayMs,
		maxRetries:  maxRetries,
		process:     process,
		timers:      make(map[uuid.UUID]*time.Timer),
	}
}

// computeDelay returns the backoff delay in milliseconds for the given
// attempt number (1-indexed).
func computeDelay(attempt, baseDelayMs, maxDelayMs int) int {
	delay := baseDelayMs
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelayMs {
			return maxDelayMs
		}
	}
	if delay > maxDelayMs {
		return maxDelayMs
	}
	return delay
}

// Enqueue schedules transactionID to be retried at the given attempt
// number's backoff delay. Attempts beyond maxRetries are dropped silently;
// the caller is expected to have already logged retry exhaustion.
func (q *inProcessRetryQueue) Enqueue(transactionID uuid.UUID, attempt int) {
	if attempt > q.maxRetries {
		return
	}

	delay := time.Duration(computeDelay(attempt, q.baseDelayMs, q.maxDelayMs)) * time.Millisecond

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	if existing, ok := q.timers[transactionID]; ok {
		existing.Stop()
	}
	q.timers[transactionID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, transactionID)
		stopped := q.stopped
		q.mu.Unlock()
		if stopped {
			return
		}
		q.process(transactionID, attempt)
	})
}

// Stop cancels every pending timer. Safe to call more than once.
func (q *inProcessRetryQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
}
