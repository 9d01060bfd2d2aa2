package thumbnails

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("thumbnail queue is closed")

// Job asks for the thumbnail of one video to be processed.
type Job struct {
	ID         string    `json:"id"`
	VideoID    int64     `json:"videoId"`
	SiteID     int64     `json:"siteId"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Delivery is a job handed to a consumer. Exactly one of Ack or Nack must
// be called. Nack with requeue puts the job back with Attempt incremented.
type Delivery struct {
	Job  Job
	ack  func() error
	nack func(requeue bool) error
}

func (d Delivery) Ack() error {
	return d.ack()
}

func (d Delivery) Nack(requeue bool) error {
	return d.nack(requeue)
}

// Queue carries thumbnail jobs from schedulers to workers.
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// MemoryQueue is an in-process Queue. Jobs do not survive a restart.
// Publish blocks while capacity fresh jobs are waiting. Requeued jobs go on
// a separate unbounded list that consumers drain first, so a Nack never
// waits on the consumer it is feeding.
type MemoryQueue struct {
	jobs      chan Job
	mu        sync.Mutex
	retries   []Job
	retryWake chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{
		jobs:      make(chan Job, capacity),
		retryWake: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, job Job) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requeue puts job on the retry list without blocking.
func (q *MemoryQueue) requeue(job Job) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	q.mu.Lock()
	q.retries = append(q.retries, job)
	q.mu.Unlock()

	select {
	case q.retryWake <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) nextRetry() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.retries) == 0 {
		return Job{}, false
	}
	job := q.retries[0]
	q.retries = q.retries[1:]
	return job, true
}

func (q *MemoryQueue) delivery(job Job) Delivery {
	return Delivery{
		Job: job,
		ack: func() error { return nil },
		nack: func(requeue bool) error {
			if !requeue {
				return nil
			}
			job.Attempt++
			return q.requeue(job)
		},
	}
}

func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			job, ok := q.nextRetry()
			if !ok {
				select {
				case job = <-q.jobs:
				case <-q.retryWake:
					continue
				case <-ctx.Done():
					return
				case <-q.closed:
					return
				}
			}

			select {
			case out <- q.delivery(job):
			case <-ctx.Done():
				q.putBack(job)
				return
			case <-q.closed:
				return
			}
		}
	}()

	return out, nil
}

// putBack returns a job taken off the queue but never delivered. It goes to
// the front of the retry list with its attempt count unchanged.
func (q *MemoryQueue) putBack(job Job) {
	q.mu.Lock()
	q.retries = append([]Job{job}, q.retries...)
	q.mu.Unlock()
}

// Len reports how many jobs are waiting.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) + len(q.retries)
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
