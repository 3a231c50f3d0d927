package notify

import (
	"context"
	"errors"
	"sync"

	"food-order-service/internal/broker"
	"food-order-service/internal/models"
	"food-order-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("notification queue full")
	ErrQueueClosed = errors.New("notification queue closed")
)

// KafkaQueue writes jobs to the notification topic; worker.NotificationWorker
// consumes them.
type KafkaQueue struct {
	writer broker.EventWriter
}

func NewKafkaQueue(writer broker.EventWriter) *KafkaQueue {
	return &KafkaQueue{writer: writer}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	return q.writer.PublishEvent(ctx, job.EventID, job)
}

// LocalQueue runs jobs on in-process workers. Enqueue never blocks: when the
// buffer is full the job is dropped.
type LocalQueue struct {
	jobs    chan *models.NotificationJob
	handler func(context.Context, *models.NotificationJob) error
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewLocalQueue(handler func(context.Context, *models.NotificationJob) error, workers, buffer int) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	return &LocalQueue{
		jobs:    make(chan *models.NotificationJob, buffer),
		handler: handler,
		workers: workers,
	}
}

func (q *LocalQueue) Enqueue(_ context.Context, job *models.NotificationJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. Jobs run on ctx, not on the request context
// that enqueued them.
func (q *LocalQueue) Start(ctx context.Context) {
	logger := util.GetLogger()
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				if err := q.handler(ctx, job); err != nil {
					logger.Warn("Notification job failed",
						zap.String("event_type", job.EventType),
						zap.String("event_id", job.EventID),
						zap.Error(err))
				}
			}
		}()
	}
}

// Stop drains queued jobs and waits for the workers.
func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
