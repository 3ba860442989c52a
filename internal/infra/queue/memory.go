package queue

import (
	"context"

	"social-orchestrator/internal/domain"
)

// MemoryDispatchQueue — очередь внутри процесса для режима без брокера и тестов.
type MemoryDispatchQueue struct {
	jobs chan domain.DispatchJob
}

// NewMemoryDispatchQueue создаёт буферизованную очередь.
func NewMemoryDispatchQueue(size int) *MemoryDispatchQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryDispatchQueue{jobs: make(chan domain.DispatchJob, size)}
}

// Enqueue кладёт задачу в буфер, ожидая свободное место.
func (q *MemoryDispatchQueue) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive возвращает следующую задачу. Nack кладёт задачу обратно.
func (q *MemoryDispatchQueue) Receive(ctx context.Context) (domain.DispatchJob, domain.DispatchAckFunc, error) {
	select {
	case job := <-q.jobs:
		return job, func(success bool) error {
			if success {
				return nil
			}
			return q.Enqueue(context.Background(), job)
		}, nil
	case <-ctx.Done():
		return domain.DispatchJob{}, nil, ctx.Err()
	}
}
