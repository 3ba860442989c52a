package domain

import (
	"context"
	"time"
)

// DispatchCause описывает источник задачи на публикацию.
type DispatchCause string

const (
	// DispatchCauseImmediate — пост создан без времени публикации или со временем в прошлом.
	DispatchCauseImmediate DispatchCause = "immediate"
	// DispatchCauseManual — публикация запрошена повторно оператором.
	DispatchCauseManual DispatchCause = "manual"
)

// DispatchJob — сигнал диспетчеру попытаться опубликовать пост немедленно.
// Сама задача не несёт состояния поста: диспетчер перечитывает его из хранилища.
type DispatchJob struct {
	PostID      string        `json:"post_id"`
	RequestedAt time.Time     `json:"requested_at"`
	Cause       DispatchCause `json:"cause"`
}

// DispatchQueue передаёт сигналы о немедленной публикации между процессами.
type DispatchQueue interface {
	Enqueue(ctx context.Context, job DispatchJob) error
	Receive(ctx context.Context) (DispatchJob, DispatchAckFunc, error)
}

// DispatchAckFunc подтверждает обработку задачи или возвращает её в очередь.
type DispatchAckFunc func(success bool) error
