package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	redisc "github.com/techpress/core/internal/pkg/redis"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is a unit of background work stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	GroupKey  string          `json:"group_key,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	keyPrefix   = "tp:task:"
	keyIndex    = "tp:tasks:index"  // sorted set: score=created_at, member=task_id
	keyDedupSet = "tp:tasks:dedup:" // hash: dedup_key -> task_id
	taskTTL     = 7 * 24 * time.Hour
)

// Service manages the Redis-backed task queue.
type Service struct {
	rc *redisc.Client
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue creates a new task. When dedupKey matches a live task of the same
// type, the existing task is returned instead of creating a duplicate.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey, groupKey string) (*Task, error) {
	if dedupKey != "" {
		existing, err := s.rc.Raw().HGet(ctx, keyDedupSet+taskType, dedupKey).Result()
		if err == nil && existing != "" {
			if task, err := s.GetByID(ctx, existing); err == nil && task != nil {
				return task, nil
			}
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		DedupKey:  dedupKey,
		GroupKey:  groupKey,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	if dedupKey != "" {
		pipe.HSet(ctx, keyDedupSet+taskType, dedupKey, task.ID)
		pipe.Expire(ctx, keyDedupSet+taskType, taskTTL)
	}
	_, err = pipe.Exec(ctx)
	return task, err
}

// GetByID retrieves a task by its ID. Returns (nil, nil) when absent.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	return &task, json.Unmarshal(data, &task)
}

// UpdateStatus sets a task's status and optional result/error. Terminal
// statuses release the dedup slot so a later request can enqueue anew.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil || task == nil {
		return fmt.Errorf("task not found")
	}

	task.Status = status
	task.UpdatedAt = time.Now()
	task.Error = errMsg
	if result != nil {
		task.Result, _ = json.Marshal(result)
	}

	if (status == TaskCompleted || status == TaskFailed || status == TaskCancelled) && task.DedupKey != "" {
		s.rc.Raw().HDel(ctx, keyDedupSet+task.Type, task.DedupKey)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.rc.Raw().Set(ctx, s.taskKey(id), data, taskTTL).Err()
}

// Cancel marks a task as cancelled if it is still pending.
func (s *Service) Cancel(ctx context.Context, id string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil || task == nil {
		return fmt.Errorf("task not found")
	}
	if task.Status != TaskPending {
		return fmt.Errorf("can only cancel pending tasks")
	}
	return s.UpdateStatus(ctx, id, TaskCancelled, nil, "cancelled by user")
}
