package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskKind discriminates the payload variants.
type TaskKind string

const (
	// KindPhoto is a full photo-processing task.
	KindPhoto TaskKind = "photo"
	// KindMotionVideo pairs a motion-photo companion video with its still.
	KindMotionVideo TaskKind = "motion-video"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusInProgress means exactly one worker holds the task.
	StatusInProgress Status = "in-progress"
	// StatusCompleted is the successful terminal state.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal state after the attempt ceiling is hit
	// or a non-retryable failure occurs.
	StatusFailed Status = "failed"
)

// Payload identifies the object a task processes. Kind selects the
// pipeline variant; StorageKey names the object in the store.
type Payload struct {
	Kind       TaskKind `json:"kind"`
	StorageKey string   `json:"storageKey"`
}

// Validate rejects unknown kinds and empty storage keys.
func (p Payload) Validate() error {
	switch p.Kind {
	case KindPhoto, KindMotionVideo:
	default:
		return fmt.Errorf("unrecognized task kind %q", p.Kind)
	}
	if p.StorageKey == "" {
		return fmt.Errorf("storage key must not be empty")
	}
	return nil
}

// Task is one unit of background work.
type Task struct {
	ID           int64
	Payload      Payload
	Priority     int
	Attempts     int
	MaxAttempts  int
	Status       Status
	Stage        string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  time.Time // zero until the task reaches a terminal state
}

// EnqueueOptions tune a task at enqueue time.
type EnqueueOptions struct {
	// Priority 0-9; lower numbers are serviced first. Defaults to 0.
	Priority int
	// MaxAttempts 1-5 before permanent failure. Defaults to 3.
	MaxAttempts int
}

const (
	// DefaultPriority is the priority assigned when none is given.
	DefaultPriority = 0
	// DefaultMaxAttempts is the attempt ceiling when none is given.
	DefaultMaxAttempts = 3
	// MaxPriority is the lowest-urgency priority band.
	MaxPriority = 9
	// MaxAttemptsCeiling is the largest permitted attempt ceiling.
	MaxAttemptsCeiling = 5
)

func (o EnqueueOptions) normalize() (EnqueueOptions, error) {
	if o.Priority < 0 || o.Priority > MaxPriority {
		return o, fmt.Errorf("priority %d out of range 0-%d", o.Priority, MaxPriority)
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxAttempts < 1 || o.MaxAttempts > MaxAttemptsCeiling {
		return o, fmt.Errorf("maxAttempts %d out of range 1-%d", o.MaxAttempts, MaxAttemptsCeiling)
	}
	return o, nil
}

func marshalPayload(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}

func unmarshalPayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}
