package api

import (
	"context"

	"taskpilot-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	ListTasks(ctx context.Context, userID string, filter domain.TaskFilter, continuationToken string, limit int) ([]domain.Task, string, error)
	FetchAllTasks(ctx context.Context, userID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	EnqueueExport(ctx context.Context, job domain.ExportJob) error
}

// InvalidContinuationTokenError is returned when a supplied pagination token is malformed or expired.
type InvalidContinuationTokenError interface {
	error
	InvalidContinuationToken()
}

// TaskNotFoundError is returned for lookups of tasks that do not exist or belong to another user.
type TaskNotFoundError interface {
	error
	TaskNotFound()
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Classifier guesses category and priority for a task. Implementations never
// fail: a classification that cannot be performed yields defaults.
type Classifier interface {
	Classify(ctx context.Context, title, description string) domain.ClassificationResult
}

// Narrator produces a short prose summary of a task set. Implementations
// never fail and never call out for an empty set.
type Narrator interface {
	Summarize(ctx context.Context, tasks []domain.Task) string
}

// Deduper prevents reprocessing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when persistence fails.
	Remove(ctx context.Context, userID, key string) error
}
