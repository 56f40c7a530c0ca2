package domain

import "time"

// Priority ranks a task's urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultCategory and DefaultPriority are applied whenever classification
// cannot produce a value for the corresponding field.
const (
	DefaultCategory          = "uncategorized"
	DefaultPriority Priority = PriorityMedium
)

// Categories is the vocabulary the classifier is prompted with. The gateway
// accepts responses outside it verbatim; only request validation enforces
// bounds on user-supplied values.
var Categories = []string{
	"work", "personal", "shopping", "health", "learning",
	"finance", "home", "social", "travel", "uncategorized",
}

// ValidPriority reports whether p is one of the known priority values.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a single user-owned unit of work.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    Priority   `json:"priority"`
	Category    string     `json:"category"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UserID      string     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ClassificationResult is the classifier's guess for a task's derived fields.
// It is consumed by the field resolver and never persisted.
type ClassificationResult struct {
	Category         string   `json:"category"`
	Priority         Priority `json:"priority"`
	SuggestedDueDate string   `json:"suggestedDueDate,omitempty"`
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status   string // "", "completed" or "pending"
	Category string
}

// ExportJob describes a queued request to export a user's tasks.
type ExportJob struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	RequestedAt time.Time `json:"requestedAt"`
}
