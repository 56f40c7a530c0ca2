package storage

import (
	"testing"
	"time"

	"taskpilot-api/domain"
)

func TestEntityRoundTrip(t *testing.T) {
	due := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	created := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	task := domain.Task{
		ID:          "task-1",
		UserID:      "user-1",
		Title:       "Write report",
		Description: "quarterly numbers",
		Category:    "work",
		Priority:    domain.PriorityHigh,
		Completed:   false,
		DueDate:     &due,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	got := taskFromEntity(entityFromTask(task))
	if got.ID != task.ID || got.UserID != task.UserID {
		t.Fatalf("keys not preserved: %#v", got)
	}
	if got.Title != task.Title || got.Category != task.Category || got.Priority != task.Priority {
		t.Fatalf("fields not preserved: %#v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due date not preserved: %#v", got.DueDate)
	}
	if got.CompletedAt != nil {
		t.Fatalf("expected nil completedAt, got %#v", got.CompletedAt)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("createdAt not preserved: %v", got.CreatedAt)
	}
}

func TestBuildListFilter(t *testing.T) {
	tests := []struct {
		name        string
		userID      string
		filter      domain.TaskFilter
		afterRowKey string
		want        string
	}{
		{
			name:   "partition_only",
			userID: "u1",
			want:   "PartitionKey eq 'u1'",
		},
		{
			name:        "with_continuation",
			userID:      "u1",
			afterRowKey: "t9",
			want:        "PartitionKey eq 'u1' and RowKey gt 't9'",
		},
		{
			name:   "pending_in_category",
			userID: "u1",
			filter: domain.TaskFilter{Status: "pending", Category: "work"},
			want:   "PartitionKey eq 'u1' and Completed eq false and Category eq 'work'",
		},
		{
			name:   "completed",
			userID: "u1",
			filter: domain.TaskFilter{Status: "completed"},
			want:   "PartitionKey eq 'u1' and Completed eq true",
		},
		{
			name:   "quotes_escaped",
			userID: "o'brien",
			filter: domain.TaskFilter{Category: "dad's list"},
			want:   "PartitionKey eq 'o''brien' and Category eq 'dad''s list'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildListFilter(tt.userID, tt.filter, tt.afterRowKey)
			if got != tt.want {
				t.Fatalf("buildListFilter = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContinuationTokenRoundTrip(t *testing.T) {
	token := encodeContinuationToken("row-42")
	got, err := decodeContinuationToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "row-42" {
		t.Fatalf("decoded %q, want row-42", got)
	}
}

func TestDecodeContinuationTokenEmpty(t *testing.T) {
	got, err := decodeContinuationToken("")
	if err != nil || got != "" {
		t.Fatalf("expected empty token to decode to empty row key, got %q, %v", got, err)
	}
}

func TestDecodeContinuationTokenInvalid(t *testing.T) {
	_, err := decodeContinuationToken("!!not-base64!!")
	if err == nil {
		t.Fatal("expected error for malformed token")
	}
	if _, ok := err.(interface{ InvalidContinuationToken() }); !ok {
		t.Fatalf("expected invalid-token marker, got %T", err)
	}
}
