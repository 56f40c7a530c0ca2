package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskpilot-api/domain"
)

// ErrTaskNotFound is returned for lookups of tasks that do not exist or that
// belong to another user.
var ErrTaskNotFound = taskNotFoundError{}

type taskNotFoundError struct{}

func (taskNotFoundError) Error() string { return "task not found" }
func (taskNotFoundError) TaskNotFound() {}

type invalidTokenError struct {
	token string
}

func (e invalidTokenError) Error() string {
	return fmt.Sprintf("invalid continuation token %q", e.token)
}
func (invalidTokenError) InvalidContinuationToken() {}

// Storage provides access to the underlying persistence mechanisms: the task
// table (partitioned by user) and the export job queue.
type Storage struct {
	taskTable   *aztables.Client
	exportQueue *azqueue.QueueClient
	pageSize    int
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, exportQueue string, pageSize int) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	tt := svc.NewClient(tasksTable)

	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, exportQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}

	if pageSize <= 0 {
		pageSize = 30
	}
	return &Storage{taskTable: tt, exportQueue: eq, pageSize: pageSize}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Category    string `json:"Category"`
	Priority    string `json:"Priority"`
	Completed   bool   `json:"Completed"`
	DueDate     string `json:"DueDate"`
	CompletedAt string `json:"CompletedAt"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func entityFromTask(t domain.Task) taskEntity {
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.UserID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Priority:    string(t.Priority),
		Completed:   t.Completed,
		DueDate:     timeField(t.DueDate),
		CompletedAt: timeField(t.CompletedAt),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func taskFromEntity(ent taskEntity) domain.Task {
	return domain.Task{
		ID:          ent.RowKey,
		UserID:      ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Category:    ent.Category,
		Priority:    domain.Priority(ent.Priority),
		Completed:   ent.Completed,
		DueDate:     fieldTime(ent.DueDate),
		CompletedAt: fieldTime(ent.CompletedAt),
		CreatedAt:   fieldTimeValue(ent.CreatedAt),
		UpdatedAt:   fieldTimeValue(ent.UpdatedAt),
	}
}

func timeField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func fieldTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func fieldTimeValue(s string) time.Time {
	if t := fieldTime(s); t != nil {
		return *t
	}
	return time.Time{}
}

// ListTasks retrieves one page of the user's tasks matching the filter.
// The returned token resumes listing after the last task of the page.
func (s *Storage) ListTasks(ctx context.Context, userID string, filter domain.TaskFilter, continuationToken string, limit int) ([]domain.Task, string, error) {
	if limit <= 0 {
		limit = s.pageSize
	}

	afterRowKey, err := decodeContinuationToken(continuationToken)
	if err != nil {
		return nil, "", err
	}

	filterStr := buildListFilter(userID, filter, afterRowKey)
	top := int32(limit + 1)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filterStr, Top: &top})

	tasks := []domain.Task{}
	for pager.More() && len(tasks) <= limit {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, "", err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, "", err
			}
			tasks = append(tasks, taskFromEntity(ent))
		}
	}

	nextToken := ""
	if len(tasks) > limit {
		tasks = tasks[:limit]
		nextToken = encodeContinuationToken(tasks[limit-1].ID)
	}
	return tasks, nextToken, nil
}

// FetchAllTasks retrieves every task for the provided user.
func (s *Storage) FetchAllTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeQuotes(userID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, taskFromEntity(ent))
		}
	}
	return tasks, nil
}

// GetTask retrieves one task scoped by owner.
func (s *Storage) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, ErrTaskNotFound
		}
		return domain.Task{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return taskFromEntity(ent), nil
}

// InsertTask persists a new task.
func (s *Storage) InsertTask(ctx context.Context, task domain.Task) error {
	data, err := json.Marshal(entityFromTask(task))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// UpdateTask replaces the stored task.
func (s *Storage) UpdateTask(ctx context.Context, task domain.Task) error {
	data, err := json.Marshal(entityFromTask(task))
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// DeleteTask removes one task scoped by owner.
func (s *Storage) DeleteTask(ctx context.Context, userID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, userID, taskID, nil)
	if err != nil && isNotFound(err) {
		return ErrTaskNotFound
	}
	return err
}

// EnqueueExport sends an export job to the export queue.
func (s *Storage) EnqueueExport(ctx context.Context, job domain.ExportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.exportQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func buildListFilter(userID string, filter domain.TaskFilter, afterRowKey string) string {
	var b strings.Builder
	b.WriteString("PartitionKey eq '")
	b.WriteString(escapeQuotes(userID))
	b.WriteString("'")
	if afterRowKey != "" {
		b.WriteString(" and RowKey gt '")
		b.WriteString(escapeQuotes(afterRowKey))
		b.WriteString("'")
	}
	switch filter.Status {
	case "completed":
		b.WriteString(" and Completed eq true")
	case "pending":
		b.WriteString(" and Completed eq false")
	}
	if filter.Category != "" {
		b.WriteString(" and Category eq '")
		b.WriteString(escapeQuotes(filter.Category))
		b.WriteString("'")
	}
	return b.String()
}

func encodeContinuationToken(rowKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rowKey))
}

func decodeContinuationToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) == 0 {
		return "", invalidTokenError{token: token}
	}
	return string(raw), nil
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
