package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskpilot-api/domain"
)

type stubBackend struct {
	fetchAllFn func(ctx context.Context, userID string) ([]domain.Task, error)
	insertFn   func(ctx context.Context, task domain.Task) error
	updateFn   func(ctx context.Context, task domain.Task) error
	deleteFn   func(ctx context.Context, userID, taskID string) error
}

func (s *stubBackend) ListTasks(ctx context.Context, userID string, filter domain.TaskFilter, token string, limit int) ([]domain.Task, string, error) {
	return nil, "", errors.New("unexpected ListTasks call")
}

func (s *stubBackend) FetchAllTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if s.fetchAllFn == nil {
		return nil, errors.New("unexpected FetchAllTasks call")
	}
	return s.fetchAllFn(ctx, userID)
}

func (s *stubBackend) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected GetTask call")
}

func (s *stubBackend) InsertTask(ctx context.Context, task domain.Task) error {
	if s.insertFn == nil {
		return errors.New("unexpected InsertTask call")
	}
	return s.insertFn(ctx, task)
}

func (s *stubBackend) UpdateTask(ctx context.Context, task domain.Task) error {
	if s.updateFn == nil {
		return errors.New("unexpected UpdateTask call")
	}
	return s.updateFn(ctx, task)
}

func (s *stubBackend) DeleteTask(ctx context.Context, userID, taskID string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteFn(ctx, userID, taskID)
}

func (s *stubBackend) EnqueueExport(ctx context.Context, job domain.ExportJob) error {
	return errors.New("unexpected EnqueueExport call")
}

func newTestCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, time.Minute), mr
}

func TestCacheFetchAllTasksMissThenHit(t *testing.T) {
	ctx := context.Background()
	expected := []domain.Task{{ID: "t1", Title: "Write code", Category: "work", Priority: domain.PriorityLow}}

	var calls int
	cache, _ := newTestCache(t, &stubBackend{
		fetchAllFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			calls++
			return expected, nil
		},
	})

	for i := 0; i < 2; i++ {
		tasks, err := cache.FetchAllTasks(ctx, "user-1")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(tasks) != 1 || tasks[0].ID != "t1" {
			t.Fatalf("fetch %d: unexpected tasks %#v", i, tasks)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one backend call, got %d", calls)
	}
}

func TestCacheMutationsEvict(t *testing.T) {
	ctx := context.Background()

	var fetches int
	cache, _ := newTestCache(t, &stubBackend{
		fetchAllFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			fetches++
			return []domain.Task{}, nil
		},
		insertFn: func(ctx context.Context, task domain.Task) error { return nil },
		updateFn: func(ctx context.Context, task domain.Task) error { return nil },
		deleteFn: func(ctx context.Context, userID, taskID string) error { return nil },
	})

	task := domain.Task{ID: "t1", UserID: "user-1"}

	if _, err := cache.FetchAllTasks(ctx, "user-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := cache.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := cache.FetchAllTasks(ctx, "user-1"); err != nil {
		t.Fatalf("refetch after insert: %v", err)
	}
	if err := cache.UpdateTask(ctx, task); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := cache.FetchAllTasks(ctx, "user-1"); err != nil {
		t.Fatalf("refetch after update: %v", err)
	}
	if err := cache.DeleteTask(ctx, "user-1", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.FetchAllTasks(ctx, "user-1"); err != nil {
		t.Fatalf("refetch after delete: %v", err)
	}

	if fetches != 4 {
		t.Fatalf("expected every mutation to evict (4 backend fetches), got %d", fetches)
	}
}

func TestCacheMutationFailureDoesNotEvict(t *testing.T) {
	ctx := context.Background()

	var fetches int
	cache, _ := newTestCache(t, &stubBackend{
		fetchAllFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			fetches++
			return []domain.Task{}, nil
		},
		insertFn: func(ctx context.Context, task domain.Task) error { return errors.New("insert failed") },
	})

	if _, err := cache.FetchAllTasks(ctx, "user-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := cache.InsertTask(ctx, domain.Task{ID: "t1", UserID: "user-1"}); err == nil {
		t.Fatal("expected insert error")
	}
	if _, err := cache.FetchAllTasks(ctx, "user-1"); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("expected cache entry to survive failed mutation, got %d fetches", fetches)
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	ctx := context.Background()

	var calls int
	cache, mr := newTestCache(t, &stubBackend{
		fetchAllFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "t1"}}, nil
		},
	})

	if err := mr.Set(tasksCacheKey("user-1"), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	tasks, err := cache.FetchAllTasks(ctx, "user-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tasks) != 1 || calls != 1 {
		t.Fatalf("expected fallback to backend, got tasks=%#v calls=%d", tasks, calls)
	}
	if mr.Exists(tasksCacheKey("user-1")) {
		got, _ := mr.Get(tasksCacheKey("user-1"))
		if got == "{not json" {
			t.Fatal("expected corrupt entry to be dropped")
		}
	}
}

func TestCacheNilRedisPassesThrough(t *testing.T) {
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubBackend{
		fetchAllFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			calls++
			return []domain.Task{}, nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.FetchAllTasks(ctx, "user-1"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected no caching without redis, got %d calls", calls)
	}
}
