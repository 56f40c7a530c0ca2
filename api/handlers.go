package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskpilot-api/domain"
)

const taskBodyMaxSize = 64 * 1024 // 64 KiB

const (
	maxTitleLen       = 100
	maxDescriptionLen = 1000
	maxCategoryLen    = 50
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, classifier Classifier, narrator Narrator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/tasks", listTasks(store, auth))
	e.POST("/api/tasks", createTask(store, auth, classifier, deduper, logger))
	e.GET("/api/tasks/:id", getTask(store, auth))
	e.PUT("/api/tasks/:id", updateTask(store, auth, classifier))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth))
	e.GET("/api/stats", getStats(store, auth, narrator, logger))
	e.GET("/api/profile", getProfile(store, auth))
	e.POST("/api/export", postExport(store, auth, logger))
	e.GET("/healthz", healthz())

	initExportSender(store, logger)
}

type tasksResponse struct {
	Tasks         []domain.Task `json:"tasks"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

type profileResponse struct {
	UserID     string `json:"userId"`
	TotalTasks int    `json:"totalTasks"`
}

type exportResponse struct {
	JobID string `json:"jobId"`
}

// taskPayload is the create/update request body. Pointer fields distinguish
// absent from zero-valued.
type taskPayload struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	DueDate     *time.Time       `json:"dueDate"`
	Priority    *domain.Priority `json:"priority"`
	Category    *string          `json:"category"`
	Completed   *bool            `json:"completed"`
}

func decodeTaskPayload(c echo.Context) (taskPayload, error) {
	lr := io.LimitReader(c.Request().Body, taskBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()

	var p taskPayload
	if err := dec.Decode(&p); err != nil {
		return taskPayload{}, err
	}
	return p, nil
}

// validateTaskPayload returns a user-facing message for the first violated
// constraint, or "" when the payload is acceptable.
func validateTaskPayload(p taskPayload, now time.Time, requireTitle bool) string {
	if p.Title == nil {
		if requireTitle {
			return "title is required"
		}
	} else {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return "title is required"
		}
		if len(*p.Title) > maxTitleLen {
			return "title must be at most 100 characters"
		}
	}
	if p.Description != nil && len(*p.Description) > maxDescriptionLen {
		return "description must be at most 1000 characters"
	}
	if p.Category != nil {
		if *p.Category == "" {
			return "category must not be empty"
		}
		if len(*p.Category) > maxCategoryLen {
			return "category must be at most 50 characters"
		}
	}
	if p.Priority != nil && !domain.ValidPriority(*p.Priority) {
		return "priority must be low, medium or high"
	}
	if p.DueDate != nil && !p.DueDate.After(now) {
		return "dueDate must be in the future"
	}
	return ""
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func listTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		pageToken := c.QueryParam("pageToken")
		pageSizeParam := strings.TrimSpace(c.QueryParam("pageSize"))
		pageSize := 0
		if pageSizeParam != "" {
			var parseErr error
			pageSize, parseErr = strconv.Atoi(pageSizeParam)
			if parseErr != nil || pageSize <= 0 {
				return c.String(http.StatusBadRequest, "invalid page size")
			}
		}

		filter := domain.TaskFilter{
			Status:   c.QueryParam("status"),
			Category: c.QueryParam("category"),
		}
		if filter.Status != "" && filter.Status != "completed" && filter.Status != "pending" {
			return c.String(http.StatusBadRequest, "invalid status filter")
		}

		tasks, nextToken, err := store.ListTasks(ctx, userID, filter, pageToken, pageSize)
		if err != nil {
			var invalidTokenErr InvalidContinuationTokenError
			if errors.As(err, &invalidTokenErr) {
				return c.String(http.StatusBadRequest, "invalid page token")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		resp := tasksResponse{Tasks: tasks}
		if nextToken != "" {
			resp.NextPageToken = nextToken
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func createTask(store Storage, auth Authenticator, classifier Classifier, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		p, err := decodeTaskPayload(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		now := time.Now().UTC()
		if msg := validateTaskPayload(p, now, true); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}

		idemKey := c.Request().Header.Get("Idempotency-Key")
		if deduper != nil && idemKey != "" {
			added, dedupeErr := deduper.Add(ctx, userID, idemKey)
			if dedupeErr != nil {
				// Dedupe is best effort; a broken redis must not block creates.
				logger.WithError(dedupeErr).Warn("idempotency check unavailable")
			} else if !added {
				return c.String(http.StatusConflict, "duplicate request")
			}
		}

		description := ""
		if p.Description != nil {
			description = *p.Description
		}
		category, priority := resolveTaskFields(ctx, classifier, *p.Title, description, p.Category, p.Priority)

		task := domain.Task{
			ID:          uuid.NewString(),
			UserID:      userID,
			Title:       *p.Title,
			Description: description,
			DueDate:     p.DueDate,
			Category:    category,
			Priority:    priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if p.Completed != nil && *p.Completed {
			task.Completed = true
			task.CompletedAt = &now
		}

		if err := store.InsertTask(ctx, task); err != nil {
			if deduper != nil && idemKey != "" {
				if rerr := deduper.Remove(ctx, userID, idemKey); rerr != nil {
					logger.WithError(rerr).Warn("idempotency rollback failed")
				}
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func getTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		task, err := store.GetTask(ctx, userID, c.Param("id"))
		if err != nil {
			var notFound TaskNotFoundError
			if errors.As(err, &notFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(store Storage, auth Authenticator, classifier Classifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		p, err := decodeTaskPayload(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		now := time.Now().UTC()
		if msg := validateTaskPayload(p, now, false); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}

		task, err := store.GetTask(ctx, userID, c.Param("id"))
		if err != nil {
			var notFound TaskNotFoundError
			if errors.As(err, &notFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		title := task.Title
		if p.Title != nil {
			title = *p.Title
		}
		description := task.Description
		if p.Description != nil {
			description = *p.Description
		}
		contentChanged := title != task.Title || description != task.Description
		task.Title = title
		task.Description = description

		// Re-classify only when the task text changed; explicit payload values
		// always win over the fresh guess.
		if contentChanged && (p.Category == nil || p.Priority == nil) {
			task.Category, task.Priority = resolveTaskFields(ctx, classifier, title, description, p.Category, p.Priority)
		} else {
			if p.Category != nil {
				task.Category = *p.Category
			}
			if p.Priority != nil {
				task.Priority = *p.Priority
			}
		}

		if p.DueDate != nil {
			task.DueDate = p.DueDate
		}
		if p.Completed != nil {
			if *p.Completed && !task.Completed {
				task.CompletedAt = &now
			} else if !*p.Completed && task.Completed {
				task.CompletedAt = nil
			}
			task.Completed = *p.Completed
		}
		task.UpdatedAt = now

		if err := store.UpdateTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update task")
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		if err := store.DeleteTask(ctx, userID, c.Param("id")); err != nil {
			var notFound TaskNotFoundError
			if errors.As(err, &notFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getProfile(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		tasks, err := store.FetchAllTasks(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, profileResponse{UserID: userID, TotalTasks: len(tasks)})
	}
}

func postExport(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		job := domain.ExportJob{
			ID:          uuid.NewString(),
			UserID:      userID,
			RequestedAt: time.Now().UTC(),
		}

		if tryEnqueueExport(job) {
			return c.JSON(http.StatusAccepted, exportResponse{JobID: job.ID})
		}

		if logger != nil {
			logger.Warn("export buffer saturated; enqueueing inline")
		}
		enqueueCtx, cancel := context.WithTimeout(exportBG, exportTimeout())
		err = store.EnqueueExport(enqueueCtx, job)
		cancel()
		if err != nil {
			c.Logger().Errorf("export enqueue inline failed: %v", err)
			return c.String(http.StatusInternalServerError, "failed to enqueue export")
		}
		return c.JSON(http.StatusAccepted, exportResponse{JobID: job.ID})
	}
}
