package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskpilot-api/ai"
	"taskpilot-api/domain"
)

func getStats(store Storage, auth Authenticator, narrator Narrator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newStatsRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchAllTasks(ctx, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetTasksScanned(len(tasks))

		stats := domain.Aggregate(tasks, time.Now().UTC())
		if stats.Total > 0 {
			narrateStart := time.Now()
			stats.Insights = narrator.Summarize(ctx, tasks)
			metrics.ObserveNarrate(time.Since(narrateStart))
			metrics.SetNarrated(true)
		} else {
			stats.Insights = ai.EmptyInsights
		}

		err = c.JSON(http.StatusOK, stats)
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}
