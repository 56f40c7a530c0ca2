package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskpilot-api/domain"
)

// The export sender moves export jobs off the request path: handlers hand
// jobs to a bounded channel drained by worker goroutines, and fall back to an
// inline enqueue when the buffer is saturated.
var (
	exportOnce     sync.Once
	exportJobs     chan domain.ExportJob
	exportWorkers  int
	exportBuf      int
	exportDeadline time.Duration
	exportHandoff  time.Duration
	exportBG       = context.Background()
	exportStore    Storage
	exportLog      *log.Logger
	exportWG       sync.WaitGroup
)

// shutdownExportSender stops worker goroutines and clears shared state. It is intended for tests.
func shutdownExportSender() {
	if exportJobs != nil {
		close(exportJobs)
		exportJobs = nil
	}

	exportWG.Wait()

	exportStore = nil
	exportLog = nil
	exportWorkers = 0
	exportBuf = 0
	exportDeadline = 0
	exportHandoff = 0
	exportOnce = sync.Once{}
	exportWG = sync.WaitGroup{}
}

func initExportSender(store Storage, logger *log.Logger) {
	exportOnce.Do(func() {
		exportStore = store
		if logger == nil {
			panic("Logger is not initialized")
		}
		exportLog = logger

		exportWorkers = envInt("EXPORT_WORKERS", 4)
		exportBuf = envInt("EXPORT_BUFFER", 1024)
		exportDeadline = envDur("EXPORT_TIMEOUT", 60*time.Second)
		exportHandoff = envDur("EXPORT_HANDOFF_TIMEOUT", 15*time.Millisecond)

		exportJobs = make(chan domain.ExportJob, exportBuf)
		for i := 0; i < exportWorkers; i++ {
			exportWG.Add(1)
			go exportWorker(i, exportJobs)
		}
		exportLog.Infof("export sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", exportWorkers, exportBuf, exportDeadline, exportHandoff)
	})
}

func exportTimeout() time.Duration {
	if exportDeadline > 0 {
		return exportDeadline
	}
	return 60 * time.Second
}

func exportWorker(id int, jobCh <-chan domain.ExportJob) {
	defer exportWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(exportBG, exportTimeout())
		err := exportStore.EnqueueExport(ctx, j)
		cancel()

		if err != nil {
			exportLog.Errorf("export enqueue failed, err: %v, job: %s, user: %s, worker: %d", err, j.ID, j.UserID, id)
		}
	}
}

func tryEnqueueExport(job domain.ExportJob) bool {
	if exportJobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(exportJobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if exportHandoff <= 0 {
		return false
	}

	timer := time.NewTimer(exportHandoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(exportJobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan domain.ExportJob, job domain.ExportJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.ExportJob, job domain.ExportJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
