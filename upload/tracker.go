package upload

import (
	"errors"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/shotstash/go-uploadutils/upload/network"
)

type uploadTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newUploadTracker(taskID string, envRepo env.Repository, logger log.Logger) uploadTracker {
	p := analytics.Properties{
		"task_id":    taskID,
		"project_id": envRepo.Get("SHOTSTASH_PROJECT_ID"),
		"stage":      envRepo.Get("SHOTSTASH_STAGE"),
	}
	return uploadTracker{
		tracker: analytics.NewDefaultTracker(logger, p),
		logger:  logger,
	}
}

func (t *uploadTracker) logFileUploaded(uploadTime time.Duration, sizeBytes int64, chunkCount int, resumable bool) {
	properties := analytics.Properties{
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
		"upload_size_bytes": sizeBytes,
		"chunk_count":       chunkCount,
		"resumable":         resumable,
	}
	t.tracker.Enqueue("file_uploaded", properties)
}

func (t *uploadTracker) logUploadFailed(err error, resumable bool) {
	properties := analytics.Properties{
		"failure_kind": failureKind(err),
		"resumable":    resumable,
	}
	t.tracker.Enqueue("upload_failed", properties)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, network.ErrUploadCancelled):
		return "cancelled"
	case errors.Is(err, network.ErrSessionInitiation):
		return "session_initiation"
	case errors.Is(err, network.ErrChunkTransfer):
		return "chunk_transfer"
	case errors.Is(err, network.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, network.ErrNetwork):
		return "network"
	default:
		return "other"
	}
}

func (t *uploadTracker) wait() {
	t.tracker.Wait()
}
