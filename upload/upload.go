package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/shotstash/go-uploadutils/upload/network"
	"github.com/shotstash/go-uploadutils/upload/progress"
)

// UploadInput is the information that comes from the callers of this shared
// implementation.
type UploadInput struct {
	// SourcePath is the file to upload. Ignored when Source is set.
	SourcePath string
	// Source overrides SourcePath with a caller-provided byte source.
	Source network.Source
	// FolderID is the destination folder. Empty means the store's root.
	FolderID string
	// AccessToken overrides the MEDIASTORE_ACCESS_TOKEN env var.
	AccessToken string
	// CancelHandle registers the upload for Abort. Empty disables cancellation.
	CancelHandle string
	// OnProgress receives throttled transfer snapshots. Optional.
	OnProgress progress.Func
	Verbose    bool
}

type uploadConfig struct {
	APIBaseURL    string
	AccessToken   string
	ReviewerEmail string
}

// Uploader ...
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (*network.FileInfo, error)
	Abort(handle string)
}

type uploader struct {
	envRepo      env.Repository
	logger       log.Logger
	pathModifier pathutil.PathModifier
	client       network.Uploader
	registry     *network.AbortRegistry
}

// NewUploader creates a new uploader instance. `client` can be nil, unless you
// want to provide a custom `network.Uploader` implementation.
func NewUploader(
	envRepo env.Repository,
	logger log.Logger,
	pathModifier pathutil.PathModifier,
	client network.Uploader,
) *uploader {
	var clientImpl network.Uploader = client
	if client == nil {
		clientImpl = network.DefaultUploader{}
	}
	return &uploader{
		envRepo:      envRepo,
		logger:       logger,
		pathModifier: pathModifier,
		client:       clientImpl,
		registry:     network.NewAbortRegistry(),
	}
}

// Upload ...
func (u *uploader) Upload(ctx context.Context, input UploadInput) (*network.FileInfo, error) {
	if input.Verbose {
		u.logger.EnableDebugLog(true)
	}

	config, err := u.createConfig(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse inputs: %w", err)
	}

	source := input.Source
	if source == nil {
		absPath, err := u.pathModifier.AbsPath(input.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse source path: %w", err)
		}
		fileSource, err := network.NewFileSource(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open source file: %w", err)
		}
		defer func() {
			if err := fileSource.Close(); err != nil {
				u.logger.Warnf("Failed to close %s: %s", absPath, err)
			}
		}()
		source = fileSource
	}

	taskID := uuid.NewString()
	tracker := newUploadTracker(taskID, u.envRepo, u.logger)
	defer tracker.wait()

	resumable := source.Size() > network.DirectUploadLimit
	u.logger.Println()
	u.logger.Infof("Uploading %s (%s)...", source.Name(), units.HumanSizeWithPrecision(float64(source.Size()), 3))
	u.logger.Debugf("Upload task %s, content type %s, resumable: %t", taskID, source.ContentType(), resumable)

	params := network.UploadParams{
		APIBaseURL:    config.APIBaseURL,
		Token:         config.AccessToken,
		Source:        source,
		FolderID:      input.FolderID,
		ReviewerEmail: config.ReviewerEmail,
		CancelHandle:  input.CancelHandle,
		OnProgress:    input.OnProgress,
	}

	uploadStartTime := time.Now()
	info, err := u.client.Upload(ctx, params, u.registry, u.logger)
	if err != nil {
		tracker.logUploadFailed(err, resumable)
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	uploadTime := time.Since(uploadStartTime).Round(time.Second)
	u.logger.Donef("Uploaded %s in %s", info.Name, uploadTime)
	tracker.logFileUploaded(uploadTime, source.Size(), chunkCount(source.Size()), resumable)

	return info, nil
}

// Abort requests cancellation of the upload registered under handle. Unknown
// handles are a no-op.
func (u *uploader) Abort(handle string) {
	u.registry.Abort(handle)
}

func (u *uploader) createConfig(input UploadInput) (uploadConfig, error) {
	if input.Source == nil && strings.TrimSpace(input.SourcePath) == "" {
		return uploadConfig{}, fmt.Errorf("source path should not be empty")
	}

	apiBaseURL := u.envRepo.Get("MEDIASTORE_API_URL")
	if apiBaseURL == "" {
		return uploadConfig{}, fmt.Errorf("the secret 'MEDIASTORE_API_URL' is not defined")
	}
	accessToken := input.AccessToken
	if accessToken == "" {
		accessToken = u.envRepo.Get("MEDIASTORE_ACCESS_TOKEN")
	}
	if accessToken == "" {
		return uploadConfig{}, fmt.Errorf("the secret 'MEDIASTORE_ACCESS_TOKEN' is not defined")
	}

	return uploadConfig{
		APIBaseURL:    apiBaseURL,
		AccessToken:   accessToken,
		ReviewerEmail: u.envRepo.Get("MEDIASTORE_REVIEWER_EMAIL"),
	}, nil
}

func chunkCount(size int64) int {
	if size <= network.DirectUploadLimit {
		return 1
	}
	count := size / network.ChunkSize
	if size%network.ChunkSize != 0 {
		count++
	}
	return int(count)
}
