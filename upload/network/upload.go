package network

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/shotstash/go-uploadutils/upload/progress"
)

// UploadParams ...
type UploadParams struct {
	APIBaseURL string
	Token      string
	Source     Source
	// FolderID identifies an existing destination container for the object.
	FolderID string
	// ReviewerEmail, when set, is granted read access after the upload.
	ReviewerEmail string
	// CancelHandle registers the transfer in the abort registry so a
	// concurrent Abort call with the same handle can cancel it.
	CancelHandle string
	// OnProgress receives throttled transfer snapshots.
	OnProgress progress.Func

	// RetryWait is the base backoff delay, doubled on every retry. Zero
	// means the 1s default.
	RetryWait time.Duration
	// RequestTimeout bounds a single chunk or direct upload request. Zero
	// means the 10 minute default, negative disables the timeout.
	RequestTimeout time.Duration
	// Transport overrides the HTTP client used for chunk and direct upload
	// requests.
	Transport Transport
}

// Upload transfers a single source to the storage API and returns the stored
// object descriptor. Sources above the direct-upload limit go through a
// resumable session and are sent as strictly sequential chunks; everything
// else is sent as one multipart request.
func Upload(ctx context.Context, params UploadParams, registry *AbortRegistry, logger log.Logger) (*FileInfo, error) {
	if params.APIBaseURL == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}
	if params.Token == "" {
		return nil, fmt.Errorf("API token is empty")
	}
	if params.Source == nil {
		return nil, fmt.Errorf("source is nil")
	}
	if params.Source.Size() <= 0 {
		return nil, fmt.Errorf("source %s is empty", params.Source.Name())
	}
	if registry == nil {
		registry = NewAbortRegistry()
	}

	retryWait := params.RetryWait
	if retryWait <= 0 {
		retryWait = defaultRetryWait
	}
	requestTimeout := params.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = defaultRequestTimeout
	} else if requestTimeout < 0 {
		requestTimeout = 0
	}
	transport := params.Transport
	if transport == nil {
		transport = &http.Client{}
	}

	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.RetryMax = maxRetries
	retryableHTTPClient.RetryWaitMin = retryWait
	retryableHTTPClient.RetryWaitMax = retryWait << (maxRetries - 1)

	client := apiClient{
		httpClient:     retryableHTTPClient,
		transport:      transport,
		baseURL:        params.APIBaseURL,
		token:          params.Token,
		registry:       registry,
		logger:         logger,
		retryWait:      retryWait,
		requestTimeout: requestTimeout,
	}

	src := params.Source
	meta := uploadMetadata{Name: src.Name(), MimeType: src.ContentType()}
	if params.FolderID != "" {
		meta.Parents = []string{params.FolderID}
	}

	registry.Attach(params.CancelHandle)
	defer registry.Detach(params.CancelHandle)

	throttler := progress.NewThrottler(params.OnProgress, src.Size(), 0)

	var info *FileInfo
	var err error
	if src.Size() <= DirectUploadLimit {
		logger.Debugf("Uploading %s in a single request", src.Name())
		info, err = client.uploadDirect(ctx, params.CancelHandle, src, meta, throttler)
	} else {
		logger.Debugf("Uploading %s in %d chunks of up to %dB", src.Name(), chunkCount(src.Size()), ChunkSize)
		var sessionURI string
		sessionURI, err = client.initiateSession(ctx, params.CancelHandle, meta, src.Size())
		if err == nil {
			info, err = client.uploadInChunks(ctx, params.CancelHandle, sessionURI, src, throttler)
		}
	}
	if err != nil {
		return nil, err
	}

	throttler.Finish()
	client.grantPermissions(ctx, info.ID, params.ReviewerEmail)

	return info, nil
}

func chunkCount(size int64) int {
	return int((size + ChunkSize - 1) / ChunkSize)
}
