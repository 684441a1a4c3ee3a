package network

import (
	"context"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Uploader ...
type Uploader interface {
	Upload(context.Context, UploadParams, *AbortRegistry, log.Logger) (*FileInfo, error)
}

// DefaultUploader ...
type DefaultUploader struct{}

// Upload ...
func (DefaultUploader) Upload(ctx context.Context, params UploadParams, registry *AbortRegistry, logger log.Logger) (*FileInfo, error) {
	return Upload(ctx, params, registry, logger)
}

// Transport issues a single HTTP request. It exists so the chunk loop can be
// exercised against fakes; *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}
