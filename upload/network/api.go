package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DirectUploadLimit is the largest source sent as a single multipart
	// request; anything bigger goes through a resumable session.
	DirectUploadLimit int64 = 5 * 1024 * 1024

	// ChunkSize is the byte range transmitted per request in a resumable
	// session. Must stay a multiple of the 256 KiB alignment the storage API
	// requires for intermediate chunks.
	ChunkSize int64 = 16 * 1024 * 1024

	// maxRetries is the number of retries after the initial attempt.
	maxRetries = 3

	defaultRetryWait      = time.Second
	defaultRequestTimeout = 10 * time.Minute
)

// statusResumeIncomplete is how the storage API acknowledges an intermediate
// chunk. The response carries no Location header, so the HTTP client returns
// it as-is instead of following a redirect.
const statusResumeIncomplete = http.StatusPermanentRedirect

type uploadMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
}

type permissionRequest struct {
	Role         string `json:"role"`
	Type         string `json:"type"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type fileInfoResponse struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	WebViewLink    string      `json:"webViewLink"`
	WebContentLink string      `json:"webContentLink"`
	Size           json.Number `json:"size"`
}

// FileInfo describes the stored object returned by the storage API.
type FileInfo struct {
	ID             string
	Name           string
	Size           int64
	WebViewLink    string
	WebContentLink string
}

type apiClient struct {
	// httpClient backs session initiation and permission grants, which retry
	// transparently. Chunk and direct upload requests go through transport,
	// driven by the explicit retry loop that handles resume and abort.
	httpClient     *retryablehttp.Client
	transport      Transport
	baseURL        string
	token          string
	registry       *AbortRegistry
	logger         log.Logger
	retryWait      time.Duration
	requestTimeout time.Duration
}

// initiateSession declares the intended upload to the storage API and returns
// the server-issued resumable session URI.
func (c apiClient) initiateSession(ctx context.Context, handle string, meta uploadMetadata, size int64) (string, error) {
	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	url := fmt.Sprintf("%s/upload/files?uploadType=resumable", c.baseURL)
	req, err := retryablehttp.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	reqCtx, release := c.registry.requestContext(ctx, handle)
	defer release()
	req = req.WithContext(reqCtx)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", meta.MimeType)
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", size))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.aborted(ctx, handle) {
			return "", ErrUploadCancelled
		}
		return "", fmt.Errorf("%w: %s", ErrSessionInitiation, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: %s", ErrSessionInitiation, unwrapError(resp))
	}

	sessionURI := resp.Header.Get("Location")
	if sessionURI == "" {
		return "", fmt.Errorf("%w: no session URI in response", ErrMalformedResponse)
	}

	c.logger.Debugf("Resumable session initiated")
	return sessionURI, nil
}

// grantPermissions makes the stored object link-accessible and, when a
// reviewer is configured, grants them explicit read access. Both grants run
// concurrently. The object is already durably stored at this point, so
// failures are logged and swallowed.
func (c apiClient) grantPermissions(ctx context.Context, fileID, reviewerEmail string) {
	grants := []permissionRequest{{Role: "reader", Type: "anyone"}}
	if reviewerEmail != "" {
		grants = append(grants, permissionRequest{Role: "reader", Type: "user", EmailAddress: reviewerEmail})
	}

	var wg sync.WaitGroup
	for _, grant := range grants {
		wg.Add(1)
		go func(grant permissionRequest) {
			defer wg.Done()
			if err := c.createPermission(ctx, fileID, grant); err != nil {
				c.logger.Warnf("Failed to grant %s access on %s: %s", grant.Type, fileID, err)
			}
		}(grant)
	}
	wg.Wait()
}

func (c apiClient) createPermission(ctx context.Context, fileID string, grant permissionRequest) error {
	body, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshal permission: %w", err)
	}

	url := fmt.Sprintf("%s/files/%s/permissions", c.baseURL, fileID)
	req, err := retryablehttp.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return unwrapError(resp)
	}
	return nil
}

// aborted reports whether the task should stop issuing requests, either
// because the caller aborted it through the registry or because the caller's
// context is done.
func (c apiClient) aborted(ctx context.Context, handle string) bool {
	return c.registry.Aborted(handle) || ctx.Err() != nil
}

// waitRetry blocks for the backoff delay before a retry attempt, returning
// early when the task is aborted or the caller's context is cancelled.
func (c apiClient) waitRetry(ctx context.Context, handle string, delay time.Duration) {
	waitCtx, release := c.registry.requestContext(ctx, handle)
	defer release()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-waitCtx.Done():
	}
}

func (c apiClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func parseFileInfo(body io.Reader, fallbackSize int64) (*FileInfo, error) {
	var response fileInfoResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	if response.ID == "" || response.Name == "" {
		return nil, fmt.Errorf("%w: missing file id or name", ErrMalformedResponse)
	}

	size := fallbackSize
	if response.Size != "" {
		parsed, err := response.Size.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid size %q", ErrMalformedResponse, response.Size)
		}
		size = parsed
	}

	return &FileInfo{
		ID:             response.ID,
		Name:           response.Name,
		Size:           size,
		WebViewLink:    response.WebViewLink,
		WebContentLink: response.WebContentLink,
	}, nil
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}
