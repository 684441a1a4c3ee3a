package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/shotstash/go-uploadutils/upload/progress"
)

// uploadDirect sends sources at or below the direct-upload limit as a single
// multipart/related request carrying metadata and content together.
func (c apiClient) uploadDirect(ctx context.Context, handle string, src Source, meta uploadMetadata, throttler *progress.Throttler) (*FileInfo, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.waitRetry(ctx, handle, c.retryWait<<(attempt-1))
		}
		if c.aborted(ctx, handle) {
			return nil, ErrUploadCancelled
		}

		info, err := c.sendDirect(ctx, handle, src, meta, throttler)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, ErrUploadCancelled) || errors.Is(err, ErrMalformedResponse) {
			return nil, err
		}

		lastErr = err
		c.logger.Warnf("Direct upload attempt %d/%d failed: %s", attempt+1, maxRetries+1, err)
	}

	return nil, fmt.Errorf("%w: direct upload failed after %d attempts: %s", ErrNetwork, maxRetries+1, lastErr)
}

func (c apiClient) sendDirect(ctx context.Context, handle string, src Source, meta uploadMetadata, throttler *progress.Throttler) (*FileInfo, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return nil, fmt.Errorf("write metadata part: %w", err)
	}

	mediaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {src.ContentType()}})
	if err != nil {
		return nil, fmt.Errorf("create media part: %w", err)
	}
	if _, err := io.Copy(mediaPart, src.Chunk(0, src.Size())); err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	reqCtx, release := c.registry.requestContext(ctx, handle)
	defer release()
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, c.requestTimeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/upload/files?uploadType=multipart", c.baseURL)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, progress.NewReader(bytes.NewReader(body.Bytes()), throttler))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = int64(body.Len())
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", fmt.Sprintf("multipart/related; boundary=%s", writer.Boundary()))

	resp, err := c.transport.Do(req)
	if err != nil {
		if c.aborted(ctx, handle) {
			return nil, ErrUploadCancelled
		}
		return nil, fmt.Errorf("send upload: %w", err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload rejected: %s", unwrapError(resp))
	}
	return parseFileInfo(resp.Body, src.Size())
}
