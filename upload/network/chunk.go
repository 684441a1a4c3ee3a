package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/shotstash/go-uploadutils/upload/progress"
)

// uploadInChunks drives a resumable session to completion. Chunks are sent
// strictly sequentially, each wrapped in the retry policy, until the server
// answers the final byte range with the stored object descriptor.
func (c apiClient) uploadInChunks(ctx context.Context, handle, sessionURI string, src Source, throttler *progress.Throttler) (*FileInfo, error) {
	total := src.Size()

	var offset int64
	for {
		if c.aborted(ctx, handle) {
			return nil, ErrUploadCancelled
		}

		end := offset + ChunkSize
		if end > total {
			end = total
		}

		info, acked, err := c.sendChunkWithRetry(ctx, handle, sessionURI, src, offset, end, total)
		if err != nil {
			return nil, err
		}

		throttler.Publish(acked)
		if info != nil {
			return info, nil
		}

		if acked >= total {
			// Every byte is stored but the final descriptor got lost in a
			// failed attempt; the session still has it.
			_, info, err := c.queryAcknowledged(ctx, handle, sessionURI, total)
			if err != nil {
				if errors.Is(err, ErrUploadCancelled) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: %s", ErrChunkTransfer, err)
			}
			if info == nil {
				return nil, fmt.Errorf("%w: session complete without file metadata", ErrMalformedResponse)
			}
			return info, nil
		}
		if acked <= offset {
			return nil, fmt.Errorf("%w: server acknowledged %d bytes, expected more than %d", ErrChunkTransfer, acked, offset)
		}
		offset = acked
	}
}

// sendChunkWithRetry transmits the [start, end) range with exponential
// backoff. Before each retry the session is asked how many bytes it actually
// stored, so the resend starts from the server-confirmed offset rather than
// blindly repeating the range. Returns the final object descriptor when this
// was the last chunk, otherwise the acknowledged offset.
func (c apiClient) sendChunkWithRetry(ctx context.Context, handle, sessionURI string, src Source, start, end, total int64) (*FileInfo, int64, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.waitRetry(ctx, handle, c.retryWait<<(attempt-1))

			acked, info, err := c.queryAcknowledged(ctx, handle, sessionURI, total)
			switch {
			case err != nil:
				c.logger.Debugf("Could not query acknowledged bytes, resending range: %s", err)
			case info != nil:
				return info, total, nil
			case acked > start:
				c.logger.Debugf("Server confirmed %d bytes, resuming chunk from there", acked)
				start = acked
			}
			if start >= end {
				return nil, end, nil
			}
		}

		if c.aborted(ctx, handle) {
			return nil, 0, ErrUploadCancelled
		}

		info, acked, err := c.sendChunk(ctx, handle, sessionURI, src, start, end, total)
		if err == nil {
			return info, acked, nil
		}
		if errors.Is(err, ErrUploadCancelled) || errors.Is(err, ErrMalformedResponse) {
			return nil, 0, err
		}

		lastErr = err
		c.logger.Warnf("Chunk %d-%d attempt %d/%d failed: %s", start, end-1, attempt+1, maxRetries+1, err)
	}

	return nil, 0, fmt.Errorf("%w after %d attempts: %s", ErrChunkTransfer, maxRetries+1, lastErr)
}

// sendChunk is a single transmission attempt for the [start, end) range. A
// 308 means the range was accepted and more bytes are expected; 200/201 means
// this was the final chunk and the body holds the stored object descriptor.
func (c apiClient) sendChunk(ctx context.Context, handle, sessionURI string, src Source, start, end, total int64) (*FileInfo, int64, error) {
	reqCtx, release := c.registry.requestContext(ctx, handle)
	defer release()
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, c.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, sessionURI, src.Chunk(start, end-start))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = end - start
	req.Header.Set("Content-Type", src.ContentType())
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, total))

	resp, err := c.transport.Do(req)
	if err != nil {
		if c.aborted(ctx, handle) {
			return nil, 0, ErrUploadCancelled
		}
		return nil, 0, fmt.Errorf("send chunk: %w", err)
	}
	defer c.closeBody(resp.Body)

	switch resp.StatusCode {
	case statusResumeIncomplete:
		acked := ackedFromRange(resp.Header.Get("Range"))
		if acked <= 0 || acked > total {
			// servers may omit the Range header on intermediate chunks
			acked = end
		}
		return nil, acked, nil
	case http.StatusOK, http.StatusCreated:
		info, err := parseFileInfo(resp.Body, total)
		if err != nil {
			return nil, 0, err
		}
		return info, total, nil
	default:
		return nil, 0, fmt.Errorf("chunk rejected: %s", unwrapError(resp))
	}
}

// queryAcknowledged asks the session how many leading bytes it has stored. A
// 308 carries the confirmed range in the Range header; 200/201 means the
// upload already completed and the body holds the object descriptor. The
// query itself is retried with a fixed wait so a flaky query does not count
// against the chunk's own retry attempts.
func (c apiClient) queryAcknowledged(ctx context.Context, handle, sessionURI string, total int64) (int64, *FileInfo, error) {
	var acked int64
	var info *FileInfo

	err := retry.Times(maxRetries).Wait(c.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		reqCtx, release := c.registry.requestContext(ctx, handle)
		defer release()
		if c.requestTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(reqCtx, c.requestTimeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, sessionURI, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err), true
		}
		req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

		resp, err := c.transport.Do(req)
		if err != nil {
			if c.aborted(ctx, handle) {
				return ErrUploadCancelled, true
			}
			return fmt.Errorf("query session: %w", err), false
		}
		defer c.closeBody(resp.Body)

		switch resp.StatusCode {
		case statusResumeIncomplete:
			acked = ackedFromRange(resp.Header.Get("Range"))
			return nil, true
		case http.StatusOK, http.StatusCreated:
			parsed, err := parseFileInfo(resp.Body, total)
			if err != nil {
				return err, true
			}
			info = parsed
			acked = total
			return nil, true
		default:
			return unwrapError(resp), false
		}
	})
	if err != nil {
		return 0, nil, err
	}
	return acked, info, nil
}

// ackedFromRange parses a "bytes=0-N" Range header into the number of
// confirmed leading bytes. A missing or unparseable header means the server
// has not confirmed anything.
func ackedFromRange(header string) int64 {
	if header == "" {
		return 0
	}
	value := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(value, "-", 2)
	if len(parts) != 2 {
		return 0
	}
	last, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || last < 0 {
		return 0
	}
	return last + 1
}
