package network

import "errors"

// Failures surfaced to callers, matched with errors.Is. Everything retryable
// is retried internally first; these are terminal outcomes.
var (
	// ErrSessionInitiation means no resumable session URI could be obtained
	// after retries.
	ErrSessionInitiation = errors.New("could not initiate resumable upload session")

	// ErrChunkTransfer means the server kept rejecting a chunk until retries
	// were exhausted.
	ErrChunkTransfer = errors.New("chunk transfer failed")

	// ErrUploadCancelled means the caller aborted the transfer.
	ErrUploadCancelled = errors.New("upload cancelled")

	// ErrNetwork is a transport failure not otherwise classified.
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse means the server reported success but the response
	// could not be decoded.
	ErrMalformedResponse = errors.New("malformed server response")
)
