package network

import (
	"context"
	"sync"
)

// AbortRegistry tracks the in-flight request of each active upload task under
// its caller-chosen cancel handle, so a cancellation can be requested from
// outside the task's call stack. Handles must be unique among concurrent
// tasks; a task holds at most one live request at a time.
type AbortRegistry struct {
	mu      sync.Mutex
	entries map[string]*abortEntry
}

type abortEntry struct {
	// cancel terminates the in-flight request, nil between requests.
	cancel  context.CancelFunc
	aborted bool
}

// NewAbortRegistry ...
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{entries: map[string]*abortEntry{}}
}

// Attach creates the registry entry for a starting task. Tasks with an empty
// handle are ignored: they cannot be aborted.
func (r *AbortRegistry) Attach(handle string) {
	if handle == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[handle] = &abortEntry{}
}

// Detach removes the entry once its task reached a terminal state.
func (r *AbortRegistry) Detach(handle string) {
	if handle == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, handle)
}

// Abort terminates the in-flight request registered under handle, if any, and
// marks the task aborted so no further requests are issued for it. Unknown
// handles are a no-op.
func (r *AbortRegistry) Abort(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[handle]
	if !ok {
		return
	}
	entry.aborted = true
	if entry.cancel != nil {
		entry.cancel()
		entry.cancel = nil
	}
}

// Aborted reports whether Abort was called for handle.
func (r *AbortRegistry) Aborted(handle string) bool {
	if handle == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[handle]
	return ok && entry.aborted
}

// requestContext derives the context for a single network request and hooks
// its cancel function into the registry for the duration of that request. The
// returned release must be called as soon as the request settles, success or
// not, so the registry never holds a dangling cancel.
func (r *AbortRegistry) requestContext(ctx context.Context, handle string) (context.Context, func()) {
	reqCtx, cancel := context.WithCancel(ctx)
	if handle == "" {
		return reqCtx, cancel
	}

	r.mu.Lock()
	if entry, ok := r.entries[handle]; ok {
		if entry.aborted {
			cancel()
		} else {
			entry.cancel = cancel
		}
	}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if entry, ok := r.entries[handle]; ok {
			entry.cancel = nil
		}
		r.mu.Unlock()
		cancel()
	}
	return reqCtx, release
}
