package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbortRegistry_UnknownHandleIsNoop(t *testing.T) {
	registry := NewAbortRegistry()

	registry.Abort("never-seen")

	assert.False(t, registry.Aborted("never-seen"))
}

func TestAbortRegistry_AbortCancelsInFlightRequest(t *testing.T) {
	registry := NewAbortRegistry()
	registry.Attach("task-1")

	reqCtx, release := registry.requestContext(context.Background(), "task-1")
	defer release()

	registry.Abort("task-1")

	require.Error(t, reqCtx.Err())
	assert.True(t, registry.Aborted("task-1"))
}

func TestAbortRegistry_AbortBetweenRequests(t *testing.T) {
	registry := NewAbortRegistry()
	registry.Attach("task-1")

	// no request outstanding
	registry.Abort("task-1")
	assert.True(t, registry.Aborted("task-1"))

	// the next request starts out already cancelled
	reqCtx, release := registry.requestContext(context.Background(), "task-1")
	defer release()
	assert.Error(t, reqCtx.Err())
}

func TestAbortRegistry_ReleaseClearsTheLiveRequest(t *testing.T) {
	registry := NewAbortRegistry()
	registry.Attach("task-1")

	reqCtx, release := registry.requestContext(context.Background(), "task-1")
	release()

	assert.Error(t, reqCtx.Err())
	assert.False(t, registry.Aborted("task-1"))
}

func TestAbortRegistry_DetachRemovesTheEntry(t *testing.T) {
	registry := NewAbortRegistry()
	registry.Attach("task-1")
	registry.Abort("task-1")

	registry.Detach("task-1")

	assert.False(t, registry.Aborted("task-1"))
}

func TestAbortRegistry_EmptyHandle(t *testing.T) {
	registry := NewAbortRegistry()

	registry.Attach("")
	reqCtx, release := registry.requestContext(context.Background(), "")
	defer release()

	assert.NoError(t, reqCtx.Err())
	assert.False(t, registry.Aborted(""))
}
