package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/queue"
)

type handlerPayload struct {
	ID string `json:"id"`
}

func TestNewTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("name derived from payload type", func(t *testing.T) {
		t.Parallel()

		h := queue.NewTaskHandler(func(context.Context, handlerPayload) error { return nil })
		assert.Equal(t, "queue_test.handlerPayload", h.Name())

		hp := queue.NewTaskHandler(func(context.Context, *handlerPayload) error { return nil })
		assert.Equal(t, "queue_test.handlerPayload", hp.Name())
	})

	t.Run("decodes payload", func(t *testing.T) {
		t.Parallel()

		var got handlerPayload
		h := queue.NewTaskHandler(func(_ context.Context, p handlerPayload) error {
			got = p
			return nil
		})

		require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"id":"doc-1"}`)))
		assert.Equal(t, "doc-1", got.ID)
	})

	t.Run("decode error", func(t *testing.T) {
		t.Parallel()

		called := false
		h := queue.NewTaskHandler(func(context.Context, handlerPayload) error {
			called = true
			return nil
		})

		err := h.Handle(context.Background(), json.RawMessage(`{"id":`))
		require.Error(t, err)
		assert.False(t, called)
	})

	t.Run("handler error propagates", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		h := queue.NewTaskHandler(func(context.Context, handlerPayload) error { return boom })
		assert.ErrorIs(t, h.Handle(context.Background(), json.RawMessage(`{}`)), boom)
	})
}

func TestNewNamedTaskHandler(t *testing.T) {
	t.Parallel()

	h := queue.NewNamedTaskHandler("statemachine.transition", func(context.Context, handlerPayload) error { return nil })
	assert.Equal(t, "statemachine.transition", h.Name())
}
