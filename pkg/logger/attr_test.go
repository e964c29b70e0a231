package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

type namedState string

func (s namedState) Name() string { return "named:" + string(s) }

func TestGroup(t *testing.T) {
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestErrors(t *testing.T) {
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestEntityAttrs(t *testing.T) {
	assert.Equal(t, "documents", logger.EntityType("documents").Value.String())
	assert.Equal(t, "entity_type", logger.EntityType("documents").Key)

	attr := logger.EntityID("42")
	assert.Equal(t, "entity_id", attr.Key)
	assert.Equal(t, "42", attr.Value.String())
	assert.True(t, logger.EntityID("").Equal(slog.Attr{}))

	assert.Equal(t, "field", logger.Field("status").Key)
}

func TestState(t *testing.T) {
	assert.Equal(t, "named:draft", logger.State(namedState("draft")).Value.String())
	assert.Equal(t, "state", logger.State(3).Key)
	assert.Equal(t, int64(3), logger.State(3).Value.Int64())
	assert.True(t, logger.State(nil).Equal(slog.Attr{}))
}

func TestEdge(t *testing.T) {
	attr := logger.Edge("publish")
	assert.Equal(t, "edge", attr.Key)
	assert.Equal(t, "publish", attr.Value.String())
	assert.True(t, logger.Edge("").Equal(slog.Attr{}))
}
