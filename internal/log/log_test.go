package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Fields(ctx))

	ctx = WithFields(ctx, zap.String("a", "1"))
	ctx2 := WithFields(ctx, zap.String("b", "2"))

	assert.Len(t, Fields(ctx), 1)
	assert.Len(t, Fields(ctx2), 2)
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := WithFields(context.Background(), zap.String("request", "r1"))

	WithContext(ctx, zap.New(core)).Debug("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "r1", logs.All()[0].ContextMap()["request"])
}

func TestLogger(t *testing.T) {
	assert.Nil(t, Logger(context.Background()))

	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, Logger(ctx))

	ctx = WithFields(ctx, zap.String("command", "get"))
	assert.Same(t, logger, Logger(ctx), "fields keep the logger")
}

func TestNew(t *testing.T) {
	logger, err := New("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud")
	assert.Error(t, err)
}
