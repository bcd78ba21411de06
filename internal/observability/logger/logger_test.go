package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nope"))
}

func TestUseJSON(t *testing.T) {
	assert.True(t, useJSON(Config{Env: "prod"}))
	assert.True(t, useJSON(Config{Env: "production"}))
	assert.False(t, useJSON(Config{Env: "dev"}))
	assert.True(t, useJSON(Config{Env: "dev", Format: "json"}))
	assert.False(t, useJSON(Config{Env: "prod", Format: "console"}))
}

func TestContextScoping(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	// sin logger en el contexto cae al singleton
	From(context.Background()).Info("plain")

	ctx := With(context.Background(), RequestID("r-1"), UserID(7))
	From(ctx).Info("scoped")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Empty(t, entries[0].Context)
		fields := entries[1].ContextMap()
		assert.Equal(t, "r-1", fields["request_id"])
		assert.Equal(t, int64(7), fields["user_id"])
	}
}
