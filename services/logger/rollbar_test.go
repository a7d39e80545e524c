package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/user"
)

func TestRollbarLogger_fields(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	conf := &core.Config{AppName: "Deck", Env: "TEST", TestMode: true}
	l := NewRollbarLogger(zap.New(obs), conf)

	usr := user.User{ID: 7, Username: "teacher"}
	l.Warn("digest skipped", errors.New("no email"), map[string]interface{}{"schema": "school"}, usr)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "digest skipped", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "no email", ctx["error"])
	assert.Equal(t, "school", ctx["schema"])
	assert.Equal(t, int64(7), ctx["user_id"])
	assert.Equal(t, "teacher", ctx["username"])
}
