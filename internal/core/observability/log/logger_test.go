package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelFromYAML(t *testing.T) {
	var cfg struct {
		Level Level `yaml:"level"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("level: debug"), &cfg))
	assert.Equal(t, LevelDebug, cfg.Level)
}

func TestSetLevelIsShared(t *testing.T) {
	logger := New(LevelInfo)
	child := logger.With(String("component", "test"))

	logger.SetLevel(LevelError)
	assert.Equal(t, LevelError, logger.GetLevel())
	assert.Equal(t, LevelError, child.GetLevel())
}

func TestFieldConversion(t *testing.T) {
	fields := toZapFields(
		Bool("b", true),
		Duration("d", time.Second),
		Int("i", 1),
		Uint64("u", 2),
		String("s", "x"),
		Stringer("level", LevelWarn),
		Error(errors.New("boom")),
		Any("any", []int{1}),
	)
	require.Len(t, fields, 8)
	assert.Equal(t, "error", fields[6].Key)

	// the nop logger must accept every field type without panicking
	NewNop().Info("fields", Bool("b", true), Uint32("u32", 3), Float64("f", 1.5), Int64("i64", 4))
}

func TestNewWithCore(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := NewWithCore(core)

	logger.Debug("hidden")
	logger.With(String("component", "world")).Warn("shown", Int("n", 1))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "shown", entry.Message)
	assert.Equal(t, "world", entry.ContextMap()["component"])
}
