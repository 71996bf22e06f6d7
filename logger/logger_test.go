package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"simdex"
	"simdex/distance"
)

func TestZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewZap(zap.New(core))

	l.Info("opened tree", "variant", "RStarTree", "height", 1)
	l.Warn("small node capacity", "leaf_capacity", 3)
	l.Error("commit failed", "err", "disk full")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "opened tree", entries[0].Message)
	assert.Equal(t, map[string]any{"variant": "RStarTree", "height": int64(1)}, entries[0].ContextMap())
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestLogrus(t *testing.T) {
	var buf bytes.Buffer
	lr := logrus.New()
	lr.SetOutput(&buf)
	lr.SetFormatter(&logrus.JSONFormatter{})
	l := NewLogrus(lr)

	l.Warn("supernode at block limit, forcing split", "blocks", 3, "dangling")
	l.Info("snapshot exported", 42, "ignored", "name", "nightly")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "warning", first["level"])
	assert.Equal(t, "supernode at block limit, forcing split", first["msg"])
	assert.Equal(t, float64(3), first["blocks"])
	assert.NotContains(t, first, "dangling")

	assert.Equal(t, "info", second["level"])
	assert.Equal(t, "nightly", second["name"])
	assert.NotContains(t, second, "ignored")
}

func TestAdapterWithTree(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tree, err := simdex.OpenSpatial(simdex.RStarTree, 2, distance.Euclidean,
		simdex.WithLogger(NewZap(zap.New(core))))
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	assert.NotZero(t, logs.FilterMessage("opened tree").Len())
	assert.Zero(t, logs.FilterMessage("small node capacity").Len())

	tree, err = simdex.OpenSpatial(simdex.RStarTree, 2, distance.Euclidean,
		simdex.WithLogger(NewZap(zap.New(core))), simdex.WithLeafCapacity(4))
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	warned := logs.FilterMessage("small node capacity").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
	assert.EqualValues(t, 4, warned[0].ContextMap()["leafCapacity"])
}
