package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/internal/testutil"
	"github.com/hupe1980/opmesh/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkFuncAndMultiSink(t *testing.T) {
	var got []core.EventKind
	fn := SinkFunc(func(_ context.Context, ev core.Event) { got = append(got, ev.Kind) })
	rec := &testutil.RecordingSink{}

	sink := MultiSink{fn, nil, rec, NoOpSink{}}
	sink.Notify(context.Background(), core.Event{Kind: core.EventKindStep})
	sink.Notify(context.Background(), core.Event{Kind: core.EventKindWorkflow})

	assert.Equal(t, []core.EventKind{core.EventKindStep, core.EventKindWorkflow}, got)
	assert.Len(t, rec.Events(), 2)
}

func TestLoggingSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})
	sink := NewLoggingSink(logger)

	sink.Notify(context.Background(), core.Event{Kind: core.EventKindStep, ID: "e1", Step: "create", Status: core.StatusCompleted})
	sink.Notify(context.Background(), core.Event{Kind: core.EventKindStep, ID: "e1", Step: "verify", Status: core.StatusFailed, Error: "boom"})
	sink.Notify(context.Background(), core.Event{Kind: core.EventKindWorkflow, ID: "e1", Status: core.StatusCompleted})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	levels := make([]string, len(lines))
	for i, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		levels[i], _ = rec["level"].(string)
		assert.Equal(t, "e1", rec["execution_id"])
	}
	assert.Equal(t, []string{"DEBUG", "WARN", "INFO"}, levels)
}

func TestLoggingSink_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		(&LoggingSink{}).Notify(context.Background(), core.Event{Kind: core.EventKindStep})
	})
}
