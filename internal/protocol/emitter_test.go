package protocol

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitter_LinesRoundTripThroughParse(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	require.NoError(t, e.Status(StatusInitializing, "starting"))
	require.NoError(t, e.Progress("classifying", "inspecting input", map[string]string{"intent": "summarize"}))
	op := "executing"
	require.NoError(t, e.StateSync(StateDelta{Operation: &op}))
	require.NoError(t, e.Heartbeat("alive"))
	require.NoError(t, e.Completed("all done"))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)

	kinds := []UpdateKind{KindStatus, KindProgress, KindStateSync, KindHeartbeat, KindStatus}
	for i, line := range lines {
		u, err := ParseUpdate([]byte(line))
		require.NoError(t, err, "line %d should parse", i)
		require.Equal(t, kinds[i], u.Kind)
		require.False(t, u.EmittedAt.IsZero(), "every line carries a timestamp")
	}

	final, err := ParseUpdate([]byte(lines[4]))
	require.NoError(t, err)
	require.True(t, final.IsTerminal())
	require.Equal(t, "all done", final.Status.Response)
}

func TestEmitter_HeartbeatElapsed(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	base := time.Now()
	e.started = base
	e.now = func() time.Time { return base.Add(2500 * time.Millisecond) }

	require.NoError(t, e.Heartbeat("working"))

	u, err := ParseUpdate(bytes.TrimSpace(buf.Bytes()))
	require.NoError(t, err)
	require.InDelta(t, 2.5, u.Heartbeat.Elapsed, 0.001)
}

func TestEmitter_FailedCarriesError(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	require.NoError(t, e.Failed("tool execution denied"))

	u, err := ParseUpdate(bytes.TrimSpace(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, u.IsError())
	require.Equal(t, "tool execution denied", u.Status.Error)
}
