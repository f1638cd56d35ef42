package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTimer_Record(t *testing.T) {
	timer := NewStageTimer()
	timer.Record("argsort", 3*time.Millisecond)
	timer.Record("nms", 10*time.Millisecond)
	timer.Record("argsort", 1*time.Millisecond)

	stats := timer.Stats()
	require.Len(t, stats, 2)

	assert.Equal(t, "argsort", stats[0].Name)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.Equal(t, 4*time.Millisecond, stats[0].Total)
	assert.Equal(t, 1*time.Millisecond, stats[0].Min)
	assert.Equal(t, 3*time.Millisecond, stats[0].Max)
	assert.Equal(t, 2*time.Millisecond, stats[0].Mean)

	assert.Equal(t, "nms", stats[1].Name)
	assert.Equal(t, "argsort=2ms nms=10ms", timer.String())

	timer.Reset()
	assert.Empty(t, timer.Stats())
}

func TestStageTimer_Track(t *testing.T) {
	timer := NewStageTimer()
	done := timer.Track("compact")
	time.Sleep(time.Millisecond)
	done()

	stats := timer.Stats()
	require.Len(t, stats, 1)
	assert.GreaterOrEqual(t, stats[0].Total, time.Millisecond)
}

func TestStageTimer_NilIsNoop(t *testing.T) {
	var timer *StageTimer
	timer.Track("nms")()
	timer.Record("nms", time.Second)
	timer.Reset()
	assert.Nil(t, timer.Stats())
	assert.Equal(t, "", timer.String())
}
