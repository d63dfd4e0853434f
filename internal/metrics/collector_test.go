package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpHistoryLoad, 10*time.Millisecond, nil)
	c.RecordTiming(OpHistoryLoad, 30*time.Millisecond, errors.New("boom"))

	op, ok := c.Snapshot().Operation(OpHistoryLoad)
	require.True(t, ok)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(1), op.Errors)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
	assert.InDelta(t, 20.0, op.AvgTimeMs, 0.001)
	assert.Nil(t, op.TotalInputTokens)

	_, ok = c.Snapshot().Operation(OpUpload)
	assert.False(t, ok)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpLLMComplete, time.Second, nil)
	c.RecordLLMUsage(OpLLMComplete, 12, 40)
	c.RecordLLMUsage(OpLLMComplete, 3, 5)

	op, ok := c.Snapshot().Operation(OpLLMComplete)
	require.True(t, ok)
	require.NotNil(t, op.TotalInputTokens)
	assert.Equal(t, int64(15), *op.TotalInputTokens)
	assert.Equal(t, int64(45), *op.TotalOutputTokens)
}

func TestEventCounts(t *testing.T) {
	c := NewCollector()
	c.EventReceived("onlineUsers")
	c.EventApplied("onlineUsers")
	c.EventReceived("recieveMessage")
	c.EventDropped("recieveMessage")
	c.EventReceived("recieveMessage")
	c.EventIgnored("recieveMessage")

	snap := c.Snapshot()
	assert.Equal(t, EventCounts{Received: 1, Applied: 1}, snap.Events["onlineUsers"])
	assert.Equal(t, EventCounts{Received: 2, Dropped: 1, Ignored: 1}, snap.Events["recieveMessage"])
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.EventDropped("x")
	c.RecordTiming(OpCall, time.Second, nil)
	assert.Empty(t, c.Snapshot().Events)
}

func TestSnapshotSortsOperations(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpUpload, time.Millisecond, nil)
	c.RecordTiming(OpCall, time.Millisecond, nil)
	c.RecordTiming(OpHistoryLoad, time.Millisecond, nil)

	var names []string
	for _, op := range c.Snapshot().Operations {
		names = append(names, op.Name)
	}
	assert.Equal(t, []string{OpCall, OpHistoryLoad, OpUpload}, names)
}
