package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/store"
)

func TestReplay_EmptyLog(t *testing.T) {
	out, err := execute(t, "", "replay", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 0 orders, 0 events (max seq 0)")
	assert.Contains(t, out, "✓ All orders verified deterministic")
}

func TestReplay_Deterministic(t *testing.T) {
	db := tempDB(t)
	served := openTable(t, db, "T1")
	serveOrder(t, db, served)
	open := openTable(t, db, "T2")

	out, err := execute(t, "", "replay", "--db", db, "--format", "json")
	require.NoError(t, err, out)

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.AllDeterministic)
	assert.Equal(t, 2, result.TotalOrders)
	assert.Equal(t, 5, result.TotalEvents)
	assert.Equal(t, int64(5), result.MaxSequence)
	assert.Empty(t, result.Gaps)

	byID := map[string]ReplayOrderResult{}
	for _, r := range result.Orders {
		byID[r.OrderID] = r
	}
	assert.Equal(t, 4, byID[served].Events)
	assert.Equal(t, order.StatusCompleted, byID[served].Status)
	assert.Equal(t, 1, byID[open].Events)
	assert.NotEmpty(t, byID[open].Checksum)
}

func TestReplay_SingleOrder(t *testing.T) {
	db := tempDB(t)
	id := openTable(t, db, "T1")
	openTable(t, db, "T2")

	out, err := execute(t, "", "replay", "--db", db, "--order", id, "-v")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 order, 2 events")
	assert.Contains(t, out, "✓ "+id+" ACTIVE (1 event)")
	assert.Contains(t, out, "Checksum: ")
}

func TestReplay_UnknownOrder(t *testing.T) {
	db := tempDB(t)
	openTable(t, db, "T1")

	_, err := execute(t, "", "replay", "--db", db, "--order", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// gappyLog drops one event from an otherwise valid log.
type gappyLog struct {
	engine.EventLog
	drop int64
}

func (g gappyLog) ReadAllEvents(ctx context.Context) ([]order.Event, error) {
	events, err := g.EventLog.ReadAllEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := events[:0:0]
	for _, ev := range events {
		if ev.Sequence != g.drop {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestReplayLog_DetectsGap(t *testing.T) {
	db := tempDB(t)
	openTable(t, db, "T1")
	openTable(t, db, "T2")
	openTable(t, db, "T3")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	result, err := replayLog(context.Background(), gappyLog{EventLog: st, drop: 2}, "")
	require.NoError(t, err)
	assert.False(t, result.AllDeterministic)
	assert.Equal(t, []int64{2}, result.Gaps)
	assert.Equal(t, 2, result.TotalOrders)

	var buf bytes.Buffer
	err = printReplay(&buf, result, false)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Sequence gap: expected 2")
}
