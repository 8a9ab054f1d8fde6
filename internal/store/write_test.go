package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

func TestAppend_WritesEventsAndResponse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	events := []order.Event{
		createTestEvent(1, "o-1", "cmd-1", order.TableOpened{TableID: "t-1", GuestCount: 2}),
		createTestEvent(2, "o-1", "cmd-1", order.OrderInfoUpdated{}),
	}
	events[1].EventID = "evt-2"
	resp := order.Succeeded("cmd-1", "o-1")

	require.NoError(t, s.Append(ctx, events, resp))

	last, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	got, found, err := s.LookupResponse(ctx, "cmd-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, resp, got)
}

func TestAppend_DuplicateCommandWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := []order.Event{createTestEvent(1, "o-1", "cmd-1", order.TableOpened{TableID: "t-1"})}
	require.NoError(t, s.Append(ctx, first, order.Succeeded("cmd-1", "o-1")))

	second := []order.Event{createTestEvent(2, "o-2", "cmd-1", order.TableOpened{TableID: "t-2"})}
	second[0].EventID = "evt-other"
	err := s.Append(ctx, second, order.Succeeded("cmd-1", "o-2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateCommand))

	all, err := s.ReadAllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAppend_SequenceCollisionIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx,
		[]order.Event{createTestEvent(1, "o-1", "cmd-1", order.TableOpened{TableID: "t-1"})},
		order.Succeeded("cmd-1", "o-1")))

	// Second event reuses sequence 1: the whole append must roll back.
	batch := []order.Event{
		createTestEvent(2, "o-1", "cmd-2", order.OrderInfoUpdated{}),
		createTestEvent(1, "o-1", "cmd-2", order.OrderInfoUpdated{}),
	}
	batch[1].EventID = "evt-dup-seq"
	err := s.Append(ctx, batch, order.Succeeded("cmd-2", "o-1"))
	require.Error(t, err)

	last, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)

	_, found, err := s.LookupResponse(ctx, "cmd-2")
	require.NoError(t, err)
	assert.False(t, found, "response must not survive a failed append")
}

func TestAppend_RejectsEmptyBatch(t *testing.T) {
	s := createTestStore(t)
	err := s.Append(context.Background(), nil, order.Succeeded("cmd-1", "o-1"))
	assert.Error(t, err)
}

func TestAppend_RejectsMissingPayload(t *testing.T) {
	s := createTestStore(t)
	ev := createTestEvent(1, "o-1", "cmd-1", order.TableOpened{})
	ev.Payload = nil
	err := s.Append(context.Background(), []order.Event{ev}, order.Succeeded("cmd-1", "o-1"))
	assert.Error(t, err)
}

func TestRecordRejection_ReplayedAndWritesNoEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	resp := order.Rejected("cmd-bad", order.Errorf(order.ErrInvalidAmount, "amount must be positive"))
	require.NoError(t, s.RecordRejection(ctx, resp))
	// Recording again keeps the first response.
	require.NoError(t, s.RecordRejection(ctx,
		order.Rejected("cmd-bad", order.Errorf(order.ErrOrderNotFound, "other"))))

	got, found, err := s.LookupResponse(ctx, "cmd-bad")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, resp, got)

	last, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	var accepted int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT accepted FROM command_responses WHERE command_id = ?`, "cmd-bad").Scan(&accepted))
	assert.Zero(t, accepted)
}

func TestRecordRejection_BlocksLaterAppend(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRejection(ctx,
		order.Rejected("cmd-1", order.Errorf(order.ErrTableOccupied, "occupied"))))

	err := s.Append(ctx,
		[]order.Event{createTestEvent(1, "o-1", "cmd-1", order.TableOpened{TableID: "t-1"})},
		order.Succeeded("cmd-1", "o-1"))
	assert.ErrorIs(t, err, ErrDuplicateCommand)
}

func TestRecordRejection_RefusesSuccess(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordRejection(context.Background(), order.Succeeded("cmd-1", "o-1"))
	assert.Error(t, err)
}
