package stocktake

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func openSession(planned int) *Session {
	return NewSession("INV2026080001", CreateSessionRequest{
		Name:         "quarterly count",
		Supervisor:   "warehouse lead",
		PlannedCount: planned,
	}, fixedNow())
}

func completedTask(id int64, discrepancy int) Task {
	now := fixedNow()
	task := NewTask(1, id, 45, "", now)
	task.ID = id
	_ = task.Start(now)
	_, _ = task.Complete(intPtr(45+discrepancy), "", now)
	return *task
}

func TestSessionStatistics(t *testing.T) {
	session := openSession(10)
	for i := int64(1); i <= 7; i++ {
		disc := 0
		if i <= 2 {
			disc = -3
		}
		require.NoError(t, session.AddTask(completedTask(i, disc)))
	}
	pending := NewTask(1, 99, 10, "", fixedNow())
	pending.ID = 99
	require.NoError(t, session.AddTask(*pending))

	require.Equal(t, 8, session.TaskTotal)
	require.Equal(t, 7, session.TaskCompleted)
	require.Equal(t, 2, session.DiscrepancyCount)
	require.InDelta(t, 70.0, session.CompletionPercentage(), 0.001)
	require.False(t, session.IsComplete())
}

func TestCompletionPercentageZeroScope(t *testing.T) {
	session := openSession(0)
	require.NoError(t, session.AddTask(completedTask(1, 0)))
	require.Equal(t, 0.0, session.CompletionPercentage())
	require.False(t, session.IsComplete())
}

func TestCancelledTasksCountTowardTotalOnly(t *testing.T) {
	session := openSession(2)
	cancelled := NewTask(1, 5, 10, "", fixedNow())
	cancelled.ID = 5
	require.NoError(t, cancelled.Cancel("scope cut", fixedNow()))
	require.NoError(t, session.AddTask(*cancelled))
	require.NoError(t, session.AddTask(completedTask(6, -1)))

	require.Equal(t, 2, session.TaskTotal)
	require.Equal(t, 1, session.TaskCompleted)
	require.Equal(t, 1, session.DiscrepancyCount)
}

func TestRemoveTaskPendingOnly(t *testing.T) {
	session := openSession(2)
	pending := NewTask(1, 7, 10, "", fixedNow())
	pending.ID = 7
	require.NoError(t, session.AddTask(*pending))
	require.NoError(t, session.AddTask(completedTask(8, 0)))

	require.True(t, shared.IsInvalidState(session.RemoveTask(8)))
	require.NoError(t, session.RemoveTask(7))
	require.Equal(t, 1, session.TaskTotal)
	require.ErrorIs(t, session.RemoveTask(123), shared.ErrNotFound)
}

func TestCloseIsIrreversible(t *testing.T) {
	session := openSession(1)
	require.NoError(t, session.AddTask(completedTask(1, 0)))

	require.NoError(t, session.Close(fixedNow()))
	require.Equal(t, SessionStatusClosed, session.Status)
	require.NotNil(t, session.ClosedAt)

	require.True(t, shared.IsInvalidState(session.Close(fixedNow())))
	require.True(t, shared.IsInvalidState(session.AddTask(completedTask(2, 0))))
}
