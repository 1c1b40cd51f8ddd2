package redis

import (
	"context"
	"testing"
	"time"

	"events-cache/db"
	"events-cache/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStatusDAO_StatusAndHistory(t *testing.T) {
	ctx := context.Background()
	dao := NewRedisStatusDAO(db.NewStaticProvider(db.NewMockRedisClient()), 2, time.Second)

	status, err := dao.ReadStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)

	for i, state := range []models.RunState{models.RunStateRunning, models.RunStateFailed, models.RunStateCompleted} {
		require.NoError(t, dao.WriteStatus(ctx, models.RunStatus{Status: state, EventsCount: i}))
	}

	status, err = dao.ReadStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, models.RunStateCompleted, status.Status)

	history, err := dao.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RunStateCompleted, history[0].Status)
	assert.Equal(t, models.RunStateFailed, history[1].Status)

	history, err = dao.ListHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRedisStatusDAO_Schedule(t *testing.T) {
	ctx := context.Background()
	dao := NewRedisStatusDAO(db.NewStaticProvider(db.NewMockRedisClient()), 10, time.Second)

	schedule, err := dao.ReadSchedule(ctx)
	require.NoError(t, err)
	assert.Nil(t, schedule)

	next := time.Date(2024, 3, 10, 4, 30, 0, 0, time.UTC)
	require.NoError(t, dao.WriteSchedule(ctx, models.Schedule{Hour: 4, Minute: 30, Timezone: "UTC", NextRun: next}))

	schedule, err = dao.ReadSchedule(ctx)
	require.NoError(t, err)
	require.NotNil(t, schedule)
	assert.Equal(t, 30, schedule.Minute)
	assert.True(t, schedule.NextRun.Equal(next))
}
