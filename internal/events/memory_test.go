package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasegate/internal/domain"
	"phasegate/internal/events"
)

func TestMemoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	var m events.Memory
	for _, wp := range []string{"wp1", "wp2", "wp1"} {
		require.NoError(t, m.RecordTransition(ctx, domain.TransitionEvent{WorkPackageID: wp, Type: "transition.blocked"}))
	}
	got, err := m.ListTransitions(ctx, "wp1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)

	all, err := m.ListTransitions(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
