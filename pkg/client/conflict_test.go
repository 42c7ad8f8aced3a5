package client_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbu/realtime/pkg/client"
	"github.com/kanbu/realtime/pkg/domain"
)

func TestConflictDetector_CleanSaveAdvancesBaseline(t *testing.T) {
	t.Parallel()

	cd := client.NewConflictDetector(func(context.Context, uuid.UUID) client.Resolution {
		t.Error("prompt must not run on a clean save")
		return client.ResolutionDismiss
	})

	entityID := uuid.New()
	v1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	v2 := v1.Add(time.Minute)

	cd.Begin(entityID, v1)

	var sentExpected time.Time
	err := cd.Save(context.Background(), entityID,
		func(_ context.Context, expected time.Time) (time.Time, error) {
			sentExpected = expected
			return v2, nil
		},
		func(context.Context) (time.Time, error) {
			t.Error("reload must not run on a clean save")
			return time.Time{}, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, v1, sentExpected)

	baseline, ok := cd.Baseline(entityID)
	require.True(t, ok)
	assert.Equal(t, v2, baseline)
}

func TestConflictDetector_ConcurrentSaveRejectedWithPrompt(t *testing.T) {
	t.Parallel()

	// User A starts editing at v1; user B saves, bumping the entity to v2.
	// A's save must be rejected and A prompted, never silently overwritten.
	entityID := uuid.New()
	v1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	v2 := v1.Add(time.Minute)

	prompted := 0
	cd := client.NewConflictDetector(func(context.Context, uuid.UUID) client.Resolution {
		prompted++
		return client.ResolutionReload
	})
	cd.Begin(entityID, v1)

	reloaded := 0
	save := func(_ context.Context, expected time.Time) (time.Time, error) {
		if !expected.Equal(v2) {
			return time.Time{}, fmt.Errorf("stale save: %w", domain.ErrVersionConflict)
		}
		return v2.Add(time.Minute), nil
	}
	reload := func(context.Context) (time.Time, error) {
		reloaded++
		return v2, nil
	}

	err := cd.Save(context.Background(), entityID, save, reload)
	require.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, 1, prompted)
	assert.Equal(t, 1, reloaded)

	// After the reload the baseline is v2 and the next save goes through.
	baseline, _ := cd.Baseline(entityID)
	assert.Equal(t, v2, baseline)
	require.NoError(t, cd.Save(context.Background(), entityID, save, reload))
}

func TestConflictDetector_DismissKeepsStaleBaseline(t *testing.T) {
	t.Parallel()

	entityID := uuid.New()
	v1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	cd := client.NewConflictDetector(func(context.Context, uuid.UUID) client.Resolution {
		return client.ResolutionDismiss
	})
	cd.Begin(entityID, v1)

	save := func(context.Context, time.Time) (time.Time, error) {
		return time.Time{}, domain.ErrVersionConflict
	}
	reload := func(context.Context) (time.Time, error) {
		t.Error("dismiss must not reload")
		return time.Time{}, nil
	}

	err := cd.Save(context.Background(), entityID, save, reload)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	// Local edits stay; retrying without a reload is rejected again.
	err = cd.Save(context.Background(), entityID, save, reload)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	baseline, _ := cd.Baseline(entityID)
	assert.Equal(t, v1, baseline)
}

func TestConflictDetector_SaveWithoutBegin(t *testing.T) {
	t.Parallel()

	cd := client.NewConflictDetector(func(context.Context, uuid.UUID) client.Resolution {
		return client.ResolutionDismiss
	})

	err := cd.Save(context.Background(), uuid.New(),
		func(context.Context, time.Time) (time.Time, error) { return time.Time{}, nil },
		func(context.Context) (time.Time, error) { return time.Time{}, nil },
	)
	require.Error(t, err)
}
