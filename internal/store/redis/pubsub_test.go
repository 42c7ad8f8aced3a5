package redis_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/kanbu/realtime/pkg/domain"
	redisstore "github.com/kanbu/realtime/internal/store/redis"
)

func TestRoomChannel(t *testing.T) {
	t.Parallel()

	projectID := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	taskID := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		got := redisstore.RoomChannel(domain.ProjectRoom(projectID))
		assert.Equal(t, "room:project:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", got)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()

		got := redisstore.RoomChannel(domain.TaskRoom(taskID))
		assert.True(t, strings.HasPrefix(got, "room:"), "expected prefix 'room:', got %q", got)
	})

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		a := redisstore.RoomChannel(domain.ProjectRoom(projectID))
		b := redisstore.RoomChannel(domain.ProjectRoom(projectID))
		assert.Equal(t, a, b)
	})

	t.Run("different rooms produce different channels", func(t *testing.T) {
		t.Parallel()

		a := redisstore.RoomChannel(domain.ProjectRoom(projectID))
		b := redisstore.RoomChannel(domain.TaskRoom(projectID))
		assert.NotEqual(t, a, b)
	})
}
