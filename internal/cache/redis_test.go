// internal/cache/redis_test.go
package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishWithoutRedisIsNoOp(t *testing.T) {
	Rdb = nil

	err := PublishRaceResult(context.Background(), RaceResultRecord{
		RoomCode: "ABC123",
		Winner:   "Ann",
	})
	assert.NoError(t, err)
}
