package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_FollowsBaseAndMultiplier(t *testing.T) {
	assert.Equal(t, 5*time.Minute, BackoffDelay(1))
	assert.Equal(t, 15*time.Minute, BackoffDelay(2))
	assert.Equal(t, 45*time.Minute, BackoffDelay(3))
}

func TestBackoffDelay_ClampsBelowOne(t *testing.T) {
	assert.Equal(t, BackoffDelay(1), BackoffDelay(0))
	assert.Equal(t, BackoffDelay(1), BackoffDelay(-5))
}
