package relay

import (
	"context"
	"testing"
	"time"

	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two clients, one message, one eviction.
func TestRelayScenario(t *testing.T) {
	r := newTestRelay(t)
	sweeper := NewSweeper(r.store, r.engine, r.clock, testInterval, testLifetime)
	stop := startSweeper(t, sweeper, r.clock)
	defer stop()

	a, aID := r.connect()
	b, bID := r.connect()
	require.NotEqual(t, aID, bID)

	r.engine.HandleInbound(context.Background(), aID, []byte(`{"content":"X","iv":"I","authTag":"T"}`))

	bEnvs := b.envelopes(t)
	require.Len(t, bEnvs, 1)
	assert.Equal(t, domain.EnvelopeMessage, bEnvs[0].Type)
	assert.Equal(t, aID, bEnvs[0].SenderID)
	assert.JSONEq(t, `"X"`, string(bEnvs[0].Content))
	assert.Zero(t, a.count())
	messageID := bEnvs[0].MessageID

	for range 5 {
		r.clock.Advance(testInterval)
	}
	// Advancing in one burst may coalesce ticks; one more guarantees a sweep past the lifetime.
	assert.Eventually(t, func() bool {
		if a.count() == 1 {
			return true
		}
		r.clock.Advance(testInterval)
		return false
	}, 2*time.Second, 10*time.Millisecond)

	aEnvs := a.envelopes(t)
	require.Len(t, aEnvs, 1)
	assert.Equal(t, domain.EnvelopeDelete, aEnvs[0].Type)
	assert.Equal(t, messageID, aEnvs[0].MessageID)

	bEnvs = b.envelopes(t)
	require.Len(t, bEnvs, 2)
	assert.Equal(t, domain.EnvelopeDelete, bEnvs[1].Type)
	assert.Equal(t, messageID, bEnvs[1].MessageID)

	// A forced sweep afterwards has nothing left to delete.
	stop()
	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 2, b.count())

	assert.True(t, r.registry.Unregister(a))
	assert.False(t, r.registry.Unregister(a))
	assert.Equal(t, 1, r.registry.Len())
}
