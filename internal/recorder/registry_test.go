package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecording(subscriberID int64, model string) *Recording {
	return newRecording(subscriberID, model, "/tmp/out", 1, newFakeCapture(), "/tmp/out/part_000.mp4")
}

func TestRegistryInsertRejectsDuplicateKey(t *testing.T) {
	reg := NewRegistry()

	require.True(t, reg.Insert(testRecording(1, "alice")))
	assert.False(t, reg.Insert(testRecording(1, "alice")))
	assert.Equal(t, 1, reg.Len())

	// Same model for a different subscriber is a distinct recording.
	assert.True(t, reg.Insert(testRecording(2, "alice")))
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryRemoveAndGet(t *testing.T) {
	reg := NewRegistry()
	rec := testRecording(7, "bianca")
	require.True(t, reg.Insert(rec))

	got, ok := reg.Get(Key{SubscriberID: 7, Model: "bianca"})
	require.True(t, ok)
	assert.Same(t, rec, got)

	reg.Remove(rec.Key())
	assert.False(t, reg.Has(rec.Key()))
	assert.Equal(t, 0, reg.Len())

	// Removing a missing key is a no-op.
	reg.Remove(rec.Key())
}

func TestRegistryForSubscriber(t *testing.T) {
	reg := NewRegistry()
	require.True(t, reg.Insert(testRecording(1, "alice")))
	require.True(t, reg.Insert(testRecording(1, "bianca")))
	require.True(t, reg.Insert(testRecording(2, "carla")))

	assert.Len(t, reg.ForSubscriber(1), 2)
	assert.Len(t, reg.ForSubscriber(2), 1)
	assert.Empty(t, reg.ForSubscriber(3))
	assert.Len(t, reg.Snapshot(), 3)
}
