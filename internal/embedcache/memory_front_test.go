package embedcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingGetter is a map-backed durable layer that counts traffic reaching
// it through the memory front.
type recordingGetter struct {
	vectors map[string][]float32
	gets    int
	puts    int
	putErr  error
}

func newRecordingGetter() *recordingGetter {
	return &recordingGetter{vectors: make(map[string][]float32)}
}

func (r *recordingGetter) Get(ctx context.Context, modelName, text string) ([]float32, bool) {
	r.gets++
	vec, ok := r.vectors[Key(modelName, text)]
	return vec, ok
}

func (r *recordingGetter) Put(ctx context.Context, modelName, text string, vec []float32, meta map[string]string) error {
	r.puts++
	if r.putErr != nil {
		return r.putErr
	}
	r.vectors[Key(modelName, text)] = vec
	return nil
}

func TestMemoryFrontReadThroughPopulatesFront(t *testing.T) {
	next := newRecordingGetter()
	next.vectors[Key("m", "warm")] = []float32{1, 2}
	front := WrapMemoryFront(next, 10, time.Minute)
	ctx := context.Background()

	vec, ok := front.Get(ctx, "m", "warm")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2}, vec)
	require.Equal(t, 1, next.gets)

	// Repeat reads are absorbed by the front.
	_, ok = front.Get(ctx, "m", "warm")
	require.True(t, ok)
	require.Equal(t, 1, next.gets)
}

func TestMemoryFrontPutWritesThroughAndPopulates(t *testing.T) {
	next := newRecordingGetter()
	front := WrapMemoryFront(next, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, front.Put(ctx, "m", "fresh", []float32{3, 4}, nil))
	require.Equal(t, 1, next.puts)

	vec, ok := front.Get(ctx, "m", "fresh")
	require.True(t, ok)
	require.Equal(t, []float32{3, 4}, vec)
	require.Zero(t, next.gets)
}

func TestMemoryFrontPutFailureDoesNotPopulate(t *testing.T) {
	next := newRecordingGetter()
	next.putErr = fmt.Errorf("disk full")
	front := WrapMemoryFront(next, 10, time.Minute)
	ctx := context.Background()

	require.Error(t, front.Put(ctx, "m", "lost", []float32{1}, nil))
	_, ok := front.Get(ctx, "m", "lost")
	require.False(t, ok)
	require.Equal(t, 1, next.gets)
}

func TestMemoryFrontTTLExpiryFallsBackToDurable(t *testing.T) {
	next := newRecordingGetter()
	front := WrapMemoryFront(next, 10, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, front.Put(ctx, "m", "short-lived", []float32{5}, nil))
	_, ok := front.Get(ctx, "m", "short-lived")
	require.True(t, ok)
	require.Zero(t, next.gets)

	time.Sleep(50 * time.Millisecond)
	vec, ok := front.Get(ctx, "m", "short-lived")
	require.True(t, ok)
	require.Equal(t, []float32{5}, vec)
	require.Equal(t, 1, next.gets)
}

func TestMemoryFrontServesStaleUntilTTLAfterDurableInvalidate(t *testing.T) {
	next := newRecordingGetter()
	front := WrapMemoryFront(next, 10, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, front.Put(ctx, "m", "removed", []float32{7}, nil))
	delete(next.vectors, Key("m", "removed"))

	// Invalidation below the front is invisible until the memory TTL lapses.
	_, ok := front.Get(ctx, "m", "removed")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = front.Get(ctx, "m", "removed")
	require.False(t, ok)
}

func TestMemoryFrontReturnsCopies(t *testing.T) {
	next := newRecordingGetter()
	front := WrapMemoryFront(next, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, front.Put(ctx, "m", "shared", []float32{1, 2}, nil))
	vec, ok := front.Get(ctx, "m", "shared")
	require.True(t, ok)
	vec[0] = 99

	again, ok := front.Get(ctx, "m", "shared")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2}, again)
}

func TestWrapMemoryFrontDisabled(t *testing.T) {
	next := newRecordingGetter()
	require.Equal(t, Getter(next), WrapMemoryFront(next, 0, time.Minute))
	require.Equal(t, Getter(next), WrapMemoryFront(next, 10, 0))
	require.Nil(t, WrapMemoryFront(nil, 10, time.Minute))
}