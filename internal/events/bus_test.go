package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

func collectAvailable(ch <-chan Event) []Event {
	var got []Event
	for {
		select {
		case event := <-ch:
			got = append(got, event)
		case <-time.After(50 * time.Millisecond):
			return got
		}
	}
}

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ctx := context.Background()

	jobID := types.NewID()
	all, cleanupAll := bus.Subscribe(ctx, Filter{}, 10)
	defer cleanupAll()
	filtered, cleanupFiltered := bus.Subscribe(ctx, Filter{JobID: jobID}, 10)
	defer cleanupFiltered()

	require.NoError(t, bus.Publish(ctx, Event{Type: EventProgress, JobID: jobID, Sequence: 1}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventProgress, JobID: types.NewID(), Sequence: 1}))

	assert.Len(t, collectAvailable(all), 2)

	got := collectAvailable(filtered)
	require.Len(t, got, 1)
	assert.Equal(t, jobID, got[0].JobID)
}

func TestBusFiltersByEventType(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ctx := context.Background()

	terminalOnly, cleanup := bus.Subscribe(ctx, Filter{
		Types: []EventType{EventJobComplete, EventCancelled},
	}, 10)
	defer cleanup()

	jobID := types.NewID()
	require.NoError(t, bus.Publish(ctx, Event{Type: EventProgress, JobID: jobID}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventToken, JobID: jobID}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventJobComplete, JobID: jobID}))

	got := collectAvailable(terminalOnly)
	require.Len(t, got, 1)
	assert.Equal(t, EventJobComplete, got[0].Type)
}

func TestBusDropsForSlowSubscriberOnly(t *testing.T) {
	var droppedCount int
	bus := NewEventBus(WithErrorHandler(func(err error, ctx map[string]any) {
		droppedCount++
	}))
	defer bus.Close()
	ctx := context.Background()

	slow, cleanupSlow := bus.Subscribe(ctx, Filter{}, 1)
	defer cleanupSlow()
	fast, cleanupFast := bus.Subscribe(ctx, Filter{}, 10)
	defer cleanupFast()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, Event{Type: EventProgress, Sequence: int64(i + 1)}))
	}

	assert.Len(t, collectAvailable(fast), 5, "fast subscriber sees everything")
	assert.Len(t, collectAvailable(slow), 1, "slow subscriber keeps only its buffer")
	assert.Equal(t, 4, droppedCount)
}

func TestBusClosedRejectsPublish(t *testing.T) {
	bus := NewEventBus()
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), Event{Type: EventProgress}))
	assert.NoError(t, bus.Close(), "close is idempotent")
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ctx := context.Background()

	_, cleanup := bus.Subscribe(ctx, Filter{}, 10)
	assert.Equal(t, 1, bus.SubscriberCount())
	cleanup()
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestEmitterAssignsOrderedSequences(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ctx := context.Background()

	jobID := types.NewID()
	ch, cleanup := bus.Subscribe(ctx, Filter{JobID: jobID}, 50)
	defer cleanup()

	emitter := NewEmitter(bus, jobID, types.NewID())
	for i := 0; i < 5; i++ {
		emitter.Progress(ctx, stage.StageGeneration, float64(i*20), fmt.Sprintf("step %d", i))
	}
	emitter.JobComplete(ctx, JobCompletePayload{Success: true})

	got := collectAvailable(ch)
	require.Len(t, got, 6)
	for i, event := range got {
		assert.Equal(t, int64(i+1), event.Sequence)
	}
	assert.Equal(t, EventJobComplete, got[5].Type)
}

func TestEmitterConcurrentPublishKeepsDeliveryOrder(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ctx := context.Background()

	jobID := types.NewID()
	const goroutines = 8
	const perGoroutine = 25
	ch, cleanup := bus.Subscribe(ctx, Filter{JobID: jobID}, goroutines*perGoroutine)
	defer cleanup()

	emitter := NewEmitter(bus, jobID, "")

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				emitter.Progress(ctx, stage.StageGeneration, float64(g*perGoroutine+i)/2, "sibling progress")
			}
		}(g)
	}
	wg.Wait()

	got := collectAvailable(ch)
	require.Len(t, got, goroutines*perGoroutine)

	lastSeq := int64(0)
	lastPct := -1.0
	for _, event := range got {
		assert.Equal(t, lastSeq+1, event.Sequence, "sequences arrive in assignment order")
		lastSeq = event.Sequence

		pct := event.Payload.(ProgressPayload).Percentage
		assert.GreaterOrEqual(t, pct, lastPct, "percentage never decreases in delivery order")
		lastPct = pct
	}
}

func TestEmitterPercentageNeverDecreases(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ctx := context.Background()

	jobID := types.NewID()
	ch, cleanup := bus.Subscribe(ctx, Filter{JobID: jobID}, 50)
	defer cleanup()

	emitter := NewEmitter(bus, jobID, "")
	emitter.Progress(ctx, stage.StageGeneration, 40, "")
	emitter.Progress(ctx, stage.StageGeneration, 25, "")
	emitter.Progress(ctx, stage.StageGeneration, 60, "")

	got := collectAvailable(ch)
	require.Len(t, got, 3)

	last := -1.0
	for _, event := range got {
		payload := event.Payload.(ProgressPayload)
		assert.GreaterOrEqual(t, payload.Percentage, last)
		last = payload.Percentage
	}
	assert.Equal(t, 40.0, got[1].Payload.(ProgressPayload).Percentage, "regression clamped up")
}

func TestEmitterSuppressesEventsAfterTerminal(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ctx := context.Background()

	jobID := types.NewID()
	ch, cleanup := bus.Subscribe(ctx, Filter{JobID: jobID}, 50)
	defer cleanup()

	emitter := NewEmitter(bus, jobID, "")
	emitter.Cancelled(ctx, CancelledPayload{})
	emitter.Progress(ctx, stage.StageGeneration, 80, "late")
	emitter.JobComplete(ctx, JobCompletePayload{Success: true})

	got := collectAvailable(ch)
	require.Len(t, got, 1, "nothing follows a terminal event")
	assert.Equal(t, EventCancelled, got[0].Type)
}
