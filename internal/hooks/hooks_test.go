package hooks

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventRequestReceived, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventRequestReceived, p.Event)
		assert.Equal(t, "list teams", p.String("utterance"))
		return nil
	})

	m.Emit(context.Background(), EventRequestReceived, map[string]any{"utterance": "list teams"})
	assert.True(t, called)
}

func TestManager_Emit_Order(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventReplySent, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventReplySent, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventReplySent, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_HandlerErrorContinues(t *testing.T) {
	m := testManager()

	secondCalled := false
	m.On(EventActionFinished, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("boom")
	})
	m.On(EventActionFinished, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventActionFinished, nil)
	assert.True(t, secondCalled)
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.Emit(context.Background(), EventReplySent, nil)
		m.EmitAsync(context.Background(), EventReplySent, nil)
	})
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	keepCalled := 0
	m.On(EventGatewayStart, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventGatewayStart, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventGatewayStart, "remove-me")
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, keepCalled)
	assert.Equal(t, 1, m.Count(EventGatewayStart))
}

func TestManager_EmitAsync(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	for _, name := range []string{"async1", "async2"} {
		m.On(EventScheduleRun, name, func(_ context.Context, _ Payload) error {
			count.Add(1)
			wg.Done()
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventScheduleRun, nil)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not complete in time")
	}
	assert.Equal(t, int32(2), count.Load())
}

func TestManager_EventsSorted(t *testing.T) {
	m := testManager()
	m.On(EventReplySent, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventIntentClassified, "h2", func(_ context.Context, _ Payload) error { return nil })

	assert.Equal(t, []string{EventIntentClassified, EventReplySent}, m.Events())
}

func TestManager_Trace(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewStyled(&buf, "debug", "json")
	m := NewManager(log)
	m.Trace(log)

	for _, event := range AllEvents {
		require.Equal(t, 1, m.Count(event), event)
	}

	m.Emit(context.Background(), EventIntentClassified, map[string]any{"intent": "fetch"})
	assert.Contains(t, buf.String(), `"intent":"fetch"`)
	assert.Contains(t, buf.String(), `"event":"intent_classified"`)
}
