package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"imgforge/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	topic   string
	payload []byte
	attrs   map[string]string
}

type fakePublisher struct {
	mu          sync.Mutex
	messages    []publishedMessage
	err         error
	hadDeadline bool
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, publishedMessage{topic: topic, payload: payload, attrs: attrs})
	return "msg-1", nil
}

func (f *fakePublisher) Close() error { return nil }

func TestEventPublisher_PublishesTerminalEvent(t *testing.T) {
	pub := &fakePublisher{}
	events := NewEventPublisher(pub, "generation-events", zerolog.Nop())

	end := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	code := model.ErrorCodeProviderSafety
	events.GenerationFinished(context.Background(), &model.Generation{
		ID:                "g1",
		UserID:            "u1",
		Status:            model.GenerationFailed,
		PresetUsed:        "anime",
		ErrorCode:         &code,
		ProcessingEndTime: &end,
		Metadata:          model.GenerationMetadata{RetryCount: 2},
	}, true)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "generation-events", msg.topic)
	assert.Equal(t, "generation.failed", msg.attrs["event_type"])

	var evt GenerationEvent
	require.NoError(t, json.Unmarshal(msg.payload, &evt))
	assert.Equal(t, "g1", evt.GenerationID)
	assert.Equal(t, model.ErrorCodeProviderSafety, evt.ErrorCode)
	assert.Equal(t, 2, evt.RetryCount)
	assert.True(t, evt.Durable)
	assert.True(t, evt.OccurredAt.Equal(end))
}

func TestEventPublisher_FailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("topic not found")}
	events := NewEventPublisher(pub, "generation-events", zerolog.Nop())

	assert.NotPanics(t, func() {
		events.GenerationFinished(context.Background(), &model.Generation{ID: "g1", Status: model.GenerationCompleted}, true)
	})
}

func TestNewEventPublisher_NopWithoutTopic(t *testing.T) {
	assert.IsType(t, NopEventPublisher{}, NewEventPublisher(&fakePublisher{}, "", zerolog.Nop()))
	assert.IsType(t, NopEventPublisher{}, NewEventPublisher(nil, "topic", zerolog.Nop()))
}

func TestEventPublisher_BoundsPublishCall(t *testing.T) {
	pub := &fakePublisher{}
	events := NewEventPublisher(pub, "generation-events", zerolog.Nop())

	events.GenerationFinished(context.Background(), &model.Generation{
		ID:     "g1",
		UserID: "u1",
		Status: model.GenerationCompleted,
	}, true)

	require.Len(t, pub.messages, 1)
	assert.True(t, pub.hadDeadline)
}
