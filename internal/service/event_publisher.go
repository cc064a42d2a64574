package service

import (
	"context"
	"encoding/json"
	"time"

	"imgforge/internal/model"
	"imgforge/internal/pubsub"

	"github.com/rs/zerolog"
)

const eventPublishTimeout = 5 * time.Second

// GenerationEvent is published whenever a generation reaches a terminal state.
type GenerationEvent struct {
	Type          string                 `json:"type"`
	GenerationID  string                 `json:"generation_id"`
	UserID        string                 `json:"user_id"`
	Status        model.GenerationStatus `json:"status"`
	PresetUsed    string                 `json:"preset_used"`
	IsPlaceholder bool                   `json:"is_placeholder"`
	ErrorCode     string                 `json:"error_code,omitempty"`
	RetryCount    int                    `json:"retry_count"`
	Durable       bool                   `json:"durable"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// EventPublisher emits lifecycle events. Publishing is best effort and never fails the caller.
type EventPublisher interface {
	GenerationFinished(ctx context.Context, g *model.Generation, durable bool)
}

type pubsubEventPublisher struct {
	publisher pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewEventPublisher returns a no-op publisher when publisher is nil or topic is empty.
func NewEventPublisher(publisher pubsub.Publisher, topic string, logger zerolog.Logger) EventPublisher {
	if publisher == nil || topic == "" {
		return NopEventPublisher{}
	}
	return &pubsubEventPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger.With().Str("service", "EventPublisher").Logger(),
	}
}

func (p *pubsubEventPublisher) GenerationFinished(ctx context.Context, g *model.Generation, durable bool) {
	evt := generationEventFor(g, durable)
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error().Err(err).Str("generation_id", g.ID).Msg("Failed to marshal generation event")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
	defer cancel()
	msgID, err := p.publisher.Publish(ctx, p.topic, payload, map[string]string{"event_type": evt.Type})
	if err != nil {
		p.logger.Warn().Err(err).Str("generation_id", g.ID).Str("topic", p.topic).Msg("Failed to publish generation event")
		return
	}
	p.logger.Debug().Str("generation_id", g.ID).Str("message_id", msgID).Msg("Generation event published")
}

func generationEventFor(g *model.Generation, durable bool) GenerationEvent {
	evt := GenerationEvent{
		Type:          "generation." + string(g.Status),
		GenerationID:  g.ID,
		UserID:        g.UserID,
		Status:        g.Status,
		PresetUsed:    g.PresetUsed,
		IsPlaceholder: g.IsPlaceholder,
		RetryCount:    g.Metadata.RetryCount,
		Durable:       durable,
		OccurredAt:    time.Now().UTC(),
	}
	if g.ProcessingEndTime != nil {
		evt.OccurredAt = g.ProcessingEndTime.UTC()
	}
	if g.ErrorCode != nil {
		evt.ErrorCode = *g.ErrorCode
	}
	return evt
}

// NopEventPublisher discards events.
type NopEventPublisher struct{}

func (NopEventPublisher) GenerationFinished(context.Context, *model.Generation, bool) {}
