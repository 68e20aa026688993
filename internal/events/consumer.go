package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/pkg/models"
)

// Invalidator is the local sink for events from other instances.
type Invalidator interface {
	Invalidate(ctx context.Context, inv models.Invalidation)
}

type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	handler       *consumerGroupHandler
	topics        []string
	logger        *logrus.Logger
}

type consumerGroupHandler struct {
	local  Invalidator
	source string
	logger *logrus.Logger
}

func NewConsumer(brokers []string, groupID, topic, source string, local Invalidator, logger *logrus.Logger) (*Consumer, error) {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, newConfig())
	if err != nil {
		return nil, err
	}
	if topic == "" {
		topic = DefaultTopic
	}

	return &Consumer{
		consumerGroup: consumerGroup,
		handler:       &consumerGroupHandler{local: local, source: source, logger: logger},
		topics:        []string{topic},
		logger:        logger,
	}, nil
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handleMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage applies one event locally. It reports whether the event was
// applied; malformed events and this instance's own events are skipped.
func (h *consumerGroupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) bool {
	var event OrderChangedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		h.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal order changed event")
		return false
	}
	if event.Source == h.source {
		return false
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"action":   event.Action,
		"source":   event.Source,
	}).Debug("Applying remote order change")

	h.local.Invalidate(ctx, event.Invalidation())
	return true
}
