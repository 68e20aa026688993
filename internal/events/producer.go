// Package events carries order invalidations between orderdesk instances
// over Kafka, so that every instance drops stale cached reads and refreshes
// its live views after a mutation anywhere.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/pkg/models"
)

const DefaultTopic = "orders.changed"

type OrderChangedEvent struct {
	OrderID   string    `json:"order_id,omitempty"`
	Action    string    `json:"action"`
	List      bool      `json:"list"`
	Source    string    `json:"source"`
	EventTime time.Time `json:"event_time"`
}

func (e OrderChangedEvent) Invalidation() models.Invalidation {
	return models.Invalidation{List: e.List, OrderID: e.OrderID, Reason: e.Action}
}

func newConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Version = sarama.V2_6_0_0
	return config
}

// Brokers splits a comma-separated broker list.
func Brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, newConfig())
}

// Publisher announces successful mutations. It is an actions.Invalidator.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	source   string
	now      func() time.Time
	logger   *logrus.Logger
}

func NewPublisher(producer sarama.SyncProducer, topic, source string, logger *logrus.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		source:   source,
		now:      time.Now,
		logger:   logger,
	}
}

// Invalidate publishes inv. A failed publish is logged; the mutation has
// already happened and other instances fall back to cache expiry.
func (p *Publisher) Invalidate(ctx context.Context, inv models.Invalidation) {
	event := OrderChangedEvent{
		OrderID:   inv.OrderID,
		Action:    inv.Reason,
		List:      inv.List,
		Source:    p.source,
		EventTime: p.now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal order changed event")
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("order_id", event.OrderID).Error("Failed to send message to Kafka")
		return
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     p.topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  event.OrderID,
		"action":    event.Action,
	}).Info("Event published to Kafka")
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
