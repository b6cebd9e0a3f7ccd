package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"driver-agent/internal/logx"
)

// DispatchFunc forwards one named realtime event to the broadcast adapter.
type DispatchFunc func(event string, payload []byte)

// message is the broker frame: same envelope as the websocket channel.
type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// hook for tests
var newConsumerGroup = sarama.NewConsumerGroup

// Consumer reads broadcast events from a Kafka topic and feeds them into the
// same dispatch path the websocket transport uses. It is the fallback channel
// for deployments without a socket gateway.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	dispatch DispatchFunc
	logger   logx.Logger
}

// NewConsumer creates a Kafka consumer. Returns (nil, nil) when the broker
// settings are empty: the channel is optional.
func NewConsumer(logger logx.Logger, brokers []string, groupID, topic string, dispatch DispatchFunc) (*Consumer, error) {
	// не стартую если у кафки нет настроек
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" || strings.TrimSpace(groupID) == "" {
		return nil, nil
	}

	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := newConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		group:    group,
		topic:    topic,
		dispatch: dispatch,
		logger:   logger,
	}, nil
}

// Run blocks until the context is canceled, rejoining the group after
// transient consume errors.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}

	h := &groupHandler{c: c}

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("kafka consume error", logx.Any("err", err))
			time.Sleep(time.Second)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	return c.group.Close()
}

type groupHandler struct{ c *Consumer }

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var m message
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			h.c.logger.Warn("kafka bad json", logx.Any("err", err))
			sess.MarkMessage(msg, "")
			continue
		}
		if strings.TrimSpace(m.Event) == "" {
			h.c.logger.Warn("kafka message without event name")
			sess.MarkMessage(msg, "")
			continue
		}

		// dispatch swallows bad payloads itself, a message is never retried
		h.c.dispatch(m.Event, m.Data)
		sess.MarkMessage(msg, "")
	}
	return nil
}
