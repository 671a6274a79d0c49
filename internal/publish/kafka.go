// Package publish streams executions to downstream consumers.
package publish

import (
	"context"
	"errors"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/metrics"
	"matchbook/internal/protocol"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic        = "matchbook.executions"
	defaultWriteTimeout = 5 * time.Second
)

var ErrNoBrokers = errors.New("no kafka brokers configured")

type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes both execution reports of every trade to a topic,
// keyed by symbol so one instrument's executions stay ordered within a
// partition.
type KafkaPublisher struct {
	topic   string
	timeout time.Duration
	writer  messageWriter
}

func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(topic, cfg.WriteTimeout, writer), nil
}

func newKafkaPublisher(topic string, timeout time.Duration, writer messageWriter) *KafkaPublisher {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &KafkaPublisher{topic: topic, timeout: timeout, writer: writer}
}

// ReportTrades implements engine.Reporter.
func (p *KafkaPublisher) ReportTrades(symbol string, trades common.Trades) error {
	msgs, err := p.messages(symbol, trades)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}

	metrics.PublishedMessagesTotal.WithLabelValues(p.topic).Add(float64(len(msgs)))
	log.Debug().
		Str("symbol", symbol).
		Str("topic", p.topic).
		Int("messages", len(msgs)).
		Msg("published executions")
	return nil
}

func (p *KafkaPublisher) messages(symbol string, trades common.Trades) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, 2*len(trades))
	for _, trade := range trades {
		bid, ask := protocol.NewExecutionReports(trade)
		for _, report := range []protocol.Report{bid, ask} {
			value, err := report.Serialize()
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, kafka.Message{
				Key:   []byte(symbol),
				Value: value,
				Headers: []kafka.Header{
					{Key: "side", Value: []byte(report.Side.String())},
					{Key: "exec_id", Value: []byte(report.ExecID.String())},
				},
				Time: time.Unix(0, int64(report.Timestamp)),
			})
		}
	}
	return msgs, nil
}

// Close flushes pending writes and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
