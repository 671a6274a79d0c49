package publish

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/protocol"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (w *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaPublisher(t *testing.T) {
	_, err := NewKafkaPublisher(Config{})
	assert.ErrorIs(t, err, ErrNoBrokers)

	p, err := NewKafkaPublisher(Config{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, p.topic)
	assert.Equal(t, defaultWriteTimeout, p.timeout)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_ReportTrades(t *testing.T) {
	writer := &mockWriter{}
	p := newKafkaPublisher("executions", time.Second, writer)

	trades := common.Trades{
		{
			Bid: common.TradeInfo{OrderID: 1, Price: 101, Quantity: 3},
			Ask: common.TradeInfo{OrderID: 2, Price: 100, Quantity: 3},
		},
		{
			Bid: common.TradeInfo{OrderID: 1, Price: 101, Quantity: 2},
			Ask: common.TradeInfo{OrderID: 3, Price: 101, Quantity: 2},
		},
	}
	require.NoError(t, p.ReportTrades("ACME", trades))
	assert.True(t, writer.deadline)
	require.Len(t, writer.msgs, 4)

	wantOrders := []common.OrderID{1, 2, 1, 3}
	for i, msg := range writer.msgs {
		assert.Equal(t, []byte("ACME"), msg.Key)

		report, err := protocol.ReadReport(bytes.NewReader(msg.Value))
		require.NoError(t, err)
		assert.Equal(t, protocol.ExecutionReport, report.MessageType)
		assert.Equal(t, wantOrders[i], report.OrderID)
		assert.Equal(t, report.ExecID.String(), string(msg.Headers[1].Value))
	}
	assert.Equal(t, "SELL", string(writer.msgs[1].Headers[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	writer := &mockWriter{err: errors.New("broker down")}
	p := newKafkaPublisher("executions", 0, writer)

	err := p.ReportTrades("ACME", common.Trades{{
		Bid: common.TradeInfo{OrderID: 1, Price: 100, Quantity: 1},
		Ask: common.TradeInfo{OrderID: 2, Price: 100, Quantity: 1},
	}})
	assert.EqualError(t, err, "broker down")
	assert.Empty(t, writer.msgs)
}
