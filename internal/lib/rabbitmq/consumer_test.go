package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked map[uint64]bool
	done   chan struct{}
}

func newFakeAcknowledger(n int) *fakeAcknowledger {
	return &fakeAcknowledger{nacked: map[uint64]bool{}, done: make(chan struct{}, n)}
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	a.acked = append(a.acked, tag)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	a.nacked[tag] = requeue
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeDeliveries struct {
	ch  chan amqp.Delivery
	err error
}

func (f *fakeDeliveries) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.ch, f.err
}

func TestConsumerMessage_AckAndNack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ack := newFakeAcknowledger(3)
	src := &fakeDeliveries{ch: make(chan amqp.Delivery, 3)}
	src.ch <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("ok")}
	src.ch <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("fail")}
	src.ch <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte("fail"), Redelivered: true}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := ConsumerMessage(ctx, src, "q", 2, log, func(body []byte) error {
		if string(body) == "fail" {
			return errors.New("smtp down")
		}
		return nil
	})
	require.NoError(t, err)

	for range 3 {
		select {
		case <-ack.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for deliveries")
		}
	}

	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, map[uint64]bool{2: true, 3: false}, ack.nacked)
}

func TestConsumerMessage_ConsumeError(t *testing.T) {
	src := &fakeDeliveries{err: errors.New("no channel")}
	err := ConsumerMessage(context.Background(), src, "q", 1, slog.New(slog.NewTextHandler(io.Discard, nil)),
		func([]byte) error { return nil })
	assert.Error(t, err)
}
