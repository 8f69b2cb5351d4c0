package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 3 {
		t.Fatalf("WorkQueueNames len = %d, want 3", len(work))
	}

	expected := map[string]struct{}{
		"bulk.sms":   {},
		"bulk.voice": {},
		"bulk.email": {},
	}
	for _, name := range work {
		if _, ok := expected[name]; !ok {
			t.Fatalf("unexpected queue name: %s", name)
		}
	}

	dlq := DLQNames()
	if len(dlq) != 3 {
		t.Fatalf("DLQNames len = %d, want 3", len(dlq))
	}
	for _, name := range dlq {
		if _, ok := expected[name[len("dlq."):]]; !ok {
			t.Fatalf("unexpected dlq name: %s", name)
		}
	}
}

func TestQueueName(t *testing.T) {
	if got := QueueName(domain.ChannelSMS); got != "bulk.sms" {
		t.Fatalf("QueueName = %s, want bulk.sms", got)
	}
	if got := DLQName(domain.ChannelEmail); got != "dlq.bulk.email" {
		t.Fatalf("DLQName = %s, want dlq.bulk.email", got)
	}
}

func validMessage() BulkJobMessage {
	return BulkJobMessage{
		JobID:    "job-1",
		Channel:  domain.ChannelSMS,
		Messages: []domain.Message{{Destination: "+12015550123", Body: "hi"}},
	}
}

func TestBulkJobMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BulkJobMessage)
		wantErr bool
	}{
		{name: "valid", mutate: func(*BulkJobMessage) {}},
		{name: "empty job id", mutate: func(m *BulkJobMessage) { m.JobID = " " }, wantErr: true},
		{name: "invalid channel", mutate: func(m *BulkJobMessage) { m.Channel = "FAX" }, wantErr: true},
		{name: "no messages", mutate: func(m *BulkJobMessage) { m.Messages = nil }, wantErr: true},
		{name: "negative concurrency", mutate: func(m *BulkJobMessage) { m.Concurrency = -1 }, wantErr: true},
		{name: "negative delay", mutate: func(m *BulkJobMessage) { m.DelayMS = -5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(&msg)

			err := msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type fakeAcknowledger struct {
	acked    bool
	nacked   bool
	requeue  bool
	rejected bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(uint64, bool) error {
	f.rejected = true
	return nil
}

func TestHandleDelivery(t *testing.T) {
	valid, err := json.Marshal(validMessage())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	invalid, err := json.Marshal(BulkJobMessage{JobID: "job-2", Channel: domain.ChannelSMS})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		want       fakeAcknowledger
		wantCalled bool
	}{
		{name: "handled", body: valid, want: fakeAcknowledger{acked: true}, wantCalled: true},
		{name: "handler failure is dead-lettered", body: valid, handlerErr: errors.New("no dispatcher"), want: fakeAcknowledger{nacked: true}, wantCalled: true},
		{name: "malformed json", body: []byte("{"), want: fakeAcknowledger{rejected: true}},
		{name: "invalid payload", body: invalid, want: fakeAcknowledger{rejected: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			consumer := NewRabbitMQConsumer(nil, 1, zap.NewNop())

			called := false
			handler := func(_ context.Context, msg BulkJobMessage) error {
				called = true
				if msg.JobID != "job-1" {
					t.Errorf("JobID = %s, want job-1", msg.JobID)
				}
				return tt.handlerErr
			}

			err := consumer.handleDelivery(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  1,
				Body:         tt.body,
			}, handler)
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}
			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if *ack != tt.want {
				t.Fatalf("ack state = %+v, want %+v", *ack, tt.want)
			}
		})
	}
}

func TestPublisherRejectsInvalidInput(t *testing.T) {
	var nilPublisher *RabbitMQPublisher
	if err := nilPublisher.Publish(context.Background(), "bulk.sms", validMessage()); err == nil {
		t.Fatal("expected error for uninitialized publisher")
	}

	p := NewRabbitMQPublisher(&RabbitMQ{url: "amqp://localhost"})
	if err := p.Publish(context.Background(), "", validMessage()); err == nil {
		t.Fatal("expected error for empty queue name")
	}
	if err := p.Publish(context.Background(), "bulk.sms", BulkJobMessage{}); err == nil {
		t.Fatal("expected error for invalid message")
	}
}

type fakeDeclarer struct {
	exchanges []string
	queues    map[string]amqp.Table
	bindings  map[string]string
}

func (f *fakeDeclarer) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.exchanges = append(f.exchanges, name)
	return nil
}

func (f *fakeDeclarer) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if f.queues == nil {
		f.queues = make(map[string]amqp.Table)
	}
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeDeclarer) QueueBind(name, key, _ string, _ bool, _ amqp.Table) error {
	if f.bindings == nil {
		f.bindings = make(map[string]string)
	}
	f.bindings[name] = key
	return nil
}

func TestDeclareTopology(t *testing.T) {
	declarer := &fakeDeclarer{}
	if err := declareTopology(declarer); err != nil {
		t.Fatalf("declareTopology() error = %v", err)
	}

	if len(declarer.exchanges) != 1 || declarer.exchanges[0] != dlxExchangeName {
		t.Fatalf("exchanges = %v, want [%s]", declarer.exchanges, dlxExchangeName)
	}
	for _, channel := range supportedChannels {
		work, dlq := QueueName(channel), DLQName(channel)

		args, ok := declarer.queues[work]
		if !ok {
			t.Fatalf("work queue %s not declared", work)
		}
		if args["x-dead-letter-routing-key"] != work {
			t.Fatalf("%s dead-letter key = %v, want %s", work, args["x-dead-letter-routing-key"], work)
		}
		if _, ok := declarer.queues[dlq]; !ok {
			t.Fatalf("dlq %s not declared", dlq)
		}
		if declarer.bindings[dlq] != work {
			t.Fatalf("dlq %s bound with %q, want %q", dlq, declarer.bindings[dlq], work)
		}
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(initialBackoff); got != 2*initialBackoff {
		t.Fatalf("nextBackoff(1s) = %s, want 2s", got)
	}
	if got := nextBackoff(20 * time.Second); got != maxBackoff {
		t.Fatalf("nextBackoff(20s) = %s, want %s", got, maxBackoff)
	}
}
