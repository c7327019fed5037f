package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alertdesk/internal/domain"
	"alertdesk/internal/logging"
	"alertdesk/internal/normalize"

	amqp "github.com/rabbitmq/amqp091-go"
)

type stubSink struct {
	mu       sync.Mutex
	err      error
	payloads []normalize.Payload
	sources  []string
}

func (s *stubSink) IngestDetection(_ context.Context, source string, payload normalize.Payload) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	s.sources = append(s.sources, source)
	if s.err != nil {
		return domain.Alert{}, s.err
	}
	return domain.Alert{ID: "id-1", Type: domain.AlertTypeDoS, Timestamp: time.Now()}, nil
}

type settlement struct {
	op      string
	tag     uint64
	requeue bool
}

type fakeAcknowledger struct {
	settled []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.settled = append(a.settled, settlement{op: "ack", tag: tag})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.settled = append(a.settled, settlement{op: "nack", tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.settled = append(a.settled, settlement{op: "reject", tag: tag, requeue: requeue})
	return nil
}

func TestProcessDispositions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		sinkErr error
		want    disposition
		calls   int
	}{
		{name: "stored", body: `{"src":"10.0.0.5","dst":"10.0.0.1"}`, want: dispositionAck, calls: 1},
		{name: "empty body", body: "  ", want: dispositionDrop},
		{name: "not json", body: "packet", want: dispositionDrop},
		{name: "json array", body: `[1,2]`, want: dispositionDrop},
		{name: "json null", body: `null`, want: dispositionDrop},
		{name: "validation", body: `{}`, sinkErr: domain.NewValidationError("type", "cannot infer"), want: dispositionDrop, calls: 1},
		{name: "persistence", body: `{"amount":1}`, sinkErr: domain.NewPersistenceError("insert", errors.New("down")), want: dispositionRetry, calls: 1},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sink := &stubSink{err: tc.sinkErr}
			got := process(context.Background(), sink, SourceNATS, logging.Discard(), []byte(tc.body))
			if got != tc.want {
				t.Fatalf("disposition=%v want %v", got, tc.want)
			}
			if len(sink.payloads) != tc.calls {
				t.Fatalf("sink calls=%d want %d", len(sink.payloads), tc.calls)
			}
		})
	}
}

func TestDecodePayloadKeepsNumbers(t *testing.T) {
	t.Parallel()

	payload, err := decodePayload([]byte(`{"amt": 12.50, "trans_num": "t-1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := payload["amt"].(interface{ Float64() (float64, error) }); !ok {
		t.Fatalf("expected json.Number, got %T", payload["amt"])
	}
}

func TestAMQPConsumerSettlesDeliveries(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	consumer := newAMQPConsumer(sink, logging.Discard(), 0)
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"source":"10.0.0.5","destination":"10.0.0.1"}`)}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`not json`)}
	close(deliveries)
	consumer.run(deliveries)

	sink.err = domain.NewPersistenceError("insert", errors.New("down"))
	retry := make(chan amqp.Delivery, 1)
	retry <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte(`{"amount":3}`)}
	close(retry)
	newAMQPConsumer(sink, logging.Discard(), 0).run(retry)

	want := []settlement{
		{op: "ack", tag: 1},
		{op: "reject", tag: 2},
		{op: "nack", tag: 3, requeue: true},
	}
	if len(ack.settled) != len(want) {
		t.Fatalf("settled=%+v", ack.settled)
	}
	for i := range want {
		if ack.settled[i] != want[i] {
			t.Fatalf("settlement %d = %+v, want %+v", i, ack.settled[i], want[i])
		}
	}
	if sink.sources[0] != SourceAMQP {
		t.Fatalf("source=%q", sink.sources[0])
	}
	select {
	case <-consumer.done:
	default:
		t.Fatalf("run must close done when deliveries end")
	}
}

func TestAMQPRequeueWaitsForDelay(t *testing.T) {
	t.Parallel()

	sink := &stubSink{err: domain.NewPersistenceError("insert", errors.New("down"))}
	ack := &fakeAcknowledger{}
	consumer := newAMQPConsumer(sink, logging.Discard(), 80*time.Millisecond)

	started := time.Now()
	consumer.handle(amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: []byte(`{"amount":3}`)})
	if elapsed := time.Since(started); elapsed < 80*time.Millisecond {
		t.Fatalf("requeue happened after %s, want at least 80ms", elapsed)
	}
	if len(ack.settled) != 1 || ack.settled[0] != (settlement{op: "nack", tag: 7, requeue: true}) {
		t.Fatalf("settled=%+v", ack.settled)
	}
}

func TestAMQPCloseCutsRequeueDelayShort(t *testing.T) {
	t.Parallel()

	sink := &stubSink{err: domain.NewPersistenceError("insert", errors.New("down"))}
	ack := &fakeAcknowledger{}
	consumer := newAMQPConsumer(sink, logging.Discard(), time.Hour)

	handled := make(chan struct{})
	go func() {
		consumer.handle(amqp.Delivery{Acknowledger: ack, DeliveryTag: 8, Body: []byte(`{"amount":3}`)})
		close(handled)
	}()
	time.Sleep(20 * time.Millisecond)
	if err := consumer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not interrupt the requeue delay")
	}
	if len(ack.settled) != 1 || ack.settled[0].op != "nack" {
		t.Fatalf("settled=%+v", ack.settled)
	}
}
