package natsadapter

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// Subscriber consumes progress events from JetStream with durable,
// manually acknowledged consumers.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, eris.Wrap(err, "nats connect")
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, eris.Wrap(err, "jetstream")
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePasses delivers reconciliation events to handler.
func (s *Subscriber) SubscribePasses(ctx context.Context, durable string, handler func(ctx context.Context, ev domain.PassEvent) error) error {
	return subscribe(ctx, s, SubjectPass+">", durable, handler)
}

// SubscribeRuns delivers layer status changes to handler.
func (s *Subscriber) SubscribeRuns(ctx context.Context, durable string, handler func(ctx context.Context, run domain.Run) error) error {
	return subscribe(ctx, s, SubjectLayer+">", durable, handler)
}

// subscribe acks a message once handler accepts it, naks rejected messages
// for redelivery and terminates undecodable ones.
func subscribe[T any](ctx context.Context, s *Subscriber, subject, durable string, handler func(ctx context.Context, v T) error) error {
	sub, err := s.js.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, v); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return eris.Wrapf(err, "subscribe %s", subject)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
