package natsadapter

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// Progress subjects. The suffix is the layer id.
const (
	SubjectTile  = "scrape.tile."
	SubjectPass  = "scrape.pass."
	SubjectLayer = "scrape.layer."
	SubjectAll   = "scrape.>"
	StreamName   = "SCRAPE_PROGRESS"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, eris.Wrap(err, "nats connect")
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, eris.Wrap(err, "jetstream")
	}

	// Ensure the progress stream exists
	cfg := nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectAll},
		Retention: nats.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, eris.Wrapf(err, "ensure stream %s", cfg.Name)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishTile reports one tile fetch attempt.
func (p *Publisher) PublishTile(ctx context.Context, ev domain.TileEvent) error {
	return p.publish(ctx, SubjectTile+strconv.Itoa(ev.LayerID), ev)
}

// PublishPass reports the result of a reconciliation.
func (p *Publisher) PublishPass(ctx context.Context, ev domain.PassEvent) error {
	return p.publish(ctx, SubjectPass+strconv.Itoa(ev.LayerID), ev)
}

// PublishRun reports a layer status change.
func (p *Publisher) PublishRun(ctx context.Context, run *domain.Run) error {
	return p.publish(ctx, SubjectLayer+strconv.Itoa(run.LayerID), run)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "marshal event")
	}
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return eris.Wrapf(err, "publish %s", subject)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
