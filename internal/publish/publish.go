// Package publish forwards decoded records to NATS, one JSON message per
// record on <prefix>.<kind>.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kstaniek/go-cave-crawler/internal/logging"
	"github.com/kstaniek/go-cave-crawler/internal/metrics"
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
	"github.com/kstaniek/go-cave-crawler/internal/transport"
)

// Conn is the subset of *nats.Conn used by the publisher.
type Conn interface {
	Publish(subj string, data []byte) error
}

var ErrOverflow = errors.New("publish queue overflow")

// Publisher queues records and publishes them from a single goroutine so the
// device reader never blocks on the network.
type Publisher struct {
	tx     *transport.AsyncTx[sensor.Record]
	prefix string
}

// New starts a publisher on conn with a queue of buf records.
func New(ctx context.Context, conn Conn, prefix string, buf int) *Publisher {
	p := &Publisher{prefix: prefix}
	send := func(r sensor.Record) error {
		data, err := Marshal(r)
		if err != nil {
			return err
		}
		return conn.Publish(p.Subject(r.Kind()), data)
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrNATSPublish)
			logging.L().Warn("nats_publish_error", "error", err)
		},
		OnAfter: metrics.IncPublished,
		OnDrop: func() error {
			metrics.IncPublishDrop()
			metrics.IncError(metrics.ErrNATSOverflow)
			return ErrOverflow
		},
	}
	p.tx = transport.NewAsyncTx(ctx, buf, send, hooks)
	return p
}

// Subject returns the subject records of kind k are published on.
func (p *Publisher) Subject(k sensor.Kind) string { return p.prefix + "." + k.String() }

// Publish queues r; it returns ErrOverflow when the queue is full.
func (p *Publisher) Publish(r sensor.Record) error { return p.tx.Send(r) }

// Close publishes what is still queued, unless the context given to New is
// done, and logs the totals.
func (p *Publisher) Close() {
	p.tx.Close()
	st := p.tx.Stats()
	logging.L().Info("nats_publish_summary", "subject", p.prefix+".>", "sent", st.Sent, "failed", st.Failed, "dropped", st.Dropped)
}

// Stats returns the publisher's queue counters.
func (p *Publisher) Stats() transport.TxStats { return p.tx.Stats() }

// Connect dials NATS with reconnects enabled forever.
func Connect(url, name string) (*nats.Conn, error) {
	l := logging.L()
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.PingInterval(time.Minute),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectBufSize(1024*1024),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("nats_reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			l.Error("nats_error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}
