// Package natspub publishes spectrum frames to a NATS subject.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/petems/spectrum-tray/internal/poller"
	"github.com/rs/zerolog"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Close()
}

// ConnAdapter adapts *nats.Conn to Conn.
type ConnAdapter struct {
	conn *nats.Conn
}

func NewConnAdapter(conn *nats.Conn) *ConnAdapter {
	return &ConnAdapter{conn: conn}
}

func (c *ConnAdapter) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func (c *ConnAdapter) Flush() error {
	return c.conn.Flush()
}

func (c *ConnAdapter) Close() {
	c.conn.Close()
}

// Connect dials url, retrying a few times before giving up.
func Connect(ctx context.Context, url string, log zerolog.Logger) (*ConnAdapter, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(url, nats.Name("spectrum-tray"))
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("of", connectAttempts).Msg("Failed to connect to NATS")
		if i == connectAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	log.Info().Str("url", url).Msg("Connected to NATS")
	return NewConnAdapter(nc), nil
}

// Subject returns the frame subject for prefix.
func Subject(prefix string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "spectrum"
	}
	return prefix + ".frames"
}

// Publisher is a poller.Sink that sends each frame as JSON.
type Publisher struct {
	conn    Conn
	subject string
	log     zerolog.Logger
}

func NewPublisher(conn Conn, prefix string, log zerolog.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: Subject(prefix),
		log:     log.With().Str("component", "natspub").Logger(),
	}
}

func (p *Publisher) Name() string { return "nats" }

func (p *Publisher) Subject() string { return p.subject }

func (p *Publisher) Publish(_ context.Context, f poller.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending frames and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Flush(); err != nil {
		p.log.Warn().Err(err).Msg("NATS flush failed")
	}
	p.conn.Close()
	p.log.Info().Msg("NATS connection closed")
}
