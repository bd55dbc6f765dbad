package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event on <prefix>.<type>
type NATSSink struct {
	pub    publisher
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(cfg config.NATSConfig) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("logflow"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSSink{pub: conn, conn: conn, prefix: cfg.SubjectPrefix}, nil
}

func (n *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event of type t is published on
func (n *NATSSink) Subject(t event.Type) string {
	if n.prefix == "" {
		return string(t)
	}
	return n.prefix + "." + string(t)
}

func (n *NATSSink) Publish(ctx context.Context, e event.Event) error {
	// NATS Publish does not take a context
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.pub.Publish(n.Subject(e.Type), data)
}

func (n *NATSSink) Close() error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn.Close()
	return err
}
