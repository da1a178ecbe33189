package stream

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/friendforge/internal/logger"
)

// NATSBus carries change batches over NATS so that every api instance sees
// writes made on any other instance.
type NATSBus struct {
	conn *nats.Conn
}

func NewNATSBus(url, name string) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Errorf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("stream.NewNATSBus: %w", err)
	}
	logger.Infof("nats connected to %s", nc.ConnectedUrl())
	return &NATSBus{conn: nc}, nil
}

func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("natsBus.Publish %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("natsBus.Subscribe %s: %w", subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.Errorf("nats unsubscribe %s: %v", subject, err)
		}
	}, nil
}

func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		return fmt.Errorf("natsBus.Close: %w", err)
	}
	return nil
}
