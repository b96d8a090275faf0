package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS publishes sightings on a core NATS subject
type NATS struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS dials url and returns a publisher for subject.
// An empty subject uses DefaultSubject.
func ConnectNATS(url, subject string, log *zap.Logger) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = zap.NewNop()
	}

	nc, err := nats.Connect(url,
		nats.Name("machinewatch"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn("NATS error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return NewNATS(nc, subject), nil
}

// NewNATS wraps an existing connection
func NewNATS(nc *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{nc: nc, subject: subject}
}

func (p *NATS) Publish(ctx context.Context, s Sighting) error {
	data, err := s.encode()
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Machine-Address", s.IPAddress)
	msg.Header.Set("Cycle-Id", s.CycleID)

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish sighting for %s: %w", s.IPAddress, err)
	}
	return nil
}

// Close flushes pending messages and drains the connection
func (p *NATS) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.nc.FlushWithContext(ctx)
	return p.nc.Drain()
}
