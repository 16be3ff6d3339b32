package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"opsmemory/internal/logger"
)

// Config configures the NATS subscriber.
type Config struct {
	URL         string
	Subject     string
	Queue       string
	Buffer      int
	PollTimeout time.Duration
}

// Subscriber receives producer event payloads from a NATS subject. With a
// queue group set, several instances share the stream.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	msgs    chan *nats.Msg
	timeout time.Duration
}

// NewSubscriber connects and subscribes.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("opsmemory"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s, err := Subscribe(nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

// Subscribe attaches to an existing connection. Close drains the
// subscription and closes nc.
func Subscribe(nc *nats.Conn, cfg Config) (*Subscriber, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	msgs := make(chan *nats.Msg, cfg.Buffer)
	var (
		sub *nats.Subscription
		err error
	)
	if cfg.Queue != "" {
		sub, err = nc.ChanQueueSubscribe(cfg.Subject, cfg.Queue, msgs)
	} else {
		sub, err = nc.ChanSubscribe(cfg.Subject, msgs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Subject, err)
	}
	logger.Infof("NATS subscriber on %s (queue=%q)", cfg.Subject, cfg.Queue)
	return &Subscriber{nc: nc, sub: sub, msgs: msgs, timeout: cfg.PollTimeout}, nil
}

// Pop returns the next payload, or nil, nil when none arrives within the
// poll timeout.
func (s *Subscriber) Pop(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg := <-s.msgs:
		return msg.Data, nil
	}
}

// Close unsubscribes and closes the connection.
func (s *Subscriber) Close() error {
	if err := s.sub.Unsubscribe(); err != nil {
		logger.Warnf("NATS unsubscribe: %v", err)
	}
	s.nc.Close()
	return nil
}
