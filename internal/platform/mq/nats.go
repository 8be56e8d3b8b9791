package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close()
}

type natsPublisher struct {
	conn *nats.Conn
}

func NewPublisher(url string) (Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("ttrpg-tracker"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &natsPublisher{conn: conn}, nil
}

func (n *natsPublisher) Publish(_ context.Context, subject string, data []byte) error {
	return n.conn.Publish(subject, data)
}

func (n *natsPublisher) Close() {
	if n.conn != nil {
		n.conn.Drain()
		n.conn.Close()
	}
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (noopPublisher) Close()                                        {}

type fanout []Publisher

// Fanout delivers every message to each publisher in order and joins their errors.
func Fanout(pubs ...Publisher) Publisher {
	return fanout(pubs)
}

func (f fanout) Publish(ctx context.Context, subject string, data []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() {
	for _, p := range f {
		p.Close()
	}
}
