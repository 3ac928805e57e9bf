// Package nats connects flows to NATS core subjects through watermill-nats.
// Delivery is at-most-once; JetStream is not used.
package nats

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/dagflow/transport"
)

const Name = "nats"

// ConnectionName is reported to the NATS server for monitoring.
const ConnectionName = "dagflow"

var capabilities = transport.Capabilities{Name: Name, MaxMessageSize: 1 << 20}

// PublisherFactory and SubscriberFactory create the clients; tests replace
// them.
var (
	PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return wmnats.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return wmnats.NewSubscriber(cfg, logger)
	}
)

func init() {
	transport.Register(Name, Build, capabilities)
}

// connectOptions keep the connection alive across server restarts.
func connectOptions() []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(ConnectionName),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
	}
}

func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, errors.New("nats: url is required")
	}
	marshaler := &wmnats.NATSMarshaler{}
	core := wmnats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(wmnats.PublisherConfig{
		URL:         url,
		NatsOptions: connectOptions(),
		Marshaler:   marshaler,
		JetStream:   core,
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(wmnats.SubscriberConfig{
		URL:         url,
		NatsOptions: connectOptions(),
		Unmarshaler: marshaler,
		JetStream:   core,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(err, publisher.Close())
	}
	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
