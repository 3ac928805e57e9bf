// Package kafka connects flows to Apache Kafka through watermill-kafka.
package kafka

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dagflow/transport"
)

const Name = "kafka"

// DefaultClientID identifies dagflow to the brokers when none is configured.
const DefaultClientID = "dagflow"

var capabilities = transport.Capabilities{
	Name:           Name,
	Ordered:        true,
	Ack:            true,
	Durable:        true,
	MaxMessageSize: 1 << 20,
}

// PublisherFactory and SubscriberFactory create the clients; tests replace
// them.
var (
	PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return kafka.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return kafka.NewSubscriber(cfg, logger)
	}
)

func init() {
	transport.Register(Name, Build, capabilities)
}

// Build connects a synchronous publisher and a consumer-group subscriber to
// the configured brokers.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, errors.New("kafka: no brokers configured")
	}
	clientID := cfg.GetKafkaClientID()
	if clientID == "" {
		clientID = DefaultClientID
	}

	pubSarama := kafka.DefaultSaramaSyncPublisherConfig()
	pubSarama.ClientID = clientID
	publisher, err := PublisherFactory(kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: pubSarama,
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subSarama := kafka.DefaultSaramaSubscriberConfig()
	subSarama.ClientID = clientID
	subscriber, err := SubscriberFactory(kafka.SubscriberConfig{
		Brokers:               brokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
		OverwriteSaramaConfig: subSarama,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(err, publisher.Close())
	}

	logger.Info("Kafka transport ready", watermill.LogFields{
		"brokers":        len(brokers),
		"consumer_group": cfg.GetKafkaConsumerGroup(),
		"client_id":      clientID,
	})
	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
