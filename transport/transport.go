// Package transport builds the watermill publisher and subscriber pairs that
// connect flows to message brokers. Subscriber triggers consume from them and
// publish stages write to them.
//
// Every backend lives in its own sub-package and registers a Builder under
// its PubSubSystem name when imported; transport/all imports them all.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ErrUnknownTransport is returned by Build for an unregistered name.
var ErrUnknownTransport = errors.New("dagflow: unknown transport")

// Transport is a publisher and subscriber produced by one backend.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves. A pub/sub serving both is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		errs = append(errs, t.Subscriber.Close())
	}
	return errors.Join(errs...)
}

// Builder creates a transport from configuration.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config is the part of the engine configuration backends read.
// *config.Config satisfies it.
type Config interface {
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}
