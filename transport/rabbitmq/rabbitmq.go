// Package rabbitmq connects flows to RabbitMQ through watermill-amqp using
// durable fan-out exchanges with one queue per topic.
package rabbitmq

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dagflow/transport"
)

const Name = "rabbitmq"

// QueueSuffix keeps dagflow queues apart from other consumers of an exchange.
const QueueSuffix = "dagflow"

var capabilities = transport.Capabilities{Name: Name, Ordered: true, Ack: true, Nack: true, Durable: true}

// Factories create the shared connection and clients; tests replace them.
var (
	ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(cfg, logger, conn)
	}
	SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
)

func init() {
	transport.Register(Name, Build, capabilities)
}

// Build opens one reconnecting connection shared by publisher and subscriber.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	uri := cfg.GetRabbitMQURL()
	if uri == "" {
		return transport.Transport{}, errors.New("rabbitmq: url is required")
	}
	amqpCfg := amqp.NewDurablePubSubConfig(uri, amqp.GenerateQueueNameTopicNameWithSuffix(QueueSuffix))

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   uri,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpCfg, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(err, closeConn(conn))
	}
	subscriber, err := SubscriberFactory(amqpCfg, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(err, publisher.Close(), closeConn(conn))
	}
	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func closeConn(conn *amqp.ConnectionWrapper) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}
