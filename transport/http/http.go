// Package http exchanges messages as HTTP requests through watermill-http.
// Publishing POSTs to <publisher url><topic>; subscribing serves /<topic> on
// the configured server address.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dagflow/transport"
)

const Name = "http"

var capabilities = transport.Capabilities{Name: Name}

// Factories create the clients; tests replace them.
var (
	PublisherFactory = func(cfg wmhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return wmhttp.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(addr string, cfg wmhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return wmhttp.NewSubscriber(addr, cfg, logger)
	}
)

func init() {
	transport.Register(Name, Build, capabilities)
}

// TopicURL joins the publisher base URL and a topic.
func TopicURL(base, topic string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base + topic
	}
	return base + "/" + topic
}

func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	addr := cfg.GetHTTPServerAddress()
	if addr == "" {
		return transport.Transport{}, errors.New("http: server address is required")
	}
	base := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			return wmhttp.DefaultMarshalMessageFunc(TopicURL(base, topic), msg)
		},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(addr, wmhttp.SubscriberConfig{
		UnmarshalMessageFunc: wmhttp.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(err, publisher.Close())
	}

	if s, ok := subscriber.(*wmhttp.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("HTTP subscriber server stopped", err, watermill.LogFields{"address": addr})
			}
		}()
	}
	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
