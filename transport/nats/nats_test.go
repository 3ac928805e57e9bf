package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dagflow/internal/runtime/config"
	"github.com/drblury/dagflow/transport"
)

func natsConfig() *config.Config {
	cfg := config.Defaults()
	cfg.PubSubSystem = Name
	cfg.NATSURL = "nats://localhost:4222"
	return &cfg
}

func TestBuildUsesCoreNATS(t *testing.T) {
	origPub, origSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = origPub, origSub }()

	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	var pubCfg wmnats.PublisherConfig
	var subCfg wmnats.SubscriberConfig
	PublisherFactory = func(cfg wmnats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		pubCfg = cfg
		return ps, nil
	}
	SubscriberFactory = func(cfg wmnats.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		subCfg = cfg
		return ps, nil
	}

	_, err := transport.Build(context.Background(), natsConfig(), watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", pubCfg.URL)
	assert.True(t, pubCfg.JetStream.Disabled)
	assert.True(t, subCfg.JetStream.Disabled)
	assert.Len(t, subCfg.NatsOptions, 3)
}

func TestBuildClosesPublisherOnSubscriberError(t *testing.T) {
	origPub, origSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = origPub, origSub }()

	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	PublisherFactory = func(wmnats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) { return ps, nil }
	SubscriberFactory = func(wmnats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, errors.New("no servers available")
	}

	_, err := Build(context.Background(), natsConfig(), watermill.NopLogger{})
	require.ErrorContains(t, err, "no servers available")
	assert.Error(t, ps.Publish("x", message.NewMessage("1", nil)), "publisher must be closed")
}

func TestBuildRequiresURL(t *testing.T) {
	cfg := natsConfig()
	cfg.NATSURL = ""
	_, err := Build(context.Background(), cfg, watermill.NopLogger{})
	assert.EqualError(t, err, "nats: url is required")
}

func TestConnectOptionsApply(t *testing.T) {
	opts := natsgo.GetDefaultOptions()
	for _, o := range connectOptions() {
		require.NoError(t, o(&opts))
	}
	assert.Equal(t, ConnectionName, opts.Name)
	assert.Equal(t, -1, opts.MaxReconnect)
}
