package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dagflow/internal/runtime/config"
)

type closeCounter struct {
	*gochannel.GoChannel
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestTransportCloseOnce(t *testing.T) {
	shared := &closeCounter{GoChannel: gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})}
	require.NoError(t, Transport{Publisher: shared, Subscriber: shared}.Close())
	assert.Equal(t, 1, shared.closes)

	pub, sub := &closeCounter{}, &closeCounter{}
	require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
	assert.Equal(t, 1, pub.closes)
	assert.Equal(t, 1, sub.closes)

	assert.NoError(t, Transport{}.Close())
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	reg.Register("memory", func(_ context.Context, _ Config, logger watermill.LoggerAdapter) (Transport, error) {
		ps := gochannel.NewGoChannel(gochannel.Config{}, logger)
		return Transport{Publisher: ps, Subscriber: ps}, nil
	}, Capabilities{Ordered: true, Ack: true, Nack: true})
	reg.Register("broken", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, errors.New("no route to broker")
	}, Capabilities{})

	cfg := config.Defaults()
	cfg.PubSubSystem = "memory"
	tr, err := reg.Build(context.Background(), &cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, tr.Publisher)
	require.NoError(t, tr.Close())

	cfg.PubSubSystem = "broken"
	_, err = reg.Build(context.Background(), &cfg, nil)
	assert.EqualError(t, err, "build broken transport: no route to broker")

	cfg.PubSubSystem = "carrier-pigeon"
	_, err = reg.Build(context.Background(), &cfg, nil)
	require.ErrorIs(t, err, ErrUnknownTransport)
	assert.Contains(t, err.Error(), "[broken memory]")

	_, err = reg.Build(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRegistryIntrospection(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) { return Transport{}, nil }
	reg.Register("b", noop, Capabilities{Ack: true, Nack: true})
	reg.Register("a", noop, Capabilities{Name: "alpha"})

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.True(t, reg.Has("a"))
	assert.False(t, reg.Has("c"))
	assert.Equal(t, "alpha", reg.Capabilities("a").Name)
	assert.True(t, reg.Capabilities("b").Redelivers())
	assert.Equal(t, Capabilities{Name: "c"}, reg.Capabilities("c"))

	described := reg.Describe()
	require.Len(t, described, 2)
	assert.Equal(t, "b", described[1].Name)
}
