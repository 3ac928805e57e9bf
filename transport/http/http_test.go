package http

import (
	"context"
	"io"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dagflow/internal/runtime/config"
	"github.com/drblury/dagflow/transport"
)

func TestTopicURL(t *testing.T) {
	assert.Equal(t, "http://sink/orders", TopicURL("http://sink/", "orders"))
	assert.Equal(t, "http://sink/orders", TopicURL("http://sink", "orders"))
	assert.Equal(t, "orders", TopicURL("", "orders"))
}

func TestBuildMarshalsToTopicURL(t *testing.T) {
	origPub, origSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = origPub, origSub }()

	var pubCfg wmhttp.PublisherConfig
	var gotAddr string
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	PublisherFactory = func(cfg wmhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		pubCfg = cfg
		return ps, nil
	}
	SubscriberFactory = func(addr string, _ wmhttp.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		gotAddr = addr
		return ps, nil
	}

	cfg := config.Defaults()
	cfg.PubSubSystem = Name
	cfg.HTTPServerAddress = ":8085"
	cfg.HTTPPublisherURL = "http://sink:8085"
	_, err := transport.Build(context.Background(), &cfg, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, ":8085", gotAddr)

	req, err := pubCfg.MarshalMessageFunc("orders", message.NewMessage("id-1", []byte(`{"n":1}`)))
	require.NoError(t, err)
	assert.Equal(t, "http://sink:8085/orders", req.URL.String())
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(body))
}

func TestBuildRequiresAddress(t *testing.T) {
	cfg := config.Defaults()
	_, err := Build(context.Background(), &cfg, watermill.NopLogger{})
	assert.EqualError(t, err, "http: server address is required")
}
