// Package channel is the in-process transport backed by watermill's
// gochannel. It is the default PubSubSystem and needs no broker.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/dagflow/transport"
)

const Name = "channel"

// OutputBuffer is the per-subscriber channel buffer.
const OutputBuffer = 64

var capabilities = transport.Capabilities{Name: Name, Ordered: true, Ack: true, Nack: true}

// Factory creates the pub/sub; tests replace it.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	transport.Register(Name, Build, capabilities)
}

// Build returns one GoChannel serving as both publisher and subscriber.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	ps := Factory(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
	return transport.Transport{Publisher: ps, Subscriber: ps}, nil
}
