package all

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/dagflow/transport"
)

func TestAllBackendsRegistered(t *testing.T) {
	assert.Equal(t,
		[]string{"aws", "channel", "http", "kafka", "nats", "rabbitmq"},
		transport.DefaultRegistry.Names())

	assert.True(t, transport.DefaultRegistry.Capabilities("kafka").Ordered)
	assert.EqualValues(t, 256*1024, transport.DefaultRegistry.Capabilities("aws").MaxMessageSize)
}
