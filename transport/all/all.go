// Package all registers every built-in transport with transport.DefaultRegistry.
package all

import (
	_ "github.com/drblury/dagflow/transport/aws"
	_ "github.com/drblury/dagflow/transport/channel"
	_ "github.com/drblury/dagflow/transport/http"
	_ "github.com/drblury/dagflow/transport/kafka"
	_ "github.com/drblury/dagflow/transport/nats"
	_ "github.com/drblury/dagflow/transport/rabbitmq"
)
