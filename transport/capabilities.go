package transport

// Capabilities describes delivery guarantees of a backend.
type Capabilities struct {
	Name string `json:"name"`
	// Ordered backends deliver a topic (or partition) in publish order.
	Ordered bool `json:"ordered"`
	// Ack and Nack report explicit acknowledgement and redelivery support.
	Ack  bool `json:"ack"`
	Nack bool `json:"nack"`
	// Durable backends keep messages published while no subscriber runs.
	Durable bool `json:"durable"`
	// MaxMessageSize in bytes, 0 when unbounded or unknown.
	MaxMessageSize int64 `json:"max_message_size,omitempty"`
}

// Redelivers reports whether a nacked delivery comes back, which is what a
// subscriber trigger relies on when a flow rejects a payload.
func (c Capabilities) Redelivers() bool {
	return c.Ack && c.Nack
}
