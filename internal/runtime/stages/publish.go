package stages

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/jsoncodec"
	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/metadata"
	"github.com/drblury/dagflow/internal/runtime/stage"
)

const (
	// MetadataMessageID carries the dagflow message id on published messages.
	MetadataMessageID = "dagflow_message_id"
	// MetadataInitializer carries the lineage root id.
	MetadataInitializer = "dagflow_initializer"
)

// Publish sends each payload to a transport topic as JSON, with the message
// attributes as metadata. []byte and string payloads are sent verbatim.
type Publish struct {
	Publisher wmmessage.Publisher
	Topic     string
}

// NewPublish validates its arguments.
func NewPublish(pub wmmessage.Publisher, topic string) (*Publish, error) {
	if pub == nil {
		return nil, dferrors.ErrPublisherRequired
	}
	if topic == "" {
		return nil, dferrors.ErrTopicRequired
	}
	return &Publish{Publisher: pub, Topic: topic}, nil
}

func (p *Publish) Version() string { return "publish:" + p.Topic }

func (p *Publish) Execute(ctx context.Context, msg *message.Message) ([]*message.Message, error) {
	body, err := encode(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := wmmessage.NewMessage(watermill.NewULID(), body)
	out.Metadata = metadata.ToWatermill(msg.Attributes.With(MetadataMessageID, msg.ID).With(MetadataInitializer, msg.Initializer))
	out.SetContext(ctx)
	if err := p.Publisher.Publish(p.Topic, out); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", p.Topic, err)
	}
	return stage.One(msg), nil
}

// Close closes the publisher.
func (p *Publish) Close() error {
	return p.Publisher.Close()
}

func encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return jsoncodec.Marshal(payload)
}
