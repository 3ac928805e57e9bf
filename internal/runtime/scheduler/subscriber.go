package scheduler

import (
	"context"
	"errors"
	"fmt"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/jsoncodec"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/metadata"
)

// SubscriberTrigger feeds a flow from a transport topic. JSON payloads are
// decoded, anything else is passed on as a string. A delivery is acked once
// the flow accepted it and nacked otherwise.
type SubscriberTrigger struct {
	Subscriber wmmessage.Subscriber
	Topic      string
	// Envelope wraps each payload in a message.Envelope carrying the
	// transport metadata.
	Envelope bool
	Logger   logging.ServiceLogger
}

func (s *SubscriberTrigger) Name() string {
	return fmt.Sprintf("SubscriberTrigger(%s)", s.Topic)
}

func (s *SubscriberTrigger) Engage(ctx context.Context, emit EventFunc) error {
	if s.Subscriber == nil {
		return dferrors.Fatal(dferrors.ErrSubscriberRequired)
	}
	if s.Topic == "" {
		return dferrors.Fatal(dferrors.ErrTopicRequired)
	}
	log := logging.OrDiscard(s.Logger).With(logging.LogFields{"topic": s.Topic})

	messages, err := s.Subscriber.Subscribe(ctx, s.Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Topic, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("subscription closed")
			}
			if err := emit(Decode(msg, s.Envelope)); err != nil {
				msg.Nack()
				log.Error("Delivery rejected", err, logging.LogFields{"message_uuid": msg.UUID})
				if errors.Is(err, dferrors.ErrStopTrigger) || dferrors.IsFatal(err) {
					return err
				}
				continue
			}
			msg.Ack()
		}
	}
}

// Decode turns a delivery into a flow input. JSON payloads are decoded,
// anything else becomes a string. With envelope set the result is a
// message.Envelope carrying the delivery metadata.
func Decode(msg *wmmessage.Message, envelope bool) any {
	var decoded any
	if err := jsoncodec.Unmarshal(msg.Payload, &decoded); err != nil {
		decoded = string(msg.Payload)
	}
	if !envelope {
		return decoded
	}
	return message.Envelope{Payload: decoded, Attributes: metadata.FromWatermill(msg.Metadata)}
}
