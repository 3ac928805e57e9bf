package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/ids"
	"github.com/drblury/dagflow/internal/runtime/logging"
)

// CorrelationIDKey is the metadata key set by CorrelationID.
const CorrelationIDKey = "correlation_id"

// Middleware is a named handler middleware added to the trigger's router.
type Middleware struct {
	Name       string
	Middleware message.HandlerMiddleware
}

// RetryConfig customises Retry. Zero values take the defaults.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetryIf limits retries to matching errors. Stop and fatal errors are
	// never retried.
	RetryIf func(error) bool
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	return cfg
}

// Rejectable reports whether err is a delivery failure rather than the end
// of the trigger.
func Rejectable(err error) bool {
	return err != nil && !errors.Is(err, dferrors.ErrStopTrigger) && !dferrors.IsFatal(err)
}

// DefaultMiddlewares is the chain used when a RouterTrigger names none.
func DefaultMiddlewares(log logging.ServiceLogger) []Middleware {
	return []Middleware{
		CorrelationID(),
		LogMessages(log),
		Retry(RetryConfig{}),
		Recoverer(),
	}
}

// CorrelationID sets a correlation identifier on deliveries that lack one.
func CorrelationID() Middleware {
	return Middleware{
		Name: "correlation_id",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				if msg.Metadata.Get(CorrelationIDKey) == "" {
					msg.Metadata.Set(CorrelationIDKey, ids.New())
				}
				return h(msg)
			}
		},
	}
}

// LogMessages logs every delivery at debug.
func LogMessages(log logging.ServiceLogger) Middleware {
	log = logging.OrDiscard(log)
	return Middleware{
		Name: "log_messages",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				log.Debug("Processing delivery", logging.LogFields{
					"message_uuid": msg.UUID,
					"payload":      string(msg.Payload),
					"metadata":     msg.Metadata,
				})
				return h(msg)
			}
		},
	}
}

// Retry re-runs the handler with exponential backoff.
func Retry(cfg RetryConfig) Middleware {
	cfg = cfg.withDefaults()
	return Middleware{
		Name: "retry",
		Middleware: middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			MaxInterval:     cfg.MaxInterval,
			ShouldRetry: func(params middleware.RetryParams) bool {
				if !Rejectable(params.Err) {
					return false
				}
				return cfg.RetryIf == nil || cfg.RetryIf(params.Err)
			},
		}.Middleware,
	}
}

// PoisonQueue publishes deliveries the flow rejected to topic. A nil filter
// matches every rejection.
func PoisonQueue(pub message.Publisher, topic string, filter func(error) bool) (Middleware, error) {
	if pub == nil {
		return Middleware{}, dferrors.ErrPublisherRequired
	}
	if topic == "" {
		return Middleware{}, dferrors.ErrTopicRequired
	}
	mw, err := middleware.PoisonQueueWithFilter(pub, topic, func(err error) bool {
		return Rejectable(err) && (filter == nil || filter(err))
	})
	if err != nil {
		return Middleware{}, fmt.Errorf("poison queue %s: %w", topic, err)
	}
	return Middleware{Name: "poison_queue", Middleware: mw}, nil
}

// Recoverer turns handler panics into errors.
func Recoverer() Middleware {
	return Middleware{Name: "recoverer", Middleware: middleware.Recoverer}
}

// Tracing wraps every delivery in a span from provider.
func Tracing(provider trace.TracerProvider) Middleware {
	tracer := provider.Tracer("github.com/drblury/dagflow/internal/runtime/router")
	return Middleware{
		Name: "tracing",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				ctx, span := tracer.Start(msg.Context(), "ProcessDelivery")
				defer span.End()
				msg.SetContext(ctx)

				span.SetAttributes(
					attribute.String("message.uuid", msg.UUID),
					attribute.String("message.correlation_id", msg.Metadata.Get(CorrelationIDKey)),
				)
				out, err := h(msg)
				if err != nil {
					span.RecordError(err)
				}
				return out, err
			}
		},
	}
}
