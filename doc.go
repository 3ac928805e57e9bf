// Package dagflow runs record pipelines arranged as a directed acyclic graph.
//
// A Graph binds named stages together with optional edge filters. NewFlow
// validates it, rejecting cycles and unbound or nil stages, and Init starts
// a pool of workers per node plus the routers that forward every reply to
// the successors of the node that produced it. Execute injects a value, a
// slice, an iter.Seq or an Envelope at every entry node; Wait blocks until
// the flow drains and Close tears it down.
//
// Each stage is wrapped in an operation that retries failures with a fixed
// delay, recovers panics, counts input, output and errors, and emits trace
// events for sampled messages. Sensors and queue depths are readable while
// the flow runs, either directly, through the Prometheus collector from
// NewMetrics, or over HTTP from NewStatusHandler.
//
// # Triggers
//
// A Scheduler drives flows from triggers and restarts them when they fail:
//   - PollingTrigger: calls a Nudger on an interval, optionally a bounded number of times
//   - WatchTrigger: fires when a file matching a glob pattern is written
//   - SubscriberTrigger: consumes a topic from any registered transport
//
// # Transports
//
// Transports are built by name from Config.PubSubSystem. Import
// github.com/drblury/dagflow/transport/all to register every backend:
//   - channel: in-memory Go channels
//   - kafka: consumer groups through sarama
//   - rabbitmq: durable AMQP queues
//   - nats: core NATS subjects
//   - aws: SNS topics fanned out to SQS queues, LocalStack friendly
//   - http: POST per message
//
// The publish stage writes records to a transport; a subscriber trigger
// reads them back into another flow.
package dagflow
