package dagflow

import (
	"iter"

	configpkg "github.com/drblury/dagflow/internal/runtime/config"
	errspkg "github.com/drblury/dagflow/internal/runtime/errors"
	flowpkg "github.com/drblury/dagflow/internal/runtime/flow"
	graphpkg "github.com/drblury/dagflow/internal/runtime/graph"
	idspkg "github.com/drblury/dagflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/dagflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/dagflow/internal/runtime/logging"
	messagepkg "github.com/drblury/dagflow/internal/runtime/message"
	metadatapkg "github.com/drblury/dagflow/internal/runtime/metadata"
	metricspkg "github.com/drblury/dagflow/internal/runtime/metrics"
	queuepkg "github.com/drblury/dagflow/internal/runtime/queue"
	schedulerpkg "github.com/drblury/dagflow/internal/runtime/scheduler"
	stagepkg "github.com/drblury/dagflow/internal/runtime/stage"
	stagespkg "github.com/drblury/dagflow/internal/runtime/stages"
	statuspkg "github.com/drblury/dagflow/internal/runtime/status"
	telemetrypkg "github.com/drblury/dagflow/internal/runtime/telemetry"
	tracingpkg "github.com/drblury/dagflow/internal/runtime/tracing"
	transportpkg "github.com/drblury/dagflow/transport"
)

type (
	Config = configpkg.Config

	Message  = messagepkg.Message
	Envelope = messagepkg.Envelope
	Metadata = metadatapkg.Metadata

	Stage          = stagepkg.Stage
	StageFunc      = stagepkg.Func
	Params         = stagepkg.Params
	Initializer    = stagepkg.Initializer
	Closer         = stagepkg.Closer
	Versioner      = stagepkg.Versioner
	SensorExtender = stagepkg.SensorExtender
	Reading        = stagepkg.Reading
	Hooks          = stagepkg.Hooks
	Invocation     = stagepkg.Invocation

	Graph  = graphpkg.Graph
	Node   = graphpkg.Node
	Filter = graphpkg.Filter

	Flow       = flowpkg.Flow
	FlowOption = flowpkg.Option
	FlowState  = flowpkg.State

	QueueRegistry = queuepkg.Registry

	Scheduler         = schedulerpkg.Scheduler
	SchedulerOption   = schedulerpkg.Option
	AddOption         = schedulerpkg.AddOption
	Trigger           = schedulerpkg.Trigger
	TriggerFunc       = schedulerpkg.TriggerFunc
	EventFunc         = schedulerpkg.EventFunc
	Nudger            = schedulerpkg.Nudger
	NudgeFunc         = schedulerpkg.NudgeFunc
	PollingTrigger    = schedulerpkg.PollingTrigger
	WatchTrigger      = schedulerpkg.WatchTrigger
	SubscriberTrigger = schedulerpkg.SubscriberTrigger
	TriggerReading    = schedulerpkg.Reading

	Tracer      = tracingpkg.Tracer
	TraceEvent  = tracingpkg.Event
	NullTracer  = tracingpkg.Null
	MultiTracer = tracingpkg.Multi

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Metrics       = metricspkg.Metrics
	StatusHandler = statuspkg.Handler
	StatusFlow    = statuspkg.Flow

	TelemetryConfig = telemetrypkg.Config

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities

	CyclicGraphError        = errspkg.CyclicGraphError
	MissingStageError       = errspkg.MissingStageError
	InvalidStageError       = errspkg.InvalidStageError
	MissingLabelError       = errspkg.MissingLabelError
	DependenciesNotMetError = errspkg.DependenciesNotMetError
	ConfigValidationError   = errspkg.ConfigValidationError
)

const (
	StateUnconfigured = flowpkg.StateUnconfigured
	StateRunning      = flowpkg.StateRunning
	StateIdle         = flowpkg.StateIdle
	StateClosed       = flowpkg.StateClosed

	// Unbounded lets a polling trigger run until its context ends.
	Unbounded = schedulerpkg.Unbounded
)

var (
	DefaultConfig  = configpkg.Defaults
	ValidateConfig = configpkg.ValidateConfig

	NewGraph = graphpkg.New
	Always   = graphpkg.Always

	NewFlow            = flowpkg.New
	WithLogger         = flowpkg.WithLogger
	WithTracer         = flowpkg.WithTracer
	WithQueues         = flowpkg.WithQueues
	WithHooks          = flowpkg.WithHooks
	WithSampleRate     = flowpkg.WithSampleRate
	WithReplyHandlers  = flowpkg.WithReplyHandlers
	WithConfig         = flowpkg.WithConfig
	NewQueueRegistry   = queuepkg.NewRegistry
	NewMessage         = messagepkg.New
	NewChildMessage    = messagepkg.NewChild
	NewMetadata        = metadatapkg.New
	One                = stagepkg.One
	LoggingHooks       = stagepkg.LoggingHooks
	NewPassthrough     = func() Stage { return stagespkg.Passthrough{} }
	NewPrint           = stagespkg.NewPrint
	NewPublish         = stagespkg.NewPublish
	Map                = stagespkg.Map
	FilterStage        = stagespkg.Filter
	NewScheduler       = schedulerpkg.New
	WithRestartPolicy  = schedulerpkg.WithRestartPolicy
	WithSchedulerLog   = schedulerpkg.WithLogger
	WithTriggerName    = schedulerpkg.WithName
	WithTriggerRestart = schedulerpkg.WithTriggerRestart
	NewPollingTrigger  = schedulerpkg.NewPollingTrigger
	NewIntervalTrigger = schedulerpkg.NewIntervalTrigger

	OpenTraceFile   = tracingpkg.OpenFile
	NewWriterTracer = tracingpkg.NewWriterTracer
	NewLogTracer    = tracingpkg.NewLogTracer
	NewOtelTracer   = tracingpkg.NewOtelTracer
	SetupTelemetry  = telemetrypkg.Setup

	NewMetrics       = metricspkg.New
	NewStatusHandler = statuspkg.NewHandler
	ServeStatus      = statuspkg.Serve

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	DiscardLogger        = loggingpkg.Discard
	NewWatermillAdapter  = loggingpkg.NewWatermillAdapter

	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	NewID = idspkg.New
	NilID = idspkg.Nil

	Fatal   = errspkg.Fatal
	IsFatal = errspkg.IsFatal

	ErrInvalidGraph       = errspkg.ErrInvalidGraph
	ErrGraphRequired      = errspkg.ErrGraphRequired
	ErrEmptyGraph         = errspkg.ErrEmptyGraph
	ErrDependenciesNotMet = errspkg.ErrDependenciesNotMet
	ErrAlreadyInitialized = errspkg.ErrAlreadyInitialized
	ErrFlowClosed         = errspkg.ErrFlowClosed
	ErrStopTrigger        = errspkg.ErrStopTrigger
	ErrFatal              = errspkg.ErrFatal
	ErrTriggerRequired    = errspkg.ErrTriggerRequired
	ErrFlowRequired       = errspkg.ErrFlowRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
)

// Collect materialises a lazily produced sequence of successors.
func Collect(seq iter.Seq[*Message]) []*Message {
	return stagepkg.Collect(seq)
}

// Param reads a typed value from Init parameters.
func Param[T any](params Params, key string, fallback T) T {
	return stagepkg.Get(params, key, fallback)
}
