package stage

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/ids"
	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/queue"
	"github.com/drblury/dagflow/internal/runtime/tracing"
)

type captureTracer struct {
	mu     sync.Mutex
	events []tracing.Event
}

func (c *captureTracer) Emit(_ context.Context, e tracing.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureTracer) Close() error { return nil }

func (c *captureTracer) snapshot() []tracing.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

type greeter struct {
	closed int
}

func (g *greeter) Execute(_ context.Context, msg *message.Message) ([]*message.Message, error) {
	msg.Payload = "Hello, " + msg.Payload.(string)
	return One(msg), nil
}

func (g *greeter) Close() error {
	g.closed++
	return nil
}

type echo struct{}

func (echo) Execute(_ context.Context, msg *message.Message) ([]*message.Message, error) {
	return One(msg), nil
}

type versioned struct{ greeter }

func (versioned) Version() string { return "v2.1" }

type extended struct{ greeter }

func (extended) ExtendSensor(r *Reading) {
	r.Input = 9999
	r.Extra["cache_hits"] = 7
}

func TestSettingsClamp(t *testing.T) {
	got := Settings{SampleRate: 3, RetryCount: 99, RetryDelay: time.Hour}.Clamp()
	assert.Equal(t, 1.0, got.SampleRate)
	assert.Equal(t, MaxRetryCount, got.RetryCount)
	assert.Equal(t, MaxRetryDelay, got.RetryDelay)

	got = Settings{SampleRate: -1, RetryCount: -4, RetryDelay: -time.Second}.Clamp()
	assert.Equal(t, 0.0, got.SampleRate)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, time.Duration(0), got.RetryDelay)
}

func TestInvokeCountsAndInheritsLineage(t *testing.T) {
	op := NewOperation("SayHello", &greeter{}, Settings{})
	in := message.New("world", 1)

	out, err := op.Invoke(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Hello, world", out[0].Payload)
	assert.True(t, out[0].Traced)
	assert.Equal(t, in.Initializer, out[0].Initializer)
	assert.Contains(t, out[0].Timings(), "SayHello")

	reading := op.ReadSensor()
	assert.Equal(t, int64(1), reading.Input)
	assert.Equal(t, int64(1), reading.Output)
	assert.Equal(t, int64(0), reading.Errored)
	assert.Equal(t, 1.0, reading.Ratio)
	assert.Equal(t, "SayHello", reading.Node)
	assert.Equal(t, "stage.greeter", reading.Process)
	assert.False(t, reading.ExecutionStart.IsZero())
}

func TestInvokeRetriesThenDrops(t *testing.T) {
	var calls atomic.Int32
	failing := Func(func(context.Context, *message.Message) ([]*message.Message, error) {
		calls.Add(1)
		return nil, errors.New("always broken")
	})

	var dropped, failedAttempts int
	hooks := Hooks{
		OnError: func(Invocation, error) { failedAttempts++ },
		OnDrop:  func(inv Invocation, err error) { dropped++; assert.Equal(t, 3, inv.Attempt) },
	}
	tracer := &captureTracer{}
	op := NewOperation("Broken", failing, Settings{RetryCount: 2, RetryDelay: time.Millisecond},
		WithHooks(hooks), WithTracer(tracer))

	out, err := op.Invoke(context.Background(), message.New("x", 1))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, failedAttempts)
	assert.Equal(t, 1, dropped)

	reading := op.ReadSensor()
	assert.Equal(t, int64(1), reading.Input)
	assert.Equal(t, int64(0), reading.Output)
	assert.Equal(t, int64(1), reading.Errored)
	assert.Equal(t, int64(3), reading.FailedAttempts)

	events := tracer.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, ids.Nil, events[0].ChildID)
}

func TestInvokeRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	flaky := Func(func(_ context.Context, msg *message.Message) ([]*message.Message, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return One(msg), nil
	})
	op := NewOperation("Flaky", flaky, Settings{RetryCount: 1})

	out, err := op.Invoke(context.Background(), message.New("x", 0))
	require.NoError(t, err)
	assert.Len(t, out, 1)

	reading := op.ReadSensor()
	assert.Equal(t, int64(0), reading.Errored)
	assert.Equal(t, int64(1), reading.FailedAttempts)
	assert.Equal(t, int64(1), reading.Output)
}

func TestInvokeRecoversPanics(t *testing.T) {
	panicky := Func(func(context.Context, *message.Message) ([]*message.Message, error) {
		panic("kaboom")
	})
	op := NewOperation("Panicky", panicky, Settings{RetryCount: 1})

	out, err := op.Invoke(context.Background(), message.New("x", 0))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int64(2), op.ReadSensor().FailedAttempts)
	assert.Equal(t, int64(1), op.ReadSensor().Errored)
}

func TestInvokeDoesNotRetryFatal(t *testing.T) {
	var calls atomic.Int32
	oom := errors.New("out of memory")
	fatal := Func(func(context.Context, *message.Message) ([]*message.Message, error) {
		calls.Add(1)
		return nil, dferrors.Fatal(oom)
	})
	op := NewOperation("Fatal", fatal, Settings{RetryCount: 5})

	_, err := op.Invoke(context.Background(), message.New("x", 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, oom)
	assert.True(t, dferrors.IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(0), op.ReadSensor().Errored)
}

func TestInvokeStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	failing := Func(func(context.Context, *message.Message) ([]*message.Message, error) {
		cancel()
		return nil, errors.New("failed while shutting down")
	})
	op := NewOperation("Cancelled", failing, Settings{RetryCount: 3, RetryDelay: time.Minute})

	start := time.Now()
	_, err := op.Invoke(ctx, message.New("x", 0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInvokeSkipsNilResultsAndTracesDrop(t *testing.T) {
	tracer := &captureTracer{}
	nothing := Func(func(context.Context, *message.Message) ([]*message.Message, error) {
		return []*message.Message{nil, nil}, nil
	})
	op := NewOperation("Filter", nothing, Settings{}, WithTracer(tracer))

	in := message.New("x", 1)
	out, err := op.Invoke(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int64(0), op.ReadSensor().Output)

	events := tracer.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, in.ID, events[0].MessageID)
	assert.Equal(t, ids.Nil, events[0].ChildID)
	assert.Equal(t, "Filter", events[0].Stage)
}

func TestInvokeTracesEachChild(t *testing.T) {
	tracer := &captureTracer{}
	split := Func(func(_ context.Context, msg *message.Message) ([]*message.Message, error) {
		return Collect(func(yield func(*message.Message) bool) {
			for i := range 3 {
				if !yield(message.NewChild(i)) {
					return
				}
			}
		}), nil
	})
	op := NewOperation("Split", split, Settings{}, WithTracer(tracer))

	in := message.New("batch", 1)
	out, err := op.Invoke(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)

	events := tracer.snapshot()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, out[i].ID, e.ChildID)
		assert.Equal(t, in.Initializer, out[i].Initializer)
	}
	assert.Equal(t, 3.0, op.ReadSensor().Ratio)
}

func TestForcedTraceWithStageSampleRate(t *testing.T) {
	tracer := &captureTracer{}
	op := NewOperation("Spot", &greeter{}, Settings{SampleRate: 1}, WithTracer(tracer))

	_, err := op.Invoke(context.Background(), message.New("unsampled", 0))
	require.NoError(t, err)
	assert.Len(t, tracer.snapshot(), 1)

	quiet := &captureTracer{}
	op = NewOperation("Quiet", &greeter{}, Settings{}, WithTracer(quiet))
	_, err = op.Invoke(context.Background(), message.New("unsampled", 0))
	require.NoError(t, err)
	assert.Empty(t, quiet.snapshot())
}

func TestVersionPrecedence(t *testing.T) {
	assert.Equal(t, "pinned", NewOperation("a", &versioned{}, Settings{Version: "pinned"}).Version())
	assert.Equal(t, "v2.1", NewOperation("a", &versioned{}, Settings{}).Version())

	derived := NewOperation("a", &greeter{}, Settings{}).Version()
	assert.Len(t, derived, 8)
	assert.Equal(t, derived, Fingerprint(&greeter{}))
	assert.Equal(t, Fingerprint(echo{}), Fingerprint(&echo{}))
	assert.NotEqual(t, derived, Fingerprint(&extended{}))
}

func TestFingerprintFollowsBuild(t *testing.T) {
	orig := readBuildInfo
	defer func() { readBuildInfo = orig }()

	build := func(revision, modified string) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{
				Main: debug.Module{Path: "example.com/pipeline", Version: "v1.0.0"},
				Settings: []debug.BuildSetting{
					{Key: "GOOS", Value: "linux"},
					{Key: "vcs.revision", Value: revision},
					{Key: "vcs.modified", Value: modified},
				},
			}, true
		}
	}

	readBuildInfo = build("abc123", "false")
	clean := Fingerprint(&greeter{})
	assert.Equal(t, "example.com/pipeline@v1.0.0 vcs.revision=abc123 vcs.modified=false", buildIdentity())
	assert.Equal(t, clean, Fingerprint(&greeter{}))

	readBuildInfo = build("def456", "false")
	assert.NotEqual(t, clean, Fingerprint(&greeter{}))

	readBuildInfo = build("abc123", "true")
	assert.NotEqual(t, clean, Fingerprint(&greeter{}))

	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	assert.Empty(t, buildIdentity())
	assert.Len(t, Fingerprint(&greeter{}), 8)
}

func TestSensorExtenderCannotReplaceBaseFields(t *testing.T) {
	op := NewOperation("Ext", &extended{}, Settings{})
	_, err := op.Invoke(context.Background(), message.New("x", 0))
	require.NoError(t, err)

	reading := op.ReadSensor()
	assert.Equal(t, int64(1), reading.Input)
	assert.Equal(t, 7, reading.Extra["cache_hits"])
}

func TestInitAndCloseOnce(t *testing.T) {
	g := &greeter{}
	op := NewOperation("g", g, Settings{})
	require.NoError(t, op.Init(context.Background(), Params{"greeting": "hi"}))
	require.NoError(t, op.Close())
	require.NoError(t, op.Close())
	assert.Equal(t, 1, g.closed)
}

type failingInit struct{ greeter }

func (failingInit) Init(context.Context, Params) error { return errors.New("no database") }

func TestInitWrapsError(t *testing.T) {
	err := NewOperation("db", &failingInit{}, Settings{}).Init(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init db")
}

func TestRunPostsRepliesUntilTerminate(t *testing.T) {
	in := queue.New("sayhello")
	reply := queue.New("reply")
	op := NewOperation("SayHello", &greeter{}, Settings{})

	done := make(chan error, 1)
	go func() { done <- op.Run(context.Background(), in, reply) }()

	in.Put(queue.Delivery{Message: message.New("a", 0)})
	in.Put(queue.Delivery{Message: message.New("b", 0)})
	in.Terminate()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}

	assert.Equal(t, 0, in.Pending())
	assert.Equal(t, 2, reply.Pending())
	d, err := reply.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SayHello", d.From)
	assert.Equal(t, "Hello, a", d.Message.Payload)
}

func TestRunReturnsFatal(t *testing.T) {
	in := queue.New("fatal")
	reply := queue.New("reply")
	op := NewOperation("Fatal", Func(func(context.Context, *message.Message) ([]*message.Message, error) {
		return nil, dferrors.Fatal(errors.New("disk gone"))
	}), Settings{})

	in.Put(queue.Delivery{Message: message.New("x", 0)})
	err := op.Run(context.Background(), in, reply)
	assert.True(t, dferrors.IsFatal(err))
	assert.Equal(t, 0, in.Pending())
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewOperation("idle", &greeter{}, Settings{}).Run(ctx, queue.New("idle"), queue.New("reply"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsNil(t *testing.T) {
	var typedNil *greeter
	var nilFunc Func
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(typedNil))
	assert.True(t, IsNil(nilFunc))
	assert.False(t, IsNil(&greeter{}))
	assert.False(t, IsNil(echo{}))
}

func TestHooksMerge(t *testing.T) {
	var order []string
	a := Hooks{OnStart: func(Invocation) { order = append(order, "a") }}
	b := Hooks{
		OnStart: func(Invocation) { order = append(order, "b") },
		OnDone:  func(Invocation) { order = append(order, "done") },
	}
	merged := a.Merge(b)
	merged.start(Invocation{})
	merged.done(Invocation{})
	merged.failed(Invocation{}, errors.New("ignored"))
	assert.Equal(t, []string{"a", "b", "done"}, order)
}

func TestLoggingHooksTolerateNilLogger(t *testing.T) {
	h := LoggingHooks(nil)
	h.failed(Invocation{Node: "n"}, errors.New("x"))
	h.dropped(Invocation{Node: "n"}, errors.New("x"))
}

func TestGetParam(t *testing.T) {
	params := Params{"greeting": "hi", "count": 3}
	assert.Equal(t, "hi", Get(params, "greeting", "hello"))
	assert.Equal(t, 3, Get(params, "count", 0))
	assert.Equal(t, "hello", Get(params, "count", "hello"))
	assert.Equal(t, 1.5, Get(Params(nil), "missing", 1.5))
}
