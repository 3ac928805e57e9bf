package message

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/drblury/dagflow/internal/runtime/ids"
	"github.com/drblury/dagflow/internal/runtime/metadata"
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

func TestNewAssignsLineage(t *testing.T) {
	msg := New("hello", 0)
	require.Len(t, msg.ID, 26)
	assert.Equal(t, msg.ID, msg.Initializer)
	assert.False(t, msg.Traced)
	assert.NotNil(t, msg.Attributes)
	assert.Equal(t, "hello", msg.Payload)
}

func TestFromValueUnwrapsEnvelope(t *testing.T) {
	attrs := metadata.New("source", "orders")
	msg := FromValue(Envelope{Payload: 42, Attributes: attrs}, 0)
	assert.Equal(t, 42, msg.Payload)
	assert.Equal(t, "orders", msg.Attributes["source"])

	msg.Attributes["source"] = "changed"
	assert.Equal(t, "orders", attrs["source"])

	plain := FromValue("x", 0)
	assert.Equal(t, "x", plain.Payload)
	assert.Empty(t, plain.Attributes)
}

func TestSampleBounds(t *testing.T) {
	for range 100 {
		assert.True(t, Sample(1))
		assert.True(t, Sample(2.5))
		assert.False(t, Sample(0))
		assert.False(t, Sample(-1))
	}
	assert.True(t, New(nil, 1).Traced)
}

func TestSampleRateConverges(t *testing.T) {
	const trials = 100000
	for _, rate := range []float64{0.5, 0.1, 0.01} {
		traced := 0
		for range trials {
			if Sample(rate) {
				traced++
			}
		}
		got := float64(traced) / trials
		assert.InDelta(t, rate, got, rate*0.1+0.002, "rate %v", rate)
	}
}

func TestInheritCopiesLineage(t *testing.T) {
	parent := New("root", 1)
	child := NewChild("derived")
	require.NotEqual(t, parent.Initializer, child.Initializer)

	child.Inherit(parent)
	assert.True(t, child.Traced)
	assert.Equal(t, parent.Initializer, child.Initializer)
	assert.NotEqual(t, parent.ID, child.ID)
}

func TestCloneSeparatesMutableState(t *testing.T) {
	orig := New("payload", 1)
	orig.Attributes["k"] = "v"
	orig.RecordTiming("A", time.Second)

	c := orig.Clone()
	assert.Equal(t, orig.ID, c.ID)
	assert.Equal(t, orig.Initializer, c.Initializer)
	assert.Equal(t, orig.Traced, c.Traced)
	assert.Equal(t, "payload", c.Payload)
	assert.Equal(t, map[string]time.Duration{"A": time.Second}, c.Timings())

	c.Attributes["k"] = "changed"
	c.Payload = "other"
	c.RecordTiming("B", time.Second)
	assert.Equal(t, "v", orig.Attributes["k"])
	assert.Equal(t, "payload", orig.Payload)
	assert.Equal(t, map[string]time.Duration{"A": time.Second}, orig.Timings())
}

func TestInheritFromSelfIsNoop(t *testing.T) {
	m := New("x", 1)
	id := m.Initializer
	m.Inherit(m)
	assert.True(t, m.Traced)
	assert.Equal(t, id, m.Initializer)
}

func TestRecordTimingAccumulatesConcurrently(t *testing.T) {
	msg := New("x", 0)
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg.RecordTiming("stage", time.Millisecond)
		}()
	}
	wg.Wait()

	timings := msg.Timings()
	assert.Equal(t, 20*time.Millisecond, timings["stage"])

	timings["stage"] = 0
	assert.Equal(t, 20*time.Millisecond, msg.Timings()["stage"])
}

func TestTraceSkipsUnsampled(t *testing.T) {
	tracer := &captureTracer{}
	msg := New("quiet", 0)

	require.NoError(t, msg.Trace(context.Background(), tracer, TraceOptions{Stage: "Print"}))
	assert.Empty(t, tracer.events)

	require.NoError(t, msg.Trace(context.Background(), tracer, TraceOptions{Stage: "Print", Force: true}))
	assert.Len(t, tracer.events, 1)

	assert.NoError(t, msg.Trace(context.Background(), nil, TraceOptions{Force: true}))
}

func TestTraceFillsEvent(t *testing.T) {
	tracer := &captureTracer{}
	msg := New(map[string]any{"greeting": "hello"}, 1)
	start := time.Now()

	require.NoError(t, msg.Trace(context.Background(), tracer, TraceOptions{
		Stage:    "SayHello",
		Version:  "abcd1234",
		Start:    start,
		Duration: time.Second,
	}))

	require.Len(t, tracer.events, 1)
	event := tracer.events[0]
	assert.Equal(t, msg.ID, event.MessageID)
	assert.Equal(t, "SayHello", event.Stage)
	assert.Equal(t, "abcd1234", event.Version)
	assert.Equal(t, ids.Nil, event.ChildID)
	assert.Equal(t, msg.Initializer, event.Initializer)
	assert.Equal(t, time.Second, event.Duration)
	assert.JSONEq(t, `{"greeting":"hello"}`, event.Record)

	require.NoError(t, msg.Trace(context.Background(), tracer, TraceOptions{Stage: CreateStage, Child: msg.ID}))
	assert.Equal(t, msg.ID, tracer.events[1].ChildID)
	assert.Equal(t, DefaultVersion, tracer.events[1].Version)
}

func expectedHash(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + value))
	return hex.EncodeToString(sum[:])[:16]
}

func TestSanitizeRedactsSensitiveEntries(t *testing.T) {
	salt := ids.New()
	payload := map[string]any{
		"user":          "alice",
		"Password":      "hunter2",
		"pwd_hint":      "pet name",
		"pin":           1234,
		"pinned":        true,
		"PAN":           "x",
		"cvc2":          "999",
		"card":          "4111111111111111",
		"card_dashed":   "4111-1111-1111-1111",
		"short_numbers": "4111",
	}

	out, ok := Sanitize(payload, salt).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "alice", out["user"])
	assert.Equal(t, expectedHash(salt, "hunter2"), out["Password"])
	assert.Equal(t, expectedHash(salt, "pet name"), out["pwd_hint"])
	assert.Equal(t, expectedHash(salt, "1234"), out["pin"])
	assert.Equal(t, true, out["pinned"])
	assert.Equal(t, expectedHash(salt, "x"), out["PAN"])
	assert.Equal(t, expectedHash(salt, "999"), out["cvc2"])
	assert.Equal(t, expectedHash(salt, "4111111111111111"), out["card"])
	assert.Equal(t, expectedHash(salt, "4111-1111-1111-1111"), out["card_dashed"])
	assert.Equal(t, "4111", out["short_numbers"])

	assert.Equal(t, "hunter2", payload["Password"], "input must not be mutated")
}

func TestSanitizeStringMapAndPassthrough(t *testing.T) {
	out := Sanitize(map[string]string{"password": "secret", "name": "bob"}, "salt").(map[string]string)
	assert.Equal(t, expectedHash("salt", "secret"), out["password"])
	assert.Equal(t, "bob", out["name"])

	assert.Equal(t, "password=secret", Sanitize("password=secret", "salt"))
	assert.Equal(t, 42, Sanitize(42, "salt"))
}

func TestSaltChangesHash(t *testing.T) {
	a := Sanitize(map[string]string{"pwd": "same"}, "one").(map[string]string)
	b := Sanitize(map[string]string{"pwd": "same"}, "two").(map[string]string)
	assert.NotEqual(t, a["pwd"], b["pwd"])
}

func TestRecordEncodings(t *testing.T) {
	assert.Equal(t, `"hello"`, Record("hello", ""))
	assert.Equal(t, `42`, Record(42, ""))
	assert.JSONEq(t, `{"a":1}`, Record(map[string]int{"a": 1}, ""))

	protoRecord := Record(wrapperspb.String("proto payload"), "")
	assert.Contains(t, protoRecord, "proto payload")

	ch := make(chan int)
	assert.Contains(t, Record(ch, ""), "0x")
}

func TestStringUsesRecord(t *testing.T) {
	msg := New(map[string]string{"pin": "s3cr3tpin"}, 0)
	assert.NotContains(t, msg.String(), "s3cr3tpin")
}
