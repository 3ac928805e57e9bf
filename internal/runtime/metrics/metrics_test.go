package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dagflow/internal/runtime/stage"
)

type fakeSource struct {
	readings []stage.Reading
	depths   map[string]int
}

func (fakeSource) Label() string                  { return "orders" }
func (f fakeSource) ReadSensors() []stage.Reading { return f.readings }
func (f fakeSource) QueueDepths() map[string]int  { return f.depths }

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	// A second instance registering the same vectors is tolerated.
	require.NoError(t, New(reg).Register())
}

func TestSensorsExported(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())
	m.Watch(fakeSource{
		readings: []stage.Reading{{
			Node:             "Parse",
			Input:            4,
			Output:           3,
			Errored:          1,
			FailedAttempts:   2,
			ExecutionTime:    2 * time.Second,
			RecordsPerSecond: 2,
		}},
		depths: map[string]int{"parse": 5},
	})
	m.Watch(nil)

	expected := `
# HELP dagflow_stage_input_records Messages received by the stage
# TYPE dagflow_stage_input_records counter
dagflow_stage_input_records{flow="orders",node="Parse"} 4
# HELP dagflow_stage_errored_records Messages the stage failed to process
# TYPE dagflow_stage_errored_records counter
dagflow_stage_errored_records{flow="orders",node="Parse"} 1
# HELP dagflow_queue_depth Queued and unacknowledged messages
# TYPE dagflow_queue_depth gauge
dagflow_queue_depth{flow="orders",queue="parse"} 5
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"dagflow_stage_input_records", "dagflow_stage_errored_records", "dagflow_queue_depth"))
}

func TestHooksRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())
	hooks := m.Hooks("orders")

	inv := stage.Invocation{Node: "Parse", Duration: 10 * time.Millisecond}
	hooks.OnDone(inv)
	hooks.OnDone(inv)
	hooks.OnError(inv, assert.AnError)
	hooks.OnDrop(inv, assert.AnError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attemptsTotal.WithLabelValues("orders", "Parse", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attemptsTotal.WithLabelValues("orders", "Parse", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedTotal.WithLabelValues("orders", "Parse")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.attemptDuration))

	m.Reset()
	assert.Equal(t, 0, testutil.CollectAndCount(m.attemptsTotal))
}
