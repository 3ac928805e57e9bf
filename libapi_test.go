package dagflow

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloWorldThroughPublicAPI(t *testing.T) {
	var out bytes.Buffer
	g := NewGraph().Chain(
		Node{Name: "Say Hello", Stage: StageFunc(func(_ context.Context, msg *Message) ([]*Message, error) {
			return One(NewChildMessage("hello " + msg.Payload.(string))), nil
		})},
		Node{Name: "Print", Stage: NewPrint(&out)},
	)

	f, err := NewFlow("hello", g)
	require.NoError(t, err)
	require.NoError(t, f.Init(context.Background(), nil))
	require.NoError(t, f.Execute("world"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
	require.NoError(t, f.Close())

	assert.Equal(t, "hello world\n", out.String())
	assert.Equal(t, StateClosed, f.State())
}

func TestCyclesRejectedThroughPublicAPI(t *testing.T) {
	g := NewGraph().
		AddNode(Node{Name: "a", Stage: NewPassthrough()}).
		AddNode(Node{Name: "b", Stage: NewPassthrough()}).
		AddEdge("a", "b", nil).
		AddEdge("b", "a", nil)

	_, err := NewFlow("loop", g)
	var cyclic *CyclicGraphError
	assert.ErrorAs(t, err, &cyclic)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestFatalExports(t *testing.T) {
	err := Fatal(errors.New("disk gone"))
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrFatal)
}

func TestParam(t *testing.T) {
	params := Params{"greeting": "hi"}
	assert.Equal(t, "hi", Param(params, "greeting", "hello"))
	assert.Equal(t, 3, Param(params, "missing", 3))
}

func TestEncodingAliases(t *testing.T) {
	data, err := Marshal(map[string]string{"hello": "world"})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, Unmarshal(data, &decoded))
	assert.Equal(t, "world", decoded["hello"])
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, ValidateConfig(&cfg))
}
