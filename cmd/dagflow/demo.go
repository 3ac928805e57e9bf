package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/drblury/dagflow/internal/runtime/graph"
	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/stage"
	"github.com/drblury/dagflow/internal/runtime/stages"
)

// sayHello greets the name carried by the payload, falling back to the
// "name" parameter for anything that is not a string.
type sayHello struct {
	name string
}

func (s *sayHello) Init(_ context.Context, params stage.Params) error {
	s.name = stage.Get(params, "name", "World")
	return nil
}

func (s *sayHello) Execute(_ context.Context, msg *message.Message) ([]*message.Message, error) {
	name := s.name
	switch v := msg.Payload.(type) {
	case string:
		if v != "" {
			name = v
		}
	case map[string]any:
		if n, ok := v["name"].(string); ok && n != "" {
			name = n
		}
	case time.Time:
		return stage.One(message.NewChild(fmt.Sprintf("Hello, %s (%s)", name, v.Format(time.TimeOnly)))), nil
	}
	return stage.One(message.NewChild("Hello, " + name)), nil
}

// demoGraph is Say Hello followed by Print writing to out.
func demoGraph(out io.Writer) *graph.Graph {
	return graph.New().Chain(
		graph.Node{Name: "Say Hello", Stage: &sayHello{}, RetryCount: 1, RetryDelay: 100 * time.Millisecond},
		graph.Node{Name: "Print", Stage: stages.NewPrint(out)},
	)
}
