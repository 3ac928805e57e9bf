// Package router feeds flows from a watermill Router, so every delivery
// passes through handler middleware (correlation ids, retries, poison
// queue, panic recovery, tracing and Prometheus metrics) before it reaches
// the flow.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/scheduler"
)

// CloseTimeout bounds how long the router waits for in-flight handlers.
var CloseTimeout = 5 * time.Second

// routerRun is replaced in tests.
var (
	routerRun = func(ctx context.Context, r *message.Router) error {
		return r.Run(ctx)
	}
	routerClose = func(r *message.Router) error {
		return r.Close()
	}
)

// RouterTrigger consumes Topic through a watermill Router and emits each
// delivery into the flow. A rejected delivery fails the handler, so the
// middleware decides whether it is retried, poisoned or nacked.
type RouterTrigger struct {
	Subscriber message.Subscriber
	Topic      string
	// Middlewares run outermost first. Nil selects DefaultMiddlewares.
	Middlewares []Middleware
	// Metrics, when set, receives the router's Prometheus metrics.
	Metrics prometheus.Registerer
	// HandleSignals closes the router on SIGINT or SIGTERM.
	HandleSignals bool
	Envelope      bool
	Logger        logging.ServiceLogger
}

func (t *RouterTrigger) Name() string {
	return fmt.Sprintf("RouterTrigger(%s)", t.Topic)
}

func (t *RouterTrigger) Engage(ctx context.Context, emit scheduler.EventFunc) error {
	if t.Subscriber == nil {
		return dferrors.Fatal(dferrors.ErrSubscriberRequired)
	}
	if t.Topic == "" {
		return dferrors.Fatal(dferrors.ErrTopicRequired)
	}
	log := logging.OrDiscard(t.Logger).With(logging.LogFields{"topic": t.Topic})

	r, err := t.newRouter(log)
	if err != nil {
		return dferrors.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		stopErr error
	)
	r.AddNoPublisherHandler("dagflow_"+t.Topic, t.Topic, retainedSubscriber{t.Subscriber}, func(msg *message.Message) error {
		err := emit(scheduler.Decode(msg, t.Envelope))
		if err != nil && !Rejectable(err) {
			mu.Lock()
			if stopErr == nil {
				stopErr = err
			}
			mu.Unlock()
			cancel()
		}
		return err
	})

	runErr := routerRun(runCtx, r)
	if err := routerClose(r); err != nil {
		log.Error("Router close failed", err, nil)
	}

	mu.Lock()
	defer mu.Unlock()
	switch {
	case stopErr != nil:
		return stopErr
	case ctx.Err() != nil:
		return ctx.Err()
	case runErr != nil:
		return fmt.Errorf("router %s: %w", t.Topic, runErr)
	}
	return nil
}

func (t *RouterTrigger) newRouter(log logging.ServiceLogger) (*message.Router, error) {
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: CloseTimeout}, logging.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	if t.HandleSignals {
		r.AddPlugin(plugin.SignalsHandler)
	}
	if t.Metrics != nil {
		builder := metrics.NewPrometheusMetricsBuilder(t.Metrics, "dagflow", "router")
		builder.AddPrometheusRouterMetrics(r)
	}

	chain := t.Middlewares
	if chain == nil {
		chain = DefaultMiddlewares(log)
	}
	for _, mw := range chain {
		if mw.Middleware == nil {
			continue
		}
		r.AddMiddleware(mw.Middleware)
	}
	return r, nil
}

// retainedSubscriber keeps the router from closing a subscriber owned by its
// transport, so the trigger can be engaged again after a restart.
type retainedSubscriber struct {
	message.Subscriber
}

func (retainedSubscriber) Close() error { return nil }
