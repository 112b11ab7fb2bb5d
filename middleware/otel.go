package middleware

import (
	"context"

	"github.com/qvcloud/cmdgate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/qvcloud/cmdgate"

// OtelDispatcher wraps a dispatcher with an OpenTelemetry producer span and
// a dispatch counter labelled by outcome.
func OtelDispatcher(d cmdgate.Dispatcher, opts ...Option) cmdgate.Dispatcher {
	options := options{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, o := range opts {
		o(&options)
	}

	counter, err := options.meter.Int64Counter("cmdgate.dispatches",
		metric.WithDescription("Number of dispatched commands by outcome."),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		otel.Handle(err)
		counter = noop.Int64Counter{}
	}

	return cmdgate.DispatcherFunc(func(ctx context.Context, cmd cmdgate.Command, identifier string, headers cmdgate.Headers) error {
		testMode := cmd != nil && cmd.TestMode()

		ctx, span := options.tracer.Start(ctx, "cmdgate.dispatch",
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				attribute.String("messaging.system", "cmdgate"),
				attribute.String("cmdgate.identifier", identifier),
				attribute.Bool("cmdgate.test_mode", testMode),
			),
		)
		defer span.End()

		err := d.Dispatch(ctx, cmd, identifier, headers)
		outcome := cmdgate.Outcome(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("cmdgate.outcome", outcome))

		counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("cmdgate.identifier", identifier),
			attribute.String("outcome", outcome),
		))
		return err
	})
}

type options struct {
	tracer trace.Tracer
	meter  metric.Meter
}

type Option func(*options)

func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}
