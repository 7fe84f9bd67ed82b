package transfer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	bytes      metric.Int64Counter
	operations metric.Int64Counter
	errors     metric.Int64Counter
	duration   metric.Float64Histogram
	swept      metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var (
		m   instruments
		err error
	)
	m.bytes, err = meter.Int64Counter("filebox.transfer.bytes",
		metric.WithDescription("Bytes moved through uploads and downloads"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	m.operations, err = meter.Int64Counter("filebox.transfer.operations",
		metric.WithDescription("Completed transfer operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	m.errors, err = meter.Int64Counter("filebox.transfer.errors",
		metric.WithDescription("Failed transfer operations by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	m.duration, err = meter.Float64Histogram("filebox.transfer.duration",
		metric.WithDescription("Transfer operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}
	m.swept, err = meter.Int64Counter("filebox.sweep.deleted",
		metric.WithDescription("Orphaned blobs deleted by the reconciliation sweep"),
		metric.WithUnit("{blob}"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *instruments) transferred(ctx context.Context, direction string, n int64) {
	if n <= 0 {
		return
	}
	m.bytes.Add(ctx, n, metric.WithAttributes(attribute.String("direction", direction)))
}

func (m *instruments) operation(ctx context.Context, op, outcome string) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (m *instruments) failure(ctx context.Context, op, kind string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("kind", kind),
	))
}

func (m *instruments) observe(ctx context.Context, op string, start time.Time) {
	m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("operation", op)))
}
