// Package transfer implements ownership-scoped upload, download, listing and
// orphan reconciliation on top of a Chunk Store and a File Registry.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"filebox/internal/blobstore"
	"filebox/internal/models"
	"filebox/internal/store"
)

const instrumentationName = "filebox/transfer"

// Authenticator maps a raw credential to an identity.
type Authenticator interface {
	Authenticate(raw []byte) (models.Identity, error)
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	ChunkSize      int
	MaxUploadBytes int64
	Logger         *slog.Logger
	Tracer         trace.Tracer
	Meter          metric.Meter
	// Now overrides the clock used for sweep cutoffs.
	Now func() time.Time
}

// Service is the Transfer Façade.
type Service struct {
	gate      Authenticator
	chunks    blobstore.ChunkStore
	registry  store.FileRegistry
	chunkSize int
	maxUpload int64
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *instruments
	now       func() time.Time
}

// NewService wires the façade to its collaborators.
func NewService(gate Authenticator, chunks blobstore.ChunkStore, registry store.FileRegistry, opts Options) (*Service, error) {
	if gate == nil || chunks == nil || registry == nil {
		return nil, fmt.Errorf("transfer service requires a gate, a chunk store and a registry")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = models.DefaultChunkSize
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = models.DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	metrics, err := newInstruments(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("init transfer metrics: %w", err)
	}
	return &Service{
		gate:      gate,
		chunks:    chunks,
		registry:  registry,
		chunkSize: opts.ChunkSize,
		maxUpload: opts.MaxUploadBytes,
		logger:    opts.Logger.With("component", "transfer"),
		tracer:    opts.Tracer,
		metrics:   metrics,
		now:       opts.Now,
	}, nil
}

// MaxUploadBytes returns the configured upload ceiling.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUpload
}

// Authenticate validates a raw credential through the Identity Gate.
func (s *Service) Authenticate(ctx context.Context, raw []byte) (models.Identity, error) {
	_, span := s.tracer.Start(ctx, "transfer.Authenticate")
	defer span.End()

	identity, err := s.gate.Authenticate(raw)
	if err != nil {
		s.fail(ctx, span, "authenticate", err)
		return "", err
	}
	return identity, nil
}

// List returns owner's plain files and bundles in upload order.
func (s *Service) List(ctx context.Context, owner models.Identity) (models.FileListing, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.List")
	defer span.End()

	plain, bundles, err := s.registry.ListFiles(ctx, owner)
	if err != nil {
		s.fail(ctx, span, "list", err)
		return models.FileListing{}, err
	}
	span.SetAttributes(
		attribute.Int("filebox.files", len(plain)),
		attribute.Int("filebox.bundles", len(bundles)),
	)
	s.metrics.operation(ctx, "list", "ok")
	return models.FileListing{Files: plain, Bundles: bundles}, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) {
	kind := ErrorKind(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	s.metrics.failure(ctx, op, kind)
}

// ErrorKind names the error taxonomy entry err belongs to.
func ErrorKind(err error) string {
	var streamErr *StreamError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &streamErr):
		return "stream_interrupted"
	case errors.Is(err, models.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, models.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, models.ErrIncompleteWrite):
		return "incomplete_write"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
