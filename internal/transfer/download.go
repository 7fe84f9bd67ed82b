package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"filebox/internal/blobstore"
	"filebox/internal/models"
)

// Download is an open, ownership-checked read of one blob. Callers must
// Close it.
type Download struct {
	Reference models.FileReference
	Metadata  models.BlobMetadata

	svc     *Service
	ctx     context.Context
	span    trace.Span
	start   time.Time
	handle  blobstore.ReadHandle
	written int64
	closed  bool
}

// Download resolves blobID for owner and opens it for streaming. A
// malformed or unknown id is ErrNotFound; another identity's file is
// ErrForbidden.
func (s *Service) Download(ctx context.Context, owner models.Identity, blobID string) (*Download, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "transfer.Download")
	span.SetAttributes(attribute.String("filebox.blob_id", blobID))

	dl, err := s.openDownload(ctx, owner, blobID)
	if err != nil {
		s.fail(ctx, span, "download", err)
		s.metrics.observe(ctx, "download", start)
		span.End()
		return nil, err
	}
	dl.svc = s
	dl.ctx = ctx
	dl.span = span
	dl.start = start
	return dl, nil
}

func (s *Service) openDownload(ctx context.Context, owner models.Identity, blobID string) (*Download, error) {
	if owner == "" {
		return nil, fmt.Errorf("download requires an identity: %w", models.ErrMissingCredential)
	}
	if !blobstore.ValidBlobID(blobID) {
		return nil, fmt.Errorf("file %q: %w", blobID, models.ErrNotFound)
	}
	ref, err := s.registry.ResolveOwned(ctx, owner, blobID)
	if err != nil {
		return nil, err
	}
	handle, err := s.chunks.OpenRead(ctx, blobID)
	if err != nil {
		return nil, err
	}
	meta := handle.Metadata()
	if meta.Owner != owner {
		_ = handle.Close()
		return nil, fmt.Errorf("file %s: %w", blobID, models.ErrForbidden)
	}
	return &Download{Reference: ref, Metadata: meta, handle: handle}, nil
}

// ContentType returns the stored content type or the generic fallback.
func (d *Download) ContentType() string {
	if d.Metadata.ContentType == "" {
		return models.FallbackContentType
	}
	return d.Metadata.ContentType
}

// WriteTo streams the remaining chunks to w in sequence order. Any failure
// is returned as a *StreamError since bytes may already be in flight.
func (d *Download) WriteTo(w io.Writer) (int64, error) {
	if d.closed {
		return 0, &StreamError{Written: d.written, Err: errors.New("download is closed")}
	}
	var n int64
	for {
		chunk, err := d.handle.Next(d.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, d.interrupted(err)
		}
		m, err := w.Write(chunk)
		n += int64(m)
		d.written += int64(m)
		if err == nil && m < len(chunk) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return n, d.interrupted(fmt.Errorf("write to caller: %w", err))
		}
	}
	if d.written != d.Metadata.Length {
		return n, d.interrupted(fmt.Errorf("streamed %d of %d bytes: %w", d.written, d.Metadata.Length, models.ErrStoreUnavailable))
	}
	d.svc.metrics.operation(d.ctx, "download", "ok")
	return n, nil
}

func (d *Download) interrupted(err error) error {
	streamErr := &StreamError{Written: d.written, Err: err}
	d.svc.fail(d.ctx, d.span, "download", streamErr)
	d.svc.logger.Warn("download interrupted",
		"blob_id", d.Metadata.ID, "written", d.written, "length", d.Metadata.Length, "err", err)
	return streamErr
}

// Close releases the read handle. It is safe to call more than once.
func (d *Download) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.handle.Close()
	d.svc.metrics.transferred(d.ctx, "download", d.written)
	d.svc.metrics.observe(d.ctx, "download", d.start)
	d.span.SetAttributes(attribute.Int64("filebox.bytes_written", d.written))
	d.span.End()
	return err
}
