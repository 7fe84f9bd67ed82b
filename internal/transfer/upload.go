package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"filebox/internal/blobstore"
	"filebox/internal/models"
)

// UploadInput describes one inbound file.
type UploadInput struct {
	Filename    string
	ContentType string
	// DeclaredSize is the size announced by the caller. Negative means
	// unknown; zero declares an intentionally empty file.
	DeclaredSize int64
	Bundle       bool
	Constituents []models.Constituent
	Content      io.Reader
}

func (in UploadInput) validate() error {
	if strings.TrimSpace(in.Filename) == "" {
		return fmt.Errorf("filename is required: %w", models.ErrInvalidArgument)
	}
	if in.Content == nil {
		return fmt.Errorf("content is required: %w", models.ErrInvalidArgument)
	}
	if !in.Bundle {
		if len(in.Constituents) > 0 {
			return fmt.Errorf("constituents are only valid for bundles: %w", models.ErrInvalidArgument)
		}
		return nil
	}
	if err := models.ValidateConstituents(in.Constituents); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidArgument, err)
	}
	return nil
}

func (in UploadInput) tags() map[string]string {
	tags := map[string]string{"bundle": strconv.FormatBool(in.Bundle)}
	if in.Bundle {
		names := make([]string, len(in.Constituents))
		for i, c := range in.Constituents {
			names[i] = c.Name
		}
		tags["constituents"] = strings.Join(names, "\n")
	}
	return tags
}

// Upload stores in.Content as a new blob and registers it under owner.
//
// Chunks are written as the content is read; the upload is aborted as soon
// as the content exceeds the configured maximum. A blob that commits but
// fails to register is left for the reconciliation sweep.
func (s *Service) Upload(ctx context.Context, owner models.Identity, in UploadInput) (_ models.FileReference, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "transfer.Upload")
	defer span.End()
	defer s.metrics.observe(ctx, "upload", start)
	defer func() {
		if err != nil {
			s.fail(ctx, span, "upload", err)
		}
	}()

	span.SetAttributes(
		attribute.Bool("filebox.bundle", in.Bundle),
		attribute.Int64("filebox.declared_size", in.DeclaredSize),
	)
	if owner == "" {
		return models.FileReference{}, fmt.Errorf("upload requires an identity: %w", models.ErrMissingCredential)
	}
	if err := in.validate(); err != nil {
		return models.FileReference{}, err
	}
	if in.DeclaredSize > s.maxUpload {
		return models.FileReference{}, fmt.Errorf("declared size %d exceeds %d bytes: %w", in.DeclaredSize, s.maxUpload, models.ErrPayloadTooLarge)
	}

	handle, err := s.chunks.BeginWrite(ctx, models.NewBlob{
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Owner:       owner,
		Tags:        in.tags(),
		AllowEmpty:  in.DeclaredSize == 0,
	})
	if err != nil {
		return models.FileReference{}, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if abortErr := handle.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			s.logger.Warn("abort upload failed", "blob_id", handle.ID(), "err", abortErr)
		}
	}()
	span.SetAttributes(attribute.String("filebox.blob_id", handle.ID()))

	writer, err := blobstore.NewChunkWriter(ctx, handle, s.chunkSize)
	if err != nil {
		return models.FileReference{}, err
	}
	source := &capReader{r: in.Content, remaining: s.maxUpload}
	if _, err := io.Copy(writer, source); err != nil {
		return models.FileReference{}, s.receiveError(err)
	}
	if err := writer.Flush(); err != nil {
		return models.FileReference{}, s.receiveError(err)
	}
	if in.DeclaredSize >= 0 && writer.Written() != in.DeclaredSize {
		return models.FileReference{}, fmt.Errorf("received %d of %d declared bytes: %w", writer.Written(), in.DeclaredSize, models.ErrIncompleteWrite)
	}

	meta, err := handle.Commit(ctx)
	if err != nil {
		return models.FileReference{}, err
	}
	committed = true
	s.metrics.transferred(ctx, "upload", meta.Length)

	var ref models.FileReference
	if in.Bundle {
		ref, err = s.registry.RegisterBundle(ctx, owner, meta.ID, in.Filename, meta.Length, in.Constituents)
	} else {
		ref, err = s.registry.RegisterPlainFile(ctx, owner, meta.ID, in.Filename, meta.Length)
	}
	if err != nil {
		s.logger.Warn("blob committed but not registered; left for sweep",
			"blob_id", meta.ID, "owner", owner.String(), "size", meta.Length, "err", err)
		return models.FileReference{}, err
	}

	s.metrics.operation(ctx, "upload", "ok")
	s.logger.Debug("upload registered",
		"blob_id", meta.ID, "owner", owner.String(), "size", meta.Length,
		"chunks", meta.ChunkCount, "bundle", in.Bundle)
	return ref, nil
}

func (s *Service) receiveError(err error) error {
	var src *sourceError
	switch {
	case errors.Is(err, models.ErrPayloadTooLarge):
		return fmt.Errorf("upload exceeds %d bytes: %w", s.maxUpload, models.ErrPayloadTooLarge)
	case errors.As(err, &src):
		return fmt.Errorf("read upload body: %w: %w", models.ErrIncompleteWrite, src.err)
	default:
		return err
	}
}

// sourceError marks a failure reading the caller's content.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string {
	return e.err.Error()
}

func (e *sourceError) Unwrap() error {
	return e.err
}

// capReader fails with ErrPayloadTooLarge before yielding any byte past
// remaining.
type capReader struct {
	r         io.Reader
	remaining int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	if int64(n) > c.remaining {
		n = int(c.remaining)
		c.remaining = 0
		return n, models.ErrPayloadTooLarge
	}
	c.remaining -= int64(n)
	if err != nil && err != io.EOF {
		return n, &sourceError{err: err}
	}
	return n, err
}
