package blobstore

import (
	"context"
	"fmt"
)

// ChunkWriter adapts a WriteHandle to io.Writer, cutting the stream into
// chunks of exactly chunkSize bytes. Only the final chunk may be shorter;
// call Flush to emit it.
type ChunkWriter struct {
	ctx     context.Context
	handle  WriteHandle
	size    int
	buf     []byte
	written int64
	chunks  int
}

// NewChunkWriter returns a writer that emits chunkSize-byte chunks to handle.
func NewChunkWriter(ctx context.Context, handle WriteHandle, chunkSize int) (*ChunkWriter, error) {
	if handle == nil {
		return nil, fmt.Errorf("write handle is required")
	}
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be >= 1, got %d", chunkSize)
	}
	return &ChunkWriter{
		ctx:    ctx,
		handle: handle,
		size:   chunkSize,
		buf:    make([]byte, 0, chunkSize),
	}, nil
}

// Write buffers p and emits every full chunk before returning.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		if err := w.ctx.Err(); err != nil {
			return n, err
		}
		take := min(w.size-len(w.buf), len(p))
		w.buf = append(w.buf, p[:take]...)
		p = p[take:]
		n += take
		if len(w.buf) == w.size {
			if err := w.emit(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Flush emits any buffered partial chunk.
func (w *ChunkWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.emit()
}

// Written returns the number of bytes handed to the store so far.
func (w *ChunkWriter) Written() int64 {
	return w.written
}

// Chunks returns the number of chunks emitted so far.
func (w *ChunkWriter) Chunks() int {
	return w.chunks
}

func (w *ChunkWriter) emit() error {
	if err := w.handle.WriteChunk(w.ctx, w.buf); err != nil {
		return err
	}
	w.written += int64(len(w.buf))
	w.chunks++
	w.buf = w.buf[:0]
	return nil
}

// Reader adapts a ReadHandle to io.ReadCloser.
type Reader struct {
	ctx    context.Context
	handle ReadHandle
	cur    []byte
	err    error
}

// NewReader returns a reader over handle's remaining chunks.
func NewReader(ctx context.Context, handle ReadHandle) *Reader {
	return &Reader{ctx: ctx, handle: handle}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.cur) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, err := r.handle.Next(r.ctx)
		if err != nil {
			r.err = err
			return 0, err
		}
		r.cur = chunk
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

// Close releases the underlying read handle.
func (r *Reader) Close() error {
	return r.handle.Close()
}
