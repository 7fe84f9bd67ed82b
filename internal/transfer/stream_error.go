package transfer

import "fmt"

// StreamError reports a failure after download bytes were handed to the
// caller. The transport cannot turn it into a clean error response and
// should abort the connection instead.
type StreamError struct {
	Written int64
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", e.Written, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
