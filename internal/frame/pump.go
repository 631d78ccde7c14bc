package frame

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

const readChunkBytes = 32 << 10

// Frame is one decoded item from a stream: either a record or a decode
// error, never both.
type Frame struct {
	Record json.RawMessage
	Err    *DecodeError
}

// Pump reads r until EOF, decoding it into frames sent on out. Sends
// block while out is full. Once ctx is cancelled no further frames are
// sent; the rest of r is drained and discarded so the writer never
// blocks on a full pipe, and ctx.Err() is returned. Pump does not close
// out.
func Pump(ctx context.Context, r io.Reader, out chan<- Frame, maxLineBytes int) error {
	cancelled := false
	send := func(f Frame) {
		if cancelled {
			return
		}
		select {
		case out <- f:
		case <-ctx.Done():
			cancelled = true
		}
	}

	dec := NewDecoder(Config{
		MaxLineBytes:  maxLineBytes,
		OnRecord:      func(raw json.RawMessage) { send(Frame{Record: raw}) },
		OnDecodeError: func(err *DecodeError) { send(Frame{Err: err}) },
	})

	buf := make([]byte, readChunkBytes)
	for {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
		}
		if cancelled {
			_, _ = io.Copy(io.Discard, r)
			return ctx.Err()
		}

		n, err := r.Read(buf)
		if n > 0 {
			_, _ = dec.Write(buf[:n])
		}
		if err != nil {
			_ = dec.Close()
			if cancelled {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
