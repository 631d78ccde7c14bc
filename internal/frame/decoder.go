// Package frame decodes newline-delimited JSON streams written by helper
// processes. Records may arrive split across, or merged into, arbitrary
// read chunks.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed record")
	ErrLineTooLong = errors.New("line exceeds maximum length")
	ErrTruncated   = errors.New("stream ended mid-record")
)

const (
	// DefaultMaxLineBytes bounds a single record. Taskbar snapshots with
	// many windows are the largest records seen in practice.
	DefaultMaxLineBytes = 4 << 20

	rawPreviewBytes = 256

	// Buffers that grew past this are released after the line is handled
	// instead of being kept for reuse.
	retainBufferBytes = 64 << 10
)

// DecodeError reports one record that could not be decoded. The stream
// continues after it.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	raw := e.Raw
	if len(raw) > 64 {
		raw = raw[:64] + "..."
	}
	return fmt.Sprintf("%v: %q", e.Err, raw)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Config configures a Decoder. Nil callbacks discard their events.
type Config struct {
	MaxLineBytes  int
	OnRecord      func(json.RawMessage)
	OnDecodeError func(*DecodeError)
}

// Decoder splits written bytes on '\n' and validates each line as JSON.
// It is not safe for concurrent use.
type Decoder struct {
	cfg      Config
	buf      []byte
	overflow bool
}

// NewDecoder returns a Decoder that reports to the callbacks in cfg.
func NewDecoder(cfg Config) *Decoder {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	return &Decoder{cfg: cfg}
}

// Write buffers p and handles every complete line in it. It never
// returns an error: bad lines are reported through OnDecodeError.
func (d *Decoder) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			d.buffer(p)
			break
		}
		d.buffer(p[:i])
		d.endLine()
		p = p[i+1:]
	}
	return n, nil
}

// Close reports an unterminated trailing record, if any, and resets the
// decoder.
func (d *Decoder) Close() error {
	if d.overflow || len(bytes.TrimSpace(d.buf)) > 0 {
		d.fail(string(d.buf), ErrTruncated)
	}
	d.reset()
	return nil
}

// Buffered returns the number of bytes held for an incomplete line.
func (d *Decoder) Buffered() int { return len(d.buf) }

func (d *Decoder) buffer(p []byte) {
	if d.overflow {
		return
	}
	if len(d.buf)+len(p) > d.cfg.MaxLineBytes {
		d.overflow = true
		if keep := rawPreviewBytes - len(d.buf); keep > 0 {
			d.buf = append(d.buf, p[:min(keep, len(p))]...)
		}
		if len(d.buf) > rawPreviewBytes {
			d.buf = d.buf[:rawPreviewBytes]
		}
		return
	}
	d.buf = append(d.buf, p...)
}

func (d *Decoder) endLine() {
	if d.overflow {
		d.fail(string(d.buf), ErrLineTooLong)
		d.reset()
		return
	}

	line := bytes.TrimSpace(d.buf)
	if len(line) > 0 {
		if json.Valid(line) {
			record := make(json.RawMessage, len(line))
			copy(record, line)
			if d.cfg.OnRecord != nil {
				d.cfg.OnRecord(record)
			}
		} else {
			d.fail(string(line), ErrMalformed)
		}
	}
	d.reset()
}

func (d *Decoder) fail(raw string, err error) {
	if d.cfg.OnDecodeError != nil {
		d.cfg.OnDecodeError(&DecodeError{Raw: raw, Err: err})
	}
}

func (d *Decoder) reset() {
	d.overflow = false
	if cap(d.buf) > retainBufferBytes {
		d.buf = nil
		return
	}
	d.buf = d.buf[:0]
}
