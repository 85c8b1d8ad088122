// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Reader decodes packets from a byte stream.
type Reader struct {
	r   io.Reader
	dec *Decoder
	buf []byte
	pos int
	end int
}

// NewReader creates a packet reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, dec: NewDecoder(), buf: make([]byte, 256)}
}

// Decoder returns the underlying decoder, for raw byte inspection.
func (r *Reader) Decoder() *Decoder {
	return r.dec
}

// Next returns the next packet. A decode error is returned on its own and
// reading may continue; any other error comes from the transport.
func (r *Reader) Next() (*Packet, error) {
	for {
		for r.pos < r.end {
			b := r.buf[r.pos]
			r.pos++
			p, err := r.dec.DecodeByte(b)
			if err != nil {
				return nil, err
			}
			if p != nil {
				return p, nil
			}
		}

		n, err := r.r.Read(r.buf)
		r.pos, r.end = 0, n
		if n == 0 && err != nil {
			return nil, fmt.Errorf("hostlink: read: %w", err)
		}
	}
}

// IsDecodeError reports whether err is a framing or payload error rather than
// a transport failure.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrCRCMismatch) ||
		errors.Is(err, ErrInvalidLength) ||
		errors.Is(err, ErrUnexpectedEnd) ||
		errors.Is(err, ErrMalformed)
}

// Writer encodes packets onto a byte stream. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a packet writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send encodes and writes one packet in a single Write call.
func (w *Writer) Send(p *Packet) error {
	data, err := EncodePacket(p)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("hostlink: write: %w", err)
	}
	return nil
}
