// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package crdt implements the lib0 binary primitives used by the y-protocols
// wire format, the awareness payload codec, and the versioned binary
// snapshot of a block document.
package crdt

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrUnexpectedEnd is returned when a decoder runs out of input.
var ErrUnexpectedEnd = errors.New("crdt: unexpected end of input")

// ErrOverflow is returned for a varint that does not fit in 64 bits.
var ErrOverflow = errors.New("crdt: varint overflows uint64")

// Encoder appends lib0 values to a byte slice.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with room for size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// WriteUint8 appends a single byte.
func (e *Encoder) WriteUint8(v uint8) {
	e.buf = append(e.buf, v)
}

// WriteVarUint appends v as an unsigned LEB128 varint.
func (e *Encoder) WriteVarUint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

// WriteVarUint8Array appends a length-prefixed byte array.
func (e *Encoder) WriteVarUint8Array(p []byte) {
	e.WriteVarUint(uint64(len(p)))
	e.buf = append(e.buf, p...)
}

// WriteVarString appends a length-prefixed UTF-8 string.
func (e *Encoder) WriteVarString(s string) {
	e.WriteVarUint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteFloat64 appends v as 8 big-endian bytes.
func (e *Encoder) WriteFloat64(v float64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// WriteRaw appends p without a length prefix.
func (e *Encoder) WriteRaw(p []byte) {
	e.buf = append(e.buf, p...)
}

// Decoder reads lib0 values from a byte slice.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a decoder over p. p is not copied.
func NewDecoder(p []byte) *Decoder {
	return &Decoder{buf: p}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// HasContent reports whether unread bytes remain.
func (d *Decoder) HasContent() bool { return d.pos < len(d.buf) }

// ReadUint8 reads a single byte.
func (d *Decoder) ReadUint8() (uint8, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrUnexpectedEnd
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

// ReadVarUint reads an unsigned LEB128 varint.
func (d *Decoder) ReadVarUint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	switch {
	case n == 0:
		return 0, ErrUnexpectedEnd
	case n < 0:
		return 0, ErrOverflow
	}
	d.pos += n
	return v, nil
}

// ReadVarUint8Array reads a length-prefixed byte array. The result aliases
// the decoder's input.
func (d *Decoder) ReadVarUint8Array() ([]byte, error) {
	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	p := d.buf[d.pos : d.pos+n]
	d.pos += n
	return p, nil
}

// ReadVarString reads a length-prefixed string.
func (d *Decoder) ReadVarString() (string, error) {
	p, err := d.ReadVarUint8Array()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadFloat64 reads 8 big-endian bytes.
func (d *Decoder) ReadFloat64() (float64, error) {
	if d.Remaining() < 8 {
		return 0, ErrUnexpectedEnd
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return math.Float64frombits(v), nil
}

// ReadCount reads a varint element count and rejects counts that cannot fit
// in the remaining input, given each element takes at least minSize bytes.
func (d *Decoder) ReadCount(minSize int) (int, error) {
	n, err := d.ReadVarUint()
	if err != nil {
		return 0, err
	}
	if minSize < 1 {
		minSize = 1
	}
	if n > uint64(d.Remaining()/minSize) {
		return 0, ErrUnexpectedEnd
	}
	return int(n), nil
}

func (d *Decoder) readLength() (int, error) {
	n, err := d.ReadVarUint()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.Remaining()) {
		return 0, ErrUnexpectedEnd
	}
	return int(n), nil
}
