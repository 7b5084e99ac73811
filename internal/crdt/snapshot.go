// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package crdt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/suitenumerique/docs-sub001/internal/blocks"
)

// FragmentName is the shared type holding the editor document.
const FragmentName = "document-store"

const snapshotVersion = 1

// maxDepth bounds block nesting when decoding untrusted input.
const maxDepth = 64

var snapshotMagic = []byte("DOCS")

// Errors returned by DecodeDocument.
var (
	ErrBadMagic       = errors.New("crdt: not a document snapshot")
	ErrBadVersion     = errors.New("crdt: unsupported snapshot version")
	ErrTrailingBytes  = errors.New("crdt: trailing bytes after snapshot")
	ErrTooDeep        = errors.New("crdt: block nesting too deep")
	ErrUnknownValue   = errors.New("crdt: unknown value tag")
	ErrUnknownInline  = errors.New("crdt: unknown inline content kind")
	ErrFragmentAbsent = errors.New("crdt: snapshot has no document-store fragment")
)

const (
	tagNull uint8 = iota
	tagFalse
	tagTrue
	tagFloat
	tagString
)

const (
	inlineKindText uint8 = iota
	inlineKindLink
)

// EncodeDocument serializes blocks. Prop and style values must be strings,
// booleans, numbers or nil; integers are stored as float64 and other types
// are stored as nil.
func EncodeDocument(bs []blocks.Block) []byte {
	enc := NewEncoder(256)
	enc.WriteRaw(snapshotMagic)
	enc.WriteUint8(snapshotVersion)
	enc.WriteVarString(FragmentName)
	encodeBlocks(enc, bs)
	return enc.Bytes()
}

func encodeBlocks(enc *Encoder, bs []blocks.Block) {
	enc.WriteVarUint(uint64(len(bs)))
	for i := range bs {
		b := &bs[i]
		enc.WriteVarString(b.ID)
		enc.WriteVarString(b.Type)
		encodeMap(enc, b.Props)
		encodeInline(enc, b.Content)
		encodeBlocks(enc, b.Children)
	}
}

func encodeInline(enc *Encoder, content []blocks.InlineContent) {
	enc.WriteVarUint(uint64(len(content)))
	for i := range content {
		ic := &content[i]
		if ic.Type == blocks.InlineLink {
			enc.WriteUint8(inlineKindLink)
			enc.WriteVarString(ic.Href)
			encodeInline(enc, ic.Content)
			continue
		}
		enc.WriteUint8(inlineKindText)
		enc.WriteVarString(ic.Text)
		encodeMap(enc, ic.Styles)
	}
}

func encodeMap(enc *Encoder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	enc.WriteVarUint(uint64(len(keys)))
	for _, k := range keys {
		enc.WriteVarString(k)
		encodeValue(enc, m[k])
	}
}

func encodeValue(enc *Encoder, v any) {
	switch val := v.(type) {
	case bool:
		if val {
			enc.WriteUint8(tagTrue)
		} else {
			enc.WriteUint8(tagFalse)
		}
	case float64:
		enc.WriteUint8(tagFloat)
		enc.WriteFloat64(val)
	case float32:
		enc.WriteUint8(tagFloat)
		enc.WriteFloat64(float64(val))
	case int:
		enc.WriteUint8(tagFloat)
		enc.WriteFloat64(float64(val))
	case int64:
		enc.WriteUint8(tagFloat)
		enc.WriteFloat64(float64(val))
	case string:
		enc.WriteUint8(tagString)
		enc.WriteVarString(val)
	default:
		enc.WriteUint8(tagNull)
	}
}

// DecodeDocument parses a snapshot produced by EncodeDocument.
func DecodeDocument(p []byte) ([]blocks.Block, error) {
	if !bytes.HasPrefix(p, snapshotMagic) {
		return nil, ErrBadMagic
	}
	dec := NewDecoder(p[len(snapshotMagic):])

	version, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	name, err := dec.ReadVarString()
	if err != nil {
		return nil, fmt.Errorf("fragment name: %w", err)
	}
	if name != FragmentName {
		return nil, ErrFragmentAbsent
	}

	bs, err := decodeBlocks(dec, 0)
	if err != nil {
		return nil, err
	}
	if dec.HasContent() {
		return nil, ErrTrailingBytes
	}
	return bs, nil
}

func decodeBlocks(dec *Decoder, depth int) ([]blocks.Block, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	// id, type, props, content and children take at least one byte each.
	n, err := dec.ReadCount(5)
	if err != nil {
		return nil, fmt.Errorf("block count: %w", err)
	}

	out := make([]blocks.Block, 0, n)
	for i := 0; i < n; i++ {
		var b blocks.Block
		if b.ID, err = dec.ReadVarString(); err != nil {
			return nil, fmt.Errorf("block id: %w", err)
		}
		if b.Type, err = dec.ReadVarString(); err != nil {
			return nil, fmt.Errorf("block type: %w", err)
		}
		if b.Props, err = decodeMap(dec); err != nil {
			return nil, fmt.Errorf("block props: %w", err)
		}
		if b.Content, err = decodeInline(dec, depth); err != nil {
			return nil, fmt.Errorf("block content: %w", err)
		}
		if b.Children, err = decodeBlocks(dec, depth+1); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeInline(dec *Decoder, depth int) ([]blocks.InlineContent, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	n, err := dec.ReadCount(2)
	if err != nil {
		return nil, err
	}

	out := make([]blocks.InlineContent, 0, n)
	for i := 0; i < n; i++ {
		kind, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		switch kind {
		case inlineKindText:
			text, err := dec.ReadVarString()
			if err != nil {
				return nil, err
			}
			styles, err := decodeMap(dec)
			if err != nil {
				return nil, err
			}
			out = append(out, blocks.InlineContent{Type: blocks.InlineText, Text: text, Styles: styles})
		case inlineKindLink:
			href, err := dec.ReadVarString()
			if err != nil {
				return nil, err
			}
			content, err := decodeInline(dec, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, blocks.InlineContent{Type: blocks.InlineLink, Href: href, Content: content})
		default:
			return nil, ErrUnknownInline
		}
	}
	return out, nil
}

func decodeMap(dec *Decoder) (map[string]any, error) {
	n, err := dec.ReadCount(2)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		key, err := dec.ReadVarString()
		if err != nil {
			return nil, err
		}
		tag, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagNull:
			m[key] = nil
		case tagFalse:
			m[key] = false
		case tagTrue:
			m[key] = true
		case tagFloat:
			f, err := dec.ReadFloat64()
			if err != nil {
				return nil, err
			}
			m[key] = f
		case tagString:
			s, err := dec.ReadVarString()
			if err != nil {
				return nil, err
			}
			m[key] = s
		default:
			return nil, ErrUnknownValue
		}
	}
	return m, nil
}
