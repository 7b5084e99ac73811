// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package convert translates documents between Markdown, HTML, block JSON
// and the block snapshot encoding. Every conversion decodes into blocks and
// encodes from blocks; there is no direct format-to-format path.
package convert

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/suitenumerique/docs-sub001/internal/blocks"
	"github.com/suitenumerique/docs-sub001/internal/crdt"
)

// MaxBodySize is the largest accepted request body.
const MaxBodySize = 10 << 20

// Media types. The snapshot is this service's own binary block encoding, not
// an editor CRDT update, so it is not offered under the CRDT media types.
const (
	TypeMarkdown   = "text/markdown"
	TypeHTML       = "text/html"
	TypeJSON       = "application/json"
	TypeBlocks     = "application/vnd.blocknote+json"
	TypeSnapshot   = "application/vnd.docs.snapshot"
	TypeLegacyForm = "application/x-www-form-urlencoded"
)

// Failure messages returned to callers.
const (
	MsgMissingContent   = "missing content"
	MsgUnsupportedInput = "unsupported content type"
	MsgInvalidContent   = "invalid content"
	MsgNotAcceptable    = "unsupported accept type"
	MsgNoBlocks         = "no valid blocks were generated"
)

// Error is a conversion failure with its HTTP status.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("convert: %s: %v", e.Message, e.Err)
	}
	return "convert: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Decoder turns a request body into blocks.
type Decoder func(body []byte) ([]blocks.Block, error)

// Encoder turns blocks into a response body.
type Encoder func(bs []blocks.Block) ([]byte, error)

type output struct {
	contentType string
	encode      Encoder
}

// Converter holds the decoders and encoders keyed by media type.
type Converter struct {
	decoders map[string]Decoder
	encoders map[string]output
}

// New returns a Converter with every supported format registered.
func New() *Converter {
	c := &Converter{
		decoders: make(map[string]Decoder),
		encoders: make(map[string]output),
	}

	c.RegisterDecoder(TypeMarkdown, blocks.FromMarkdown)
	c.RegisterDecoder(TypeLegacyForm, decodeLegacyForm)
	c.RegisterDecoder(TypeSnapshot, crdt.DecodeDocument)
	c.RegisterDecoder(TypeBlocks, blocks.FromJSON)

	c.RegisterEncoder(TypeJSON, TypeJSON, blocks.ToJSON)
	c.RegisterEncoder(TypeBlocks, TypeBlocks, blocks.ToJSON)
	c.RegisterEncoder(TypeMarkdown, TypeMarkdown+"; charset=utf-8", infallible(blocks.ToMarkdown))
	c.RegisterEncoder(TypeHTML, TypeHTML+"; charset=utf-8", infallible(blocks.ToHTML))
	c.RegisterEncoder(TypeSnapshot, TypeSnapshot, infallible(crdt.EncodeDocument))
	return c
}

func infallible(fn func([]blocks.Block) []byte) Encoder {
	return func(bs []blocks.Block) ([]byte, error) { return fn(bs), nil }
}

// RegisterDecoder registers dec for mediaType, replacing any previous one.
func (c *Converter) RegisterDecoder(mediaType string, dec Decoder) {
	c.decoders[mediaType] = dec
}

// RegisterEncoder registers enc for mediaType. The response carries
// contentType.
func (c *Converter) RegisterEncoder(mediaType, contentType string, enc Encoder) {
	c.encoders[mediaType] = output{contentType: contentType, encode: enc}
}

// Result is a successful conversion.
type Result struct {
	ContentType string
	Body        []byte
	Blocks      int
}

// Convert decodes body as contentType and encodes it for accept. Failures
// are *Error values, checked in this order: empty body, unknown content
// type, undecodable body, unknown accept, no blocks.
func (c *Converter) Convert(contentType, accept string, body []byte) (*Result, error) {
	if len(body) == 0 {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgMissingContent}
	}

	dec, ok := c.decoders[MediaType(contentType)]
	if !ok {
		return nil, &Error{Status: http.StatusUnsupportedMediaType, Message: MsgUnsupportedInput}
	}
	bs, err := dec(body)
	if err != nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgInvalidContent, Err: err}
	}

	out, ok := c.negotiate(accept)
	if !ok {
		return nil, &Error{Status: http.StatusNotAcceptable, Message: MsgNotAcceptable}
	}
	if len(bs) == 0 {
		return nil, &Error{Status: http.StatusInternalServerError, Message: MsgNoBlocks}
	}

	p, err := out.encode(bs)
	if err != nil {
		return nil, &Error{Status: http.StatusInternalServerError, Message: "encoding failed", Err: err}
	}
	return &Result{ContentType: out.contentType, Body: p, Blocks: len(bs)}, nil
}

// negotiate picks the first registered media type of accept. An empty
// header or a wildcard selects JSON.
func (c *Converter) negotiate(accept string) (output, bool) {
	if strings.TrimSpace(accept) == "" {
		return c.encoders[TypeJSON], true
	}
	for _, part := range strings.Split(accept, ",") {
		mt := MediaType(part)
		if out, ok := c.encoders[mt]; ok {
			return out, true
		}
		if mt == "*/*" || mt == "application/*" {
			return c.encoders[TypeJSON], true
		}
	}
	return output{}, false
}

// MediaType returns the lower-cased media type of a header value without
// its parameters, or "" when it cannot be parsed.
func MediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}

// InputFormat is the metrics label of a Content-Type header.
func InputFormat(contentType string) string {
	return formatLabel(MediaType(contentType))
}

// OutputFormat is the metrics label of an Accept header.
func OutputFormat(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return "json"
	}
	return formatLabel(MediaType(strings.Split(accept, ",")[0]))
}

func formatLabel(mt string) string {
	switch mt {
	case TypeMarkdown, TypeLegacyForm:
		return "markdown"
	case TypeHTML:
		return "html"
	case TypeJSON, TypeBlocks, "*/*":
		return "json"
	case TypeSnapshot:
		return "snapshot"
	default:
		return "other"
	}
}

var errEmptyForm = errors.New("form field content is empty")

// decodeLegacyForm accepts the old editor integration, which posted the
// Markdown in a "content" form field. A body that is not such a form is
// taken as Markdown.
func decodeLegacyForm(body []byte) ([]blocks.Block, error) {
	values, err := url.ParseQuery(string(body))
	if err == nil && values.Has("content") {
		content := values.Get("content")
		if content == "" {
			return nil, errEmptyForm
		}
		return blocks.FromMarkdown([]byte(content))
	}
	return blocks.FromMarkdown(body)
}
