// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package blocks defines the structured block representation every format
// conversion goes through, plus its Markdown, HTML and JSON codecs.
//
// Numeric props are float64 so that a block decoded from JSON compares equal
// to one built in Go.
package blocks

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Block types.
const (
	TypeParagraph        = "paragraph"
	TypeHeading          = "heading"
	TypeBulletListItem   = "bulletListItem"
	TypeNumberedListItem = "numberedListItem"
	TypeCheckListItem    = "checkListItem"
	TypeCodeBlock        = "codeBlock"
	TypeQuote            = "quote"
	TypeImage            = "image"
	TypeDivider          = "divider"
)

// Inline content types.
const (
	InlineText = "text"
	InlineLink = "link"
)

// Style keys.
const (
	StyleBold      = "bold"
	StyleItalic    = "italic"
	StyleStrike    = "strike"
	StyleCode      = "code"
	StyleUnderline = "underline"
)

// Block is one node of a document.
type Block struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Props    map[string]any  `json:"props"`
	Content  []InlineContent `json:"content"`
	Children []Block         `json:"children"`
}

// InlineContent is a styled text run or a link wrapping text runs.
type InlineContent struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Styles  map[string]any  `json:"styles,omitempty"`
	Href    string          `json:"href,omitempty"`
	Content []InlineContent `json:"content,omitempty"`
}

// New returns a block of type t with a fresh id and empty collections.
func New(t string) Block {
	return Block{
		ID:       uuid.NewString(),
		Type:     t,
		Props:    map[string]any{},
		Content:  []InlineContent{},
		Children: []Block{},
	}
}

// Text returns an unstyled text run.
func Text(s string) InlineContent {
	return InlineContent{Type: InlineText, Text: s, Styles: map[string]any{}}
}

// Link returns a link around content.
func Link(href string, content ...InlineContent) InlineContent {
	if content == nil {
		content = []InlineContent{}
	}
	return InlineContent{Type: InlineLink, Href: href, Content: content}
}

// Heading returns a heading block of the given level.
func Heading(level int, content ...InlineContent) Block {
	b := New(TypeHeading)
	b.Props["level"] = float64(level)
	b.Content = append(b.Content, content...)
	return b
}

// Paragraph returns a paragraph block.
func Paragraph(content ...InlineContent) Block {
	b := New(TypeParagraph)
	b.Content = append(b.Content, content...)
	return b
}

// PlainText concatenates the text of inline content, links included.
func PlainText(content []InlineContent) string {
	var sb strings.Builder
	for _, ic := range content {
		if ic.Type == InlineLink {
			sb.WriteString(PlainText(ic.Content))
			continue
		}
		sb.WriteString(ic.Text)
	}
	return sb.String()
}

// Normalize replaces nil collections with empty ones, recursively, so that
// decoded and constructed documents compare equal.
func Normalize(bs []Block) []Block {
	if bs == nil {
		return []Block{}
	}
	for i := range bs {
		if bs[i].Props == nil {
			bs[i].Props = map[string]any{}
		}
		bs[i].Content = normalizeInline(bs[i].Content)
		bs[i].Children = Normalize(bs[i].Children)
	}
	return bs
}

func normalizeInline(ics []InlineContent) []InlineContent {
	if ics == nil {
		return []InlineContent{}
	}
	for i := range ics {
		switch ics[i].Type {
		case InlineLink:
			ics[i].Styles = nil
			ics[i].Content = normalizeInline(ics[i].Content)
		default:
			if ics[i].Styles == nil {
				ics[i].Styles = map[string]any{}
			}
			ics[i].Content = nil
		}
	}
	return ics
}

// ErrEmptyType is returned when a decoded block has no type.
var ErrEmptyType = errors.New("block without type")

// FromJSON decodes a JSON array of blocks.
func FromJSON(data []byte) ([]Block, error) {
	var bs []Block
	if err := json.Unmarshal(data, &bs); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	if err := checkTypes(bs); err != nil {
		return nil, err
	}
	return Normalize(bs), nil
}

func checkTypes(bs []Block) error {
	for i := range bs {
		if bs[i].Type == "" {
			return ErrEmptyType
		}
		for _, ic := range bs[i].Content {
			if ic.Type != InlineText && ic.Type != InlineLink {
				return fmt.Errorf("unsupported inline content type %q", ic.Type)
			}
		}
		if err := checkTypes(bs[i].Children); err != nil {
			return err
		}
	}
	return nil
}

// ToJSON encodes blocks as a JSON array.
func ToJSON(bs []Block) ([]byte, error) {
	return json.Marshal(Normalize(bs))
}

// propString returns a string prop or "".
func propString(b *Block, key string) string {
	s, _ := b.Props[key].(string)
	return s
}

// propInt returns a numeric prop as int, or def.
func propInt(b *Block, key string, def int) int {
	switch v := b.Props[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func propBool(b *Block, key string) bool {
	v, _ := b.Props[key].(bool)
	return v
}

func styleOn(ic *InlineContent, key string) bool {
	switch v := ic.Styles[key].(type) {
	case bool:
		return v
	case string:
		return v != ""
	}
	return false
}
