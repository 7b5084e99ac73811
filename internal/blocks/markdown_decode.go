// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package blocks

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.TaskList),
).Parser()

// FromMarkdown parses CommonMark (with strikethrough and task lists) into
// blocks. Whitespace-only input yields no blocks.
func FromMarkdown(src []byte) ([]Block, error) {
	doc := markdownParser.Parse(text.NewReader(src))
	d := mdDecoder{src: src}
	return d.blocks(doc), nil
}

type mdDecoder struct {
	src []byte
}

// blocks converts the block-level children of parent.
func (d *mdDecoder) blocks(parent ast.Node) []Block {
	out := []Block{}
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, d.block(n)...)
	}
	return out
}

func (d *mdDecoder) block(n ast.Node) []Block {
	switch node := n.(type) {
	case *ast.Heading:
		b := Heading(node.Level)
		b.Content = d.inline(node, nil)
		return []Block{b}

	case *ast.Paragraph, *ast.TextBlock:
		return d.paragraph(node)

	case *ast.List:
		return d.list(node)

	case *ast.FencedCodeBlock:
		b := New(TypeCodeBlock)
		if lang := node.Language(d.src); len(lang) > 0 {
			b.Props["language"] = string(lang)
		}
		if code := d.lines(node); code != "" {
			b.Content = append(b.Content, Text(code))
		}
		return []Block{b}

	case *ast.CodeBlock:
		b := New(TypeCodeBlock)
		if code := d.lines(node); code != "" {
			b.Content = append(b.Content, Text(code))
		}
		return []Block{b}

	case *ast.Blockquote:
		b := New(TypeQuote)
		first := true
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if !first {
				b.Content = appendInline(b.Content, Text("\n"))
			}
			first = false
			if c.Kind() == ast.KindParagraph || c.Kind() == ast.KindTextBlock || c.Kind() == ast.KindHeading {
				for _, ic := range d.inline(c, nil) {
					b.Content = appendInline(b.Content, ic)
				}
				continue
			}
			b.Content = appendInline(b.Content, Text(plainOf(d.block(c))))
		}
		return []Block{b}

	case *ast.ThematicBreak:
		return []Block{New(TypeDivider)}

	case *ast.HTMLBlock:
		raw := strings.TrimRight(d.lines(node), "\n")
		if raw == "" {
			return nil
		}
		return []Block{Paragraph(Text(raw))}
	}

	// Unknown container: flatten its children.
	if n.HasChildren() {
		return d.blocks(n)
	}
	return nil
}

// paragraph splits out images, which are blocks of their own.
func (d *mdDecoder) paragraph(n ast.Node) []Block {
	var out []Block
	current := Paragraph()
	flush := func() {
		if len(current.Content) > 0 {
			current.Content = trimInline(current.Content)
			if len(current.Content) > 0 {
				out = append(out, current)
			}
		}
		current = Paragraph()
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if img, ok := c.(*ast.Image); ok {
			flush()
			b := New(TypeImage)
			b.Props["url"] = unescape(img.Destination)
			if alt := d.plain(img); alt != "" {
				b.Props["caption"] = alt
			}
			out = append(out, b)
			continue
		}
		for _, ic := range d.inlineNode(c, nil) {
			current.Content = appendInline(current.Content, ic)
		}
	}
	flush()
	return out
}

func (d *mdDecoder) list(l *ast.List) []Block {
	out := []Block{}
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		b := New(TypeBulletListItem)
		if l.IsOrdered() {
			b.Type = TypeNumberedListItem
		}

		seenText := false
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			isText := c.Kind() == ast.KindParagraph || c.Kind() == ast.KindTextBlock
			if isText && !seenText {
				seenText = true
				if box, ok := c.FirstChild().(*east.TaskCheckBox); ok {
					b.Type = TypeCheckListItem
					b.Props["checked"] = box.IsChecked
				}
				b.Content = trimInline(d.inline(c, nil))
				if b.Type == TypeCheckListItem && len(b.Content) > 0 && b.Content[0].Type == InlineText {
					b.Content[0].Text = strings.TrimLeft(b.Content[0].Text, " ")
				}
				continue
			}
			b.Children = append(b.Children, d.block(c)...)
		}
		out = append(out, b)
	}
	return out
}

// inline converts the inline children of n.
func (d *mdDecoder) inline(n ast.Node, styles map[string]any) []InlineContent {
	out := []InlineContent{}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		for _, ic := range d.inlineNode(c, styles) {
			out = appendInline(out, ic)
		}
	}
	return trimInline(out)
}

func (d *mdDecoder) inlineNode(n ast.Node, styles map[string]any) []InlineContent {
	switch node := n.(type) {
	case *ast.Text:
		s := unescape(node.Segment.Value(d.src))
		if node.HardLineBreak() {
			s += "\n"
		} else if node.SoftLineBreak() {
			s += " "
		}
		return []InlineContent{styled(s, styles)}

	case *ast.String:
		return []InlineContent{styled(string(node.Value), styles)}

	case *ast.CodeSpan:
		var buf bytes.Buffer
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(d.src))
			} else if s, ok := c.(*ast.String); ok {
				buf.Write(s.Value)
			}
		}
		return []InlineContent{styled(buf.String(), with(styles, StyleCode))}

	case *ast.Emphasis:
		key := StyleItalic
		if node.Level >= 2 {
			key = StyleBold
		}
		return d.children(node, with(styles, key))

	case *east.Strikethrough:
		return d.children(node, with(styles, StyleStrike))

	case *ast.Link:
		return []InlineContent{Link(unescape(node.Destination), d.children(node, styles)...)}

	case *ast.AutoLink:
		url := string(node.URL(d.src))
		href := url
		if node.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(url), "mailto:") {
			href = "mailto:" + url
		}
		return []InlineContent{Link(href, styled(string(node.Label(d.src)), styles))}

	case *ast.Image:
		return []InlineContent{styled(d.plain(node), styles)}

	case *ast.RawHTML:
		var buf bytes.Buffer
		for i := 0; i < node.Segments.Len(); i++ {
			seg := node.Segments.At(i)
			buf.Write(seg.Value(d.src))
		}
		return []InlineContent{styled(buf.String(), styles)}

	case *east.TaskCheckBox:
		return nil
	}

	return d.children(n, styles)
}

func (d *mdDecoder) children(n ast.Node, styles map[string]any) []InlineContent {
	var out []InlineContent
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		for _, ic := range d.inlineNode(c, styles) {
			out = appendInline(out, ic)
		}
	}
	return out
}

func (d *mdDecoder) plain(n ast.Node) string {
	return PlainText(d.children(n, nil))
}

func (d *mdDecoder) lines(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(d.src))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func unescape(v []byte) string {
	v = util.UnescapePunctuations(v)
	v = util.ResolveNumericReferences(v)
	v = util.ResolveEntityNames(v)
	return string(v)
}

func styled(s string, styles map[string]any) InlineContent {
	ic := Text(s)
	for k, v := range styles {
		ic.Styles[k] = v
	}
	return ic
}

func with(styles map[string]any, key string) map[string]any {
	out := make(map[string]any, len(styles)+1)
	for k, v := range styles {
		out[k] = v
	}
	out[key] = true
	return out
}

// appendInline appends ic, merging it into the previous run when both are
// text with identical styles. Empty text runs are dropped.
func appendInline(out []InlineContent, ic InlineContent) []InlineContent {
	if ic.Type == InlineText && ic.Text == "" {
		return out
	}
	if n := len(out); n > 0 && ic.Type == InlineText && out[n-1].Type == InlineText && sameStyles(out[n-1].Styles, ic.Styles) {
		out[n-1].Text += ic.Text
		return out
	}
	return append(out, ic)
}

func sameStyles(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// trimInline strips the trailing line-break whitespace a paragraph's last
// text node carries.
func trimInline(ics []InlineContent) []InlineContent {
	for len(ics) > 0 {
		last := &ics[len(ics)-1]
		if last.Type != InlineText {
			break
		}
		last.Text = strings.TrimRight(last.Text, " \n")
		if last.Text != "" {
			break
		}
		ics = ics[:len(ics)-1]
	}
	return ics
}

func plainOf(bs []Block) string {
	parts := make([]string, 0, len(bs))
	for i := range bs {
		parts = append(parts, PlainText(bs[i].Content))
	}
	return strings.Join(parts, "\n")
}
