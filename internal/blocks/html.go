// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package blocks

import (
	"html"
	"strconv"
	"strings"
)

// ToHTML renders blocks as an HTML fragment. Consecutive list items share
// one list element.
func ToHTML(bs []Block) []byte {
	var sb strings.Builder
	writeHTMLBlocks(&sb, bs)
	return []byte(sb.String())
}

func listTag(t string) string {
	switch t {
	case TypeBulletListItem, TypeCheckListItem:
		return "ul"
	case TypeNumberedListItem:
		return "ol"
	}
	return ""
}

func writeHTMLBlocks(sb *strings.Builder, bs []Block) {
	open := ""
	for i := range bs {
		b := &bs[i]
		tag := listTag(b.Type)
		if tag != open {
			if open != "" {
				sb.WriteString("</" + open + ">")
			}
			if tag != "" {
				sb.WriteString("<" + tag + ">")
			}
			open = tag
		}
		writeHTMLBlock(sb, b)
	}
	if open != "" {
		sb.WriteString("</" + open + ">")
	}
}

func writeHTMLBlock(sb *strings.Builder, b *Block) {
	switch b.Type {
	case TypeHeading:
		level := propInt(b, "level", 1)
		if level < 1 || level > 6 {
			level = 1
		}
		tag := "h" + strconv.Itoa(level)
		sb.WriteString("<" + tag + ">")
		writeHTMLInline(sb, b.Content)
		sb.WriteString("</" + tag + ">")

	case TypeBulletListItem, TypeNumberedListItem, TypeCheckListItem:
		sb.WriteString("<li>")
		if b.Type == TypeCheckListItem {
			if propBool(b, "checked") {
				sb.WriteString(`<input type="checkbox" checked disabled> `)
			} else {
				sb.WriteString(`<input type="checkbox" disabled> `)
			}
		}
		writeHTMLInline(sb, b.Content)
		writeHTMLBlocks(sb, b.Children)
		sb.WriteString("</li>")
		return

	case TypeCodeBlock:
		sb.WriteString("<pre><code")
		if lang := propString(b, "language"); lang != "" {
			sb.WriteString(` class="language-` + html.EscapeString(lang) + `"`)
		}
		sb.WriteString(">")
		sb.WriteString(html.EscapeString(PlainText(b.Content)))
		sb.WriteString("</code></pre>")

	case TypeQuote:
		sb.WriteString("<blockquote>")
		writeHTMLInline(sb, b.Content)
		sb.WriteString("</blockquote>")

	case TypeImage:
		sb.WriteString(`<img src="` + html.EscapeString(propString(b, "url")) + `"`)
		if caption := propString(b, "caption"); caption != "" {
			sb.WriteString(` alt="` + html.EscapeString(caption) + `"`)
		}
		sb.WriteString(">")

	case TypeDivider:
		sb.WriteString("<hr>")

	default:
		sb.WriteString("<p>")
		writeHTMLInline(sb, b.Content)
		sb.WriteString("</p>")
	}

	if len(b.Children) > 0 {
		writeHTMLBlocks(sb, b.Children)
	}
}

func writeHTMLInline(sb *strings.Builder, content []InlineContent) {
	for i := range content {
		ic := &content[i]
		if ic.Type == InlineLink {
			sb.WriteString(`<a href="` + html.EscapeString(ic.Href) + `">`)
			writeHTMLInline(sb, ic.Content)
			sb.WriteString("</a>")
			continue
		}

		var tags []string
		if styleOn(ic, StyleBold) {
			tags = append(tags, "strong")
		}
		if styleOn(ic, StyleItalic) {
			tags = append(tags, "em")
		}
		if styleOn(ic, StyleUnderline) {
			tags = append(tags, "u")
		}
		if styleOn(ic, StyleStrike) {
			tags = append(tags, "s")
		}
		if styleOn(ic, StyleCode) {
			tags = append(tags, "code")
		}
		for _, t := range tags {
			sb.WriteString("<" + t + ">")
		}
		sb.WriteString(strings.ReplaceAll(html.EscapeString(ic.Text), "\n", "<br>"))
		for j := len(tags) - 1; j >= 0; j-- {
			sb.WriteString("</" + tags[j] + ">")
		}
	}
}
