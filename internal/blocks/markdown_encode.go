// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package blocks

import (
	"strconv"
	"strings"
	"unicode"
)

// ToMarkdown renders blocks as CommonMark. The rendering is lossy (colors,
// underline and alignment are dropped) but stable: parsing the output and
// rendering it again produces the same text.
func ToMarkdown(bs []Block) []byte {
	var sb strings.Builder
	writeMarkdownBlocks(&sb, bs, "")
	out := strings.TrimRight(sb.String(), "\n")
	if out == "" {
		return []byte{}
	}
	return []byte(out + "\n")
}

// listMarkerFamily groups block types whose consecutive items form one
// Markdown list.
func listMarkerFamily(t string) string {
	switch t {
	case TypeBulletListItem, TypeCheckListItem:
		return "-"
	case TypeNumberedListItem:
		return "."
	}
	return ""
}

func writeMarkdownBlocks(sb *strings.Builder, bs []Block, indent string) {
	number := 0
	written := false
	prevFamily := ""
	for i := range bs {
		b := &bs[i]
		if b.Type == TypeNumberedListItem {
			number++
		} else {
			number = 0
		}

		var chunk strings.Builder
		writeMarkdownBlock(&chunk, b, indent, number)
		if chunk.Len() == 0 {
			continue
		}

		family := listMarkerFamily(b.Type)
		if written {
			if family != "" && family == prevFamily {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(chunk.String())
		written = true
		prevFamily = family
	}
}

func writeMarkdownBlock(sb *strings.Builder, b *Block, indent string, number int) {
	switch b.Type {
	case TypeHeading:
		level := propInt(b, "level", 1)
		if level < 1 {
			level = 1
		} else if level > 6 {
			level = 6
		}
		text := inlineMarkdown(flattenBreaks(b.Content), false)
		line := strings.Repeat("#", level)
		if text != "" {
			line += " " + text
		}
		writeIndented(sb, indent, indent, line)

	case TypeBulletListItem, TypeNumberedListItem, TypeCheckListItem:
		marker := "- "
		switch b.Type {
		case TypeNumberedListItem:
			marker = strconv.Itoa(number) + ". "
		case TypeCheckListItem:
			if propBool(b, "checked") {
				marker = "- [x] "
			} else {
				marker = "- [ ] "
			}
		}
		width := len(marker)
		if b.Type == TypeCheckListItem {
			width = 2
		}
		cont := indent + strings.Repeat(" ", width)
		writeIndented(sb, indent+marker, cont, inlineMarkdown(b.Content, b.Type != TypeCheckListItem))
		if len(b.Children) > 0 {
			var children strings.Builder
			writeMarkdownBlocks(&children, b.Children, cont)
			if children.Len() > 0 {
				if listMarkerFamily(b.Children[0].Type) != "" {
					sb.WriteString("\n")
				} else {
					sb.WriteString("\n\n")
				}
				sb.WriteString(children.String())
			}
		}
		return

	case TypeCodeBlock:
		code := PlainText(b.Content)
		fence := "```"
		for strings.Contains(code, fence) {
			fence += "`"
		}
		lines := []string{fence + propString(b, "language")}
		if code != "" {
			lines = append(lines, strings.Split(code, "\n")...)
		}
		lines = append(lines, fence)
		for i, l := range lines {
			if i > 0 {
				sb.WriteString("\n")
			}
			if l != "" {
				sb.WriteString(indent)
			}
			sb.WriteString(l)
		}

	case TypeQuote:
		text := inlineMarkdown(b.Content, true)
		if text == "" {
			writeIndented(sb, indent+">", indent+">", "")
			break
		}
		writeIndented(sb, indent+"> ", indent+"> ", text)

	case TypeImage:
		url := propString(b, "url")
		if url == "" {
			return
		}
		caption := escapeMarkdownText(propString(b, "caption"), false)
		writeIndented(sb, indent, indent, "!["+caption+"]("+escapeHref(url)+")")

	case TypeDivider:
		writeIndented(sb, indent, indent, "---")

	default:
		text := inlineMarkdown(b.Content, true)
		if text != "" {
			writeIndented(sb, indent, indent, text)
		}
	}

	// Children of non-list blocks are rendered as following siblings.
	if len(b.Children) > 0 {
		var children strings.Builder
		writeMarkdownBlocks(&children, b.Children, indent)
		if children.Len() > 0 {
			sb.WriteString("\n\n")
			sb.WriteString(children.String())
		}
	}
}

// writeIndented writes text, prefixing its first line with first and the
// following lines with rest.
func writeIndented(sb *strings.Builder, first, rest, text string) {
	for i, line := range strings.Split(text, "\n") {
		if i == 0 {
			sb.WriteString(first)
		} else {
			sb.WriteString("\n")
			sb.WriteString(rest)
		}
		sb.WriteString(line)
	}
}

func flattenBreaks(content []InlineContent) []InlineContent {
	out := make([]InlineContent, len(content))
	for i, ic := range content {
		out[i] = ic
		out[i].Text = strings.ReplaceAll(ic.Text, "\n", " ")
		if ic.Type == InlineLink {
			out[i].Content = flattenBreaks(ic.Content)
		}
	}
	return out
}

// inlineMarkdown renders inline content. Line breaks become backslash hard
// breaks. lineStart reports whether the output begins a Markdown line, which
// requires escaping block markers.
func inlineMarkdown(content []InlineContent, lineStart bool) string {
	var sb strings.Builder
	for i := range content {
		ic := &content[i]
		atStart := lineStart && sb.Len() == 0
		if ic.Type == InlineLink {
			sb.WriteString("[")
			sb.WriteString(inlineMarkdown(ic.Content, false))
			sb.WriteString("](")
			sb.WriteString(escapeHref(ic.Href))
			sb.WriteString(")")
			continue
		}
		run := styledRun(ic, atStart)
		if strings.HasSuffix(run, "!") && i+1 < len(content) && content[i+1].Type == InlineLink {
			run = run[:len(run)-1] + "\\!"
		}
		sb.WriteString(run)
	}
	return sb.String()
}

func styledRun(ic *InlineContent, atStart bool) string {
	text := ic.Text
	if text == "" {
		return ""
	}

	var open, close string
	if styleOn(ic, StyleStrike) {
		open += "~~"
		close = "~~" + close
	}
	if styleOn(ic, StyleBold) {
		open += "**"
		close = "**" + close
	}
	if styleOn(ic, StyleItalic) {
		open += "*"
		close = "*" + close
	}
	code := styleOn(ic, StyleCode)

	if open == "" && !code {
		return escapeMarkdownText(text, atStart)
	}

	// Emphasis cannot start or end with whitespace: move it outside the markers.
	core := strings.TrimFunc(text, unicode.IsSpace)
	if core == "" {
		return escapeMarkdownText(text, atStart)
	}
	lead := text[:strings.Index(text, core)]
	trail := text[len(lead)+len(core):]

	var body string
	if code {
		body = codeSpan(strings.ReplaceAll(core, "\n", " "))
	} else {
		body = escapeMarkdownText(core, false)
	}
	return escapeMarkdownText(lead, atStart) + open + body + close + escapeMarkdownText(trail, false)
}

func codeSpan(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	ticks := strings.Repeat("`", longest+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		return ticks + " " + s + " " + ticks
	}
	return ticks + s + ticks
}

const markdownSpecial = "\\`*_[]<>~&"

// escapeMarkdownText backslash-escapes inline syntax. Newlines become hard
// breaks and each following line, like the first when lineStart is set, has
// its block markers escaped.
func escapeMarkdownText(s string, lineStart bool) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		var sb strings.Builder
		for _, r := range line {
			if strings.ContainsRune(markdownSpecial, r) {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
		escaped := sb.String()
		if i > 0 || lineStart {
			escaped = escapeLineStart(escaped)
		}
		lines[i] = escaped
	}
	return strings.Join(lines, "\\\n")
}

// escapeLineStart escapes characters that would open a heading, list,
// setext underline or thematic break at the beginning of a line.
func escapeLineStart(line string) string {
	if line == "" {
		return line
	}
	switch line[0] {
	case '#', '-', '+', '=':
		return "\\" + line
	}
	digits := 0
	for digits < len(line) && line[digits] >= '0' && line[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(line) && (line[digits] == '.' || line[digits] == ')') {
		return line[:digits] + "\\" + line[digits:]
	}
	return line
}

func escapeHref(href string) string {
	r := strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29", "<", "%3C", ">", "%3E")
	return r.Replace(href)
}
