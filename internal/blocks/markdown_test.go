// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package blocks

import (
	"testing"
)

func TestFromMarkdown_HeadingAndParagraph(t *testing.T) {
	t.Parallel()

	bs, err := FromMarkdown([]byte("# Title\n\nBody."))
	if err != nil {
		t.Fatalf("FromMarkdown() error = %v", err)
	}
	if len(bs) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(bs))
	}
	if bs[0].Type != TypeHeading || bs[0].Props["level"] != float64(1) {
		t.Errorf("first block = %s %v, want heading level 1", bs[0].Type, bs[0].Props)
	}
	if got := PlainText(bs[0].Content); got != "Title" {
		t.Errorf("heading text = %q", got)
	}
	if bs[1].Type != TypeParagraph || PlainText(bs[1].Content) != "Body." {
		t.Errorf("second block = %s %q", bs[1].Type, PlainText(bs[1].Content))
	}
	if bs[0].ID == "" || bs[0].ID == bs[1].ID {
		t.Error("blocks should carry distinct ids")
	}
}

func TestFromMarkdown_Lists(t *testing.T) {
	t.Parallel()

	src := "- one\n- two\n  - nested\n\n1. first\n2. second\n\n- [x] done\n- [ ] todo\n"
	bs, err := FromMarkdown([]byte(src))
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		typ  string
		text string
	}{
		{TypeBulletListItem, "one"},
		{TypeBulletListItem, "two"},
		{TypeNumberedListItem, "first"},
		{TypeNumberedListItem, "second"},
		{TypeCheckListItem, "done"},
		{TypeCheckListItem, "todo"},
	}
	if len(bs) != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), len(bs))
	}
	for i, w := range want {
		if bs[i].Type != w.typ || PlainText(bs[i].Content) != w.text {
			t.Errorf("block %d = %s %q, want %s %q", i, bs[i].Type, PlainText(bs[i].Content), w.typ, w.text)
		}
	}
	if len(bs[1].Children) != 1 || PlainText(bs[1].Children[0].Content) != "nested" {
		t.Errorf("nested item not attached as child: %+v", bs[1].Children)
	}
	if bs[4].Props["checked"] != true || bs[5].Props["checked"] != false {
		t.Errorf("checked props = %v, %v", bs[4].Props["checked"], bs[5].Props["checked"])
	}
}

func TestFromMarkdown_InlineStyles(t *testing.T) {
	t.Parallel()

	src := "Some **bold** and *it* and `code` and [link](https://example.com) ~~gone~~."
	bs, err := FromMarkdown([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 1 {
		t.Fatalf("expected 1 block, got %d", len(bs))
	}
	c := bs[0].Content
	if len(c) != 11 {
		t.Fatalf("expected 11 inline runs, got %d: %+v", len(c), c)
	}
	if c[1].Text != "bold" || c[1].Styles[StyleBold] != true {
		t.Errorf("bold run = %+v", c[1])
	}
	if c[3].Text != "it" || c[3].Styles[StyleItalic] != true {
		t.Errorf("italic run = %+v", c[3])
	}
	if c[5].Text != "code" || c[5].Styles[StyleCode] != true {
		t.Errorf("code run = %+v", c[5])
	}
	if c[7].Type != InlineLink || c[7].Href != "https://example.com" || PlainText(c[7].Content) != "link" {
		t.Errorf("link = %+v", c[7])
	}
	if c[9].Text != "gone" || c[9].Styles[StyleStrike] != true {
		t.Errorf("strike run = %+v", c[9])
	}
}

func TestFromMarkdown_BlockKinds(t *testing.T) {
	t.Parallel()

	src := "```go\nfmt.Println(\"hi\")\n```\n\n> quoted\n\n---\n\n![alt text](https://example.com/i.png)\n"
	bs, err := FromMarkdown([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(bs))
	}
	if bs[0].Type != TypeCodeBlock || bs[0].Props["language"] != "go" || PlainText(bs[0].Content) != `fmt.Println("hi")` {
		t.Errorf("code block = %+v", bs[0])
	}
	if bs[1].Type != TypeQuote || PlainText(bs[1].Content) != "quoted" {
		t.Errorf("quote = %+v", bs[1])
	}
	if bs[2].Type != TypeDivider {
		t.Errorf("divider = %+v", bs[2])
	}
	if bs[3].Type != TypeImage || bs[3].Props["url"] != "https://example.com/i.png" || bs[3].Props["caption"] != "alt text" {
		t.Errorf("image = %+v", bs[3])
	}
}

func TestFromMarkdown_Empty(t *testing.T) {
	t.Parallel()

	bs, err := FromMarkdown([]byte("  \n\n \n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 0 {
		t.Errorf("expected no blocks, got %d", len(bs))
	}
}

func TestMarkdownRoundTripIsStable(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"# Title\n\nBody.",
		"# Title\n\nBody with **bold**, *italic* and a [link](https://example.com/page).\n",
		"- one\n- two\n  - nested\n\n1. first\n2. second\n\n- [x] done\n- [ ] todo\n",
		"```go\nfmt.Println(\"hi\")\n```\n\n> quoted *text*\n\n---\n\n![alt](https://example.com/i.png)\n",
		"Price: 5 * 3 & more_stuff\n\n\\# not a heading\n\n\\- not a list\n",
		"line one  \nline two\n",
	}

	for _, in := range inputs {
		first, err := FromMarkdown([]byte(in))
		if err != nil {
			t.Fatal(err)
		}
		md2 := ToMarkdown(first)

		second, err := FromMarkdown(md2)
		if err != nil {
			t.Fatal(err)
		}
		md3 := ToMarkdown(second)

		if string(md2) != string(md3) {
			t.Errorf("round trip not stable for %q:\nfirst:  %q\nsecond: %q", in, md2, md3)
		}
		if len(first) != len(second) {
			t.Errorf("block count changed for %q: %d -> %d", in, len(first), len(second))
			continue
		}
		for i := range first {
			if first[i].Type != second[i].Type || PlainText(first[i].Content) != PlainText(second[i].Content) {
				t.Errorf("block %d changed for %q: %s %q -> %s %q", i, in,
					first[i].Type, PlainText(first[i].Content), second[i].Type, PlainText(second[i].Content))
			}
		}
	}
}

func TestToMarkdown_Escaping(t *testing.T) {
	t.Parallel()

	bs := []Block{
		Paragraph(Text("# literal *stars* and [brackets]")),
		Paragraph(Text("1. not a list")),
	}
	got := string(ToMarkdown(bs))
	want := "\\# literal \\*stars\\* and \\[brackets\\]\n\n1\\. not a list\n"
	if got != want {
		t.Errorf("ToMarkdown() = %q, want %q", got, want)
	}
}

func TestToMarkdown_Lists(t *testing.T) {
	t.Parallel()

	item := New(TypeBulletListItem)
	item.Content = []InlineContent{Text("parent")}
	child := New(TypeNumberedListItem)
	child.Content = []InlineContent{Text("child")}
	item.Children = []Block{child}

	check := New(TypeCheckListItem)
	check.Props["checked"] = true
	check.Content = []InlineContent{Text("done")}

	got := string(ToMarkdown([]Block{item, check}))
	want := "- parent\n  1. child\n- [x] done\n"
	if got != want {
		t.Errorf("ToMarkdown() = %q, want %q", got, want)
	}
}
