package parser

import (
	"errors"
	"strings"
	"testing"
)

const catalogue = `<html><body>
<div class="item" data-sku="a1">
  <h2 class="title">  Blue
     Mug </h2>
  <span class="price">£ 12.50</span>
  <img src="/img/blue.jpg">
</div>
<div class="item" data-sku="b2">
  <h2 class="title">Red Mug</h2>
</div>
<a class="next" href="/page2">next</a>
</body></html>`

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "only whitespace", input: " \t\n  ", expected: ""},
		{name: "collapses runs", input: "  Blue \n\t Mug  ", expected: "Blue Mug"},
		{name: "drops non ascii", input: "£51.77", expected: "51.77"},
		{name: "no double space after drop", input: "a é b", expected: "a b"},
		{name: "drops control characters", input: "a\x00b\x7fc", expected: "abc"},
		{name: "non breaking space", input: "one\u00a0two", expected: "one two"},
		{name: "plain", input: "Five", expected: "Five"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.input); got != tt.expected {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCleanTextOutputIsPrintableASCII(t *testing.T) {
	inputs := []string{
		"Ünïcödé  name with\tmixed   spacing",
		"\n\n  Price: € 10 ",
		"tab\tseparated\tvalues",
		"   ",
		"日本語 text 123",
	}
	for _, input := range inputs {
		got := CleanText(input)
		if strings.Contains(got, "  ") {
			t.Fatalf("CleanText(%q) = %q contains a double space", input, got)
		}
		if got != strings.TrimSpace(got) {
			t.Fatalf("CleanText(%q) = %q is not trimmed", input, got)
		}
		for _, r := range got {
			if r < 0x20 || r > 0x7e {
				t.Fatalf("CleanText(%q) = %q contains %U", input, got, r)
			}
		}
		if strings.TrimSpace(input) == "" && got != "" {
			t.Fatalf("CleanText(%q) = %q, want empty", input, got)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Blue Mug", expected: "Blue Mug.jpg"},
		{input: "A/B: c*d?", expected: "AB cd.jpg"},
		{input: "under_score-dash", expected: "under_score-dash.jpg"},
		{input: "N/A", expected: "NA.jpg"},
		{input: "../../etc/passwd", expected: "etcpasswd.jpg"},
		{input: "???", expected: "image.jpg"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDocumentSelectRelativeToContainer(t *testing.T) {
	doc, err := Parse(catalogue)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	items, err := doc.SelectAll(".item")
	if err != nil {
		t.Fatalf("select items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	title, err := items[0].SelectOne(".title")
	if err != nil || title == nil {
		t.Fatalf("select title: %v (node %v)", err, title)
	}
	if got := CleanText(title.Text()); got != "Blue Mug" {
		t.Fatalf("title = %q, want %q", got, "Blue Mug")
	}

	img, err := items[0].SelectOne("img")
	if err != nil || img == nil {
		t.Fatalf("select img: %v", err)
	}
	if src, ok := img.Attr("src"); !ok || src != "/img/blue.jpg" {
		t.Fatalf("src = %q (%v), want /img/blue.jpg", src, ok)
	}
	if _, ok := img.Attr("alt"); ok {
		t.Fatalf("alt attribute should be absent")
	}

	price, err := items[1].SelectOne(".price")
	if err != nil {
		t.Fatalf("select price: %v", err)
	}
	if price != nil {
		t.Fatalf("second item has no price, got %q", price.Text())
	}
}

func TestDocumentSelectNoMatch(t *testing.T) {
	doc, err := Parse(catalogue)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	nodes, err := doc.SelectAll(".missing")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("nodes = %d, want 0", len(nodes))
	}
	node, err := doc.SelectOne(".missing")
	if err != nil || node != nil {
		t.Fatalf("SelectOne = %v, %v; want nil, nil", node, err)
	}
}

func TestDocumentMalformedSelector(t *testing.T) {
	doc, err := Parse(catalogue)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, sel := range []string{"div[", "", "//div[@class="} {
		_, err := doc.SelectAll(sel)
		var selErr *SelectorError
		if !errors.As(err, &selErr) {
			t.Fatalf("SelectAll(%q) error = %v, want *SelectorError", sel, err)
		}
		if CompileSelector(sel) == nil {
			t.Fatalf("CompileSelector(%q) should fail", sel)
		}
	}
}

func TestDocumentSelectByAttr(t *testing.T) {
	doc, err := Parse(catalogue)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	nodes, err := doc.SelectByAttr("data-sku", "b2")
	if err != nil {
		t.Fatalf("select by attr: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(nodes))
	}
	title, _ := nodes[0].SelectOne(".title")
	if title == nil || CleanText(title.Text()) != "Red Mug" {
		t.Fatalf("unexpected match for data-sku=b2")
	}
}

func TestDocumentXPath(t *testing.T) {
	doc, err := Parse(catalogue)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	items, err := doc.SelectXPath(`//div[@class="item"]`)
	if err != nil {
		t.Fatalf("xpath: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	title, err := items[1].SelectOne(`.//h2`)
	if err != nil || title == nil {
		t.Fatalf("relative xpath: %v", err)
	}
	if got := title.Text(); got != "Red Mug" {
		t.Fatalf("title = %q, want Red Mug", got)
	}

	// From an element, absolute paths stay inside its subtree.
	scoped, err := items[0].SelectAll(`//h2`)
	if err != nil {
		t.Fatalf("scoped xpath: %v", err)
	}
	if len(scoped) != 1 || CleanText(scoped[0].Text()) != "Blue Mug" {
		t.Fatalf("scoped //h2 matched %d nodes, want only Blue Mug", len(scoped))
	}
	all, err := doc.SelectXPath(`//h2`)
	if err != nil {
		t.Fatalf("document xpath: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("document //h2 matched %d nodes, want 2", len(all))
	}

	// CSS still works on nodes found through XPath.
	img, err := items[0].SelectOne("img")
	if err != nil || img == nil {
		t.Fatalf("css on xpath node: %v", err)
	}
}
