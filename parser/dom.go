// Package parser wraps the HTML document model used by the scraper. It exposes
// a small query capability over goquery so that no other package depends on
// the concrete HTML library.
package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Node is a queryable element of a parsed page.
type Node interface {
	// SelectAll returns every descendant matching selector, in document order.
	SelectAll(selector string) ([]Node, error)
	// SelectOne returns the first match, or nil when nothing matches.
	SelectOne(selector string) (Node, error)
	Attr(name string) (string, bool)
	// Text returns the concatenated text of all descendants.
	Text() string
}

// SelectorError reports a selector that could not be compiled.
type SelectorError struct {
	Selector string
	Err      error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("invalid selector %q: %v", e.Selector, e.Err)
}

func (e *SelectorError) Unwrap() error {
	return e.Err
}

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(content string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Root returns the document node.
func (d *Document) Root() Node {
	return &element{sel: d.doc.Selection}
}

// SelectAll evaluates selector against the whole document.
func (d *Document) SelectAll(selector string) ([]Node, error) {
	return d.Root().SelectAll(selector)
}

// SelectOne evaluates selector against the whole document.
func (d *Document) SelectOne(selector string) (Node, error) {
	return d.Root().SelectOne(selector)
}

// SelectByAttr returns elements whose attribute name equals value.
func (d *Document) SelectByAttr(name, value string) ([]Node, error) {
	return d.SelectAll(fmt.Sprintf("[%s=%q]", name, value))
}

// SelectXPath evaluates a real XPath expression against the document.
// Evaluation is rooted at the node it runs from: on a Document "//div"
// searches the whole page, while from an element (Node.SelectAll) the same
// expression only searches that element's subtree.
func (d *Document) SelectXPath(expr string) ([]Node, error) {
	return (&element{sel: d.doc.Selection}).selectXPath(expr)
}

// CompileSelector reports whether selector is usable, without a document.
func CompileSelector(selector string) error {
	if isXPath(selector) {
		_, err := compileXPath(selector)
		return err
	}
	_, err := compileCSS(selector)
	return err
}

type element struct {
	sel *goquery.Selection
}

func (e *element) SelectAll(selector string) ([]Node, error) {
	if isXPath(selector) {
		return e.selectXPath(selector)
	}
	matcher, err := compileCSS(selector)
	if err != nil {
		return nil, err
	}
	return wrap(e.sel.FindMatcher(matcher)), nil
}

func (e *element) SelectOne(selector string) (Node, error) {
	nodes, err := e.SelectAll(selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

func (e *element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *element) Text() string {
	return e.sel.Text()
}

func (e *element) selectXPath(expr string) ([]Node, error) {
	compiled, err := compileXPath(expr)
	if err != nil {
		return nil, err
	}
	var matches []*html.Node
	for _, top := range e.sel.Nodes {
		matches = append(matches, htmlquery.QuerySelectorAll(top, compiled)...)
	}
	out := make([]Node, 0, len(matches))
	for _, n := range matches {
		out = append(out, &element{sel: goquery.NewDocumentFromNode(n).Selection})
	}
	return out, nil
}

func wrap(sel *goquery.Selection) []Node {
	out := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{sel: s})
	})
	return out
}

func compileCSS(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, &SelectorError{Selector: selector, Err: fmt.Errorf("empty selector")}
	}
	compiled, err := cascadia.Compile(selector)
	if err != nil {
		return nil, &SelectorError{Selector: selector, Err: err}
	}
	return compiled, nil
}

func compileXPath(expr string) (*xpath.Expr, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, &SelectorError{Selector: expr, Err: err}
	}
	return compiled, nil
}

// Expressions that start like a location path or a grouped expression are
// XPath; everything else is CSS.
func isXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "(")
}
