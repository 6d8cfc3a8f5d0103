// Package markdown extracts plain text from markdown syllabi by walking the
// goldmark AST, so formatting noise never reaches the embedding model.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/key-r-code/drexel-sentinel/ingest"
)

// Extractor implements ingest.Extractor for markdown documents.
type Extractor struct{}

var _ ingest.Extractor = (*Extractor)(nil)

// New creates a markdown extractor.
func New() *Extractor { return &Extractor{} }

// Extract parses the markdown and returns its plain text. Block elements
// become paragraphs separated by blank lines; inline formatting is dropped.
func (e *Extractor) Extract(content []byte) (string, error) {
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(content))

	var out strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			writeInlineText(&out, n, content)
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			writeLines(&out, node.BaseBlock, content)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			writeLines(&out, node.BaseBlock, content)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}

// writeInlineText appends the text content of all inline children.
func writeInlineText(out *strings.Builder, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			out.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				out.WriteByte('\n')
			}
		case *ast.String:
			out.Write(node.Value)
		default:
			writeInlineText(out, c, source)
		}
	}
}

// writeLines appends the raw source lines of a block node.
func writeLines(out *strings.Builder, block ast.BaseBlock, source []byte) {
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out.Write(seg.Value(source))
	}
}
