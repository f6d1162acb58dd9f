package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML in summaries is dropped by goldmark's default renderer.
var summaryMarkdown = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))

// RenderSummary converts an edit summary written in markdown to HTML.
func RenderSummary(summary string) (template.HTML, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := summaryMarkdown.Convert([]byte(summary), &buf); err != nil {
		return "", fmt.Errorf("render summary markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
