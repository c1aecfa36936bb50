// Package xmlutil provides XML escaping utilities for prompt injection prevention.
package xmlutil

import (
	"encoding/xml"
	"strings"
)

// Escape replaces characters with special meaning in XML to prevent
// prompt injection when embedding user content in XML-delimited templates.
func Escape(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		// EscapeText only fails on invalid UTF-8; return original on error.
		return s
	}
	return buf.String()
}

// Tag wraps the escaped content in <name>...</name>. The tag name itself is
// trusted and written verbatim.
func Tag(name, content string) string {
	var b strings.Builder
	b.Grow(len(name)*2 + len(content) + 5)
	b.WriteString("<")
	b.WriteString(name)
	b.WriteString(">")
	b.WriteString(Escape(content))
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">")
	return b.String()
}

// TagLines wraps each item in its own <name> element, one per line.
func TagLines(name string, items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Tag(name, item))
	}
	return b.String()
}
