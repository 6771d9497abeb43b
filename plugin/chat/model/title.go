package model

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

const (
	// DefaultTitle is shown for a session with no usable first message.
	DefaultTitle = "New Chat"

	maxTitleLength   = 50
	maxSnippetLength = 120
)

// Title derives a short display title from the first request's text.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.requests) == 0 {
		return DefaultTitle
	}
	title := truncate(plainText(s.requests[0].message.Text), maxTitleLength)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// Snippet derives a short preview from the latest completed response.
func (s *Session) Snippet() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.requests) - 1; i >= 0; i-- {
		r := s.requests[i]
		r.mu.Lock()
		var markdown string
		if r.response != nil && r.response.complete {
			markdown = joinMarkdown(r.response.parts)
		}
		r.mu.Unlock()

		if snippet := truncate(plainText(markdown), maxSnippetLength); snippet != "" {
			return snippet
		}
	}
	return ""
}

// plainText renders markdown down to its text content, with block and
// line boundaries collapsed to single spaces.
func plainText(source string) string {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != ' ' {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(buf.String()), " ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
