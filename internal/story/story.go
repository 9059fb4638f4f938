// Package story loads bedtime stories from files or stdin.
package story

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrEmpty is returned for a story without any narratable text.
var ErrEmpty = errors.New("story is empty")

var markdownExtensions = []string{".md", ".mdown", ".mkdn", ".mkd", ".markdown"}

// Story is narratable text and where it came from.
type Story struct {
	Title  string
	Text   string
	Source string
}

// Load reads a story from path, or from stdin when path is "-". Markdown
// files are reduced to plain paragraphs.
func Load(path string, stdin io.Reader) (*Story, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read stdin: %w", err)
		}
		return Parse(data, "stdin", false)
	}

	path, err = homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("unable to expand path: %w", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read story: %w", err)
	}
	return Parse(data, path, IsMarkdown(path))
}

// Parse builds a Story from raw bytes.
func Parse(data []byte, source string, markdown bool) (*Story, error) {
	s := &Story{Source: source}
	if markdown {
		s.Title, s.Text = Plain(data)
	} else {
		s.Text = strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	}
	if s.Text == "" {
		return nil, ErrEmpty
	}
	return s, nil
}

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range markdownExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Plain renders markdown as plain paragraphs separated by blank lines. The
// first level one heading becomes the title. Code and HTML are dropped.
func Plain(source []byte) (title, body string) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []string
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch b := c.(type) {
			case *ast.Heading:
				t := inline(b, source)
				if b.Level == 1 && title == "" {
					title = t
					continue
				}
				blocks = append(blocks, t)
			case *ast.Paragraph, *ast.TextBlock:
				blocks = append(blocks, inline(b, source))
			case *ast.List, *ast.ListItem, *ast.Blockquote:
				walk(b)
			}
		}
	}
	walk(doc)

	out := blocks[:0]
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return title, strings.Join(out, "\n\n")
}

func inline(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(t.Value)
			case *ast.AutoLink:
				buf.Write(t.Label(source))
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
