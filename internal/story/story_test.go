package story

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/lullaby/internal/segment"
)

const markdownStory = "# Mia and the Moon\n\n" +
	"[SECTION 1: THE BEGINNING]\nMia lived in a *small* house.\n\n" +
	"[SECTION 2: THE FRIEND]\nA fox said **hello**.\n\n" +
	"```\nnot narrated\n```\n\n" +
	"[SECTION 3: THE WONDER]\n- Stars\n- Fireflies\n\n" +
	"## [SECTION 4: THE COZY MOMENT]\n\n> Warm cocoa.\n\n" +
	"[SECTION 5: SLEEP TIME]\nGoodnight, Mia.\n"

func TestPlain(t *testing.T) {
	title, body := Plain([]byte(markdownStory))
	if title != "Mia and the Moon" {
		t.Errorf("title = %q", title)
	}
	if strings.Contains(body, "not narrated") {
		t.Error("code block should be dropped")
	}
	if strings.Contains(body, "*") || strings.Contains(body, "#") {
		t.Errorf("markdown syntax left in body: %q", body)
	}

	sections := segment.Split(body)
	want := []string{
		"Mia lived in a small house.",
		"A fox said hello.",
		"Stars\n\nFireflies",
		"Warm cocoa.",
		"Goodnight, Mia.",
	}
	for i := range want {
		if sections[i] != want[i] {
			t.Errorf("section %d = %q, want %q", i, sections[i], want[i])
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		markdown bool
		want     string
		wantErr  error
	}{
		{name: "plain text kept", data: "Once *upon* a time.\r\n\r\nThe end.", want: "Once *upon* a time.\n\nThe end."},
		{name: "markdown", data: "Once *upon* a time.", markdown: true, want: "Once upon a time."},
		{name: "empty", data: "  \n", wantErr: ErrEmpty},
		{name: "markdown without prose", data: "```\ncode\n```", markdown: true, wantErr: ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.data), "test", tt.markdown)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if s.Text != tt.want {
				t.Errorf("Text = %q, want %q", s.Text, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mia.md")
	if err := os.WriteFile(path, []byte(markdownStory), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Title != "Mia and the Moon" || s.Source != path {
		t.Errorf("story = %+v", s)
	}

	s, err = Load("-", strings.NewReader("Sleep tight."))
	if err != nil {
		t.Fatal(err)
	}
	if s.Text != "Sleep tight." || s.Source != "stdin" {
		t.Errorf("story = %+v", s)
	}

	if _, err := Load(filepath.Join(dir, "missing.txt"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIsMarkdown(t *testing.T) {
	for path, want := range map[string]bool{
		"story.md":       true,
		"STORY.MARKDOWN": true,
		"story.txt":      false,
		"story":          false,
	} {
		if got := IsMarkdown(path); got != want {
			t.Errorf("IsMarkdown(%q) = %v, want %v", path, got, want)
		}
	}
}
