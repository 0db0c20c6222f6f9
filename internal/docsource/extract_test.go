package docsource

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# Heading\nSome text."), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile() returned an unexpected error: %v", err)
	}
	if text != "# Heading\nSome text." {
		t.Errorf("Expected passthrough text, got %q", text)
	}

	if _, err := ExtractFile(filepath.Join(dir, "image.png")); err == nil {
		t.Error("Expected an error for an unsupported file type")
	}
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveUpload(dir, "lecture.txt", strings.NewReader("document body"))
	if err != nil {
		t.Fatalf("SaveUpload() returned an unexpected error: %v", err)
	}

	if filepath.Ext(path) != ".txt" {
		t.Errorf("Expected original extension to be kept, got %q", path)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("Expected upload to land in %q, got %q", dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "document body" {
		t.Errorf("Expected stored body to match upload, got %q", string(data))
	}

	// Two uploads with the same name must not collide.
	other, err := SaveUpload(dir, "lecture.txt", strings.NewReader("second"))
	if err != nil {
		t.Fatal(err)
	}
	if other == path {
		t.Error("Expected distinct paths for repeated uploads of the same filename")
	}
}

func TestCollectDocuments(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"a.md":          "doc",
		"sub/b.txt":     "doc",
		"sub/c.go":      "not a doc",
		".git/config":   "not a doc",
		"sub/deep/d.MD": "doc",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := CollectDocuments(dir)
	if err != nil {
		t.Fatalf("CollectDocuments() returned an unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Expected 3 documents, got %d: %v", len(docs), docs)
	}
	for _, doc := range docs {
		if strings.Contains(doc, ".git") || strings.HasSuffix(doc, ".go") {
			t.Errorf("Unexpected document %q", doc)
		}
	}
}

func TestRepoLocalPath(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{
			name:     "https URL",
			url:      "https://github.com/user/notes.git",
			expected: filepath.Join("repos", "github.com", "user", "notes"),
		},
		{
			name:     "scp style",
			url:      "git@github.com:user/notes.git",
			expected: filepath.Join("repos", "github.com", "user", "notes"),
		},
		{
			name:    "garbage",
			url:     "not a url at all",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RepoLocalPath("repos", tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("RepoLocalPath() returned an unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %q, but got %q", tc.expected, got)
			}
		})
	}
}
