package docsource

import (
	"fmt"
	"io"
	"os"
	"strings"

	"rsc.io/pdf"
)

func extractPDFFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return extractPDF(f, info.Size())
}

// extractPDF pulls the text runs out of every page. The pdf package panics
// on malformed input, so the recover turns that into an error.
func extractPDF(r io.ReaderAt, size int64) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		var lastY float64
		for _, t := range page.Content().Text {
			if lastY != 0 && t.Y != lastY {
				sb.WriteString("\n")
			}
			sb.WriteString(t.S)
			lastY = t.Y
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
