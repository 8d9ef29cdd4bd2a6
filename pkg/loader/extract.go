package loader

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// extractText pulls plain text out of a supported file.
func extractText(path, ext string) (string, error) {
	switch ext {
	case ".txt", ".md":
		return extractPlainText(path)
	case ".pdf":
		return extractPDF(path)
	case ".html", ".htm":
		return extractHTML(path)
	default:
		return "", &UnsupportedFileTypeError{Path: path, Extension: ext}
	}
}

func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &FileAccessError{Path: path, Op: "read", Err: err}
	}
	return sanitizeUTF8(string(data)), nil
}

func extractPDF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &FileAccessError{Path: path, Op: "read", Err: err}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Path: path, Err: fmt.Errorf("failed to create PDF reader: %w", err)}
	}

	var b strings.Builder
	pages := reader.NumPage()
	extracted := 0

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		extracted++
	}

	if pages > 0 && extracted == 0 {
		return "", &ExtractionError{Path: path, Err: fmt.Errorf("no extractable text in %d pages", pages)}
	}

	return sanitizeUTF8(b.String()), nil
}

func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &FileAccessError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}

	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
	})
	if b.Len() == 0 {
		b.WriteString(doc.Text())
	}

	// Collapse the whitespace soup HTML rendering leaves behind.
	lines := strings.Split(b.String(), "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return sanitizeUTF8(strings.Join(cleaned, "\n")), nil
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
