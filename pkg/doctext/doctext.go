// Package doctext turns uploaded laboratory reports into normalised text lines. PDFs are read
// from their text layer in memory; plain-text reports pass through. Scanned PDFs without a text
// layer yield no lines and fail later as an unrecognised structure.
package doctext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnsupportedType is returned for file extensions other than .pdf and .txt.
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrUnreadable is returned when a document cannot be decoded.
	ErrUnreadable = errors.New("document could not be read")
)

const (
	rowTolerance       = 2.0
	wordGapFactor      = 0.2
	defaultFontSize    = 10.0
	pageSeparatorLines = 1
)

// Source implements domain.DocumentTextSource.
type Source struct{}

// NewSource creates a document-text source
func NewSource() *Source {
	return &Source{}
}

// Text returns the normalised text of a document, choosing the decoder by file extension.
func (s *Source) Text(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		text, err := ExtractPDF(data)
		if err != nil {
			return "", err
		}
		return Normalize(text), nil
	case ".txt":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text file is not valid UTF-8", ErrUnreadable)
		}
		return Normalize(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
}

// Supported reports whether a filename has an accepted extension.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

// Normalize applies NFKC (folding full-width digits, ligatures and no-break spaces) and unifies
// line endings to \n.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return norm.NFKC.String(text)
}

// IsPDF checks the %PDF- magic bytes.
func IsPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// ExtractPDF reads the text layer of every page, one output line per visual row.
func ExtractPDF(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", fmt.Errorf("%w: missing PDF header", ErrUnreadable)
	}

	// The pdf package panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines := assembleLines(page.Content().Text)
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(strings.Repeat("\n", pageSeparatorLines))
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// assembleLines groups positioned glyph runs into rows (top to bottom) and joins each row left
// to right, inserting a space where the horizontal gap exceeds a fraction of the font size.
func assembleLines(texts []pdf.Text) []string {
	type row struct {
		yMin, yMax float64
		texts      []pdf.Text
	}

	var rows []*row
	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" && t.S != " " {
			continue
		}
		var target *row
		for _, r := range rows {
			if t.Y >= r.yMin-rowTolerance && t.Y <= r.yMax+rowTolerance {
				target = r
				break
			}
		}
		if target == nil {
			target = &row{yMin: t.Y, yMax: t.Y}
			rows = append(rows, target)
		}
		target.texts = append(target.texts, t)
		if t.Y < target.yMin {
			target.yMin = t.Y
		}
		if t.Y > target.yMax {
			target.yMax = t.Y
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].yMax > rows[j].yMax
	})

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		sort.SliceStable(r.texts, func(i, j int) bool {
			return r.texts[i].X < r.texts[j].X
		})

		var b strings.Builder
		for i, t := range r.texts {
			if i > 0 {
				prev := r.texts[i-1]
				size := prev.FontSize
				if size == 0 {
					size = defaultFontSize
				}
				if t.X-(prev.X+prev.W) > wordGapFactor*size && !strings.HasSuffix(b.String(), " ") && t.S != " " {
					b.WriteString(" ")
				}
			}
			b.WriteString(t.S)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
