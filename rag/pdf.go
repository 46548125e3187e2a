package rag

import (
	"bytes"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	blankRuns = regexp.MustCompile(`\n\s*\n\s*\n+`)
	spaceRuns = regexp.MustCompile(` +`)
)

// ExtractText reads the plain text of every page of a PDF, one page per line
// group, and cleans it up. Image-only pages contribute nothing, so a scanned
// PDF comes back as "".
func ExtractText(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", nil
	}
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}

	var pages []string
	for i := 1; i <= rdr.NumPage(); i++ {
		p := rdr.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %w", ErrInvalidPDF, i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, pageText)
		}
	}
	return CleanText(strings.Join(pages, "\n")), nil
}

// CleanText squeezes blank lines and repeated spaces and trims every line.
func CleanText(text string) string {
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Ingestor turns PDF bytes into chunks.
type Ingestor struct {
	Chunker Chunker
}

func NewIngestor(c Chunker) *Ingestor {
	return &Ingestor{Chunker: c}
}

// Extract returns the cleaned text of a PDF, which may be empty.
func (in *Ingestor) Extract(data []byte) (string, error) {
	return ExtractText(data)
}

// Chunk splits extracted text into a lazy sequence of chunks.
func (in *Ingestor) Chunk(text, source string) iter.Seq[Chunk] {
	if text == "" {
		return noChunks
	}
	return in.Chunker.Chunks(text, source)
}

// ExtractAndChunk extracts the text of a PDF and returns its chunks as a lazy
// sequence. A PDF without text gives an empty sequence and no error; callers
// decide whether that is a failure.
func (in *Ingestor) ExtractAndChunk(data []byte, source string) (iter.Seq[Chunk], error) {
	text, err := in.Extract(data)
	if err != nil {
		return nil, err
	}
	return in.Chunk(text, source), nil
}

func noChunks(func(Chunk) bool) {}
