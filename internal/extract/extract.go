// Package extract turns uploaded contract files into cleaned, sectioned text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for anything other than PDF or DOCX.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument is returned when the parser cannot open the bytes.
	ErrCorruptDocument = errors.New("corrupt document")
)

// Kind is a supported document format.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
)

// KindFromFilename maps a file extension to a Kind.
func KindFromFilename(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Section is one header and the text under it. Header is empty for text that
// precedes the first detected header, or when no headers were detected.
type Section struct {
	Header string `json:"header"`
	Body   string `json:"body"`
}

// Document is the cleaned text of an uploaded file in reading order.
type Document struct {
	Sections []Section `json:"sections"`
}

// Text flattens the document for prompting.
func (d *Document) Text() string {
	var parts []string
	for _, s := range d.Sections {
		switch {
		case s.Header != "" && s.Body != "":
			parts = append(parts, s.Header+"\n"+s.Body)
		case s.Header != "":
			parts = append(parts, s.Header)
		case s.Body != "":
			parts = append(parts, s.Body)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Empty reports whether the document holds no text at all.
func (d *Document) Empty() bool {
	return strings.TrimSpace(d.Text()) == ""
}

// Extractor reads one document format.
type Extractor interface {
	Extract(data []byte) (*Document, error)
}

// ForKind picks the extractor for kind.
func ForKind(kind Kind) (Extractor, error) {
	switch kind {
	case KindPDF:
		return pdfExtractor{}, nil
	case KindDOCX:
		return docxExtractor{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(kind))
}

// Extract reads data as kind. Empty input yields an empty Document.
func Extract(data []byte, kind Kind) (*Document, error) {
	ex, err := ForKind(kind)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Document{}, nil
	}
	return ex.Extract(data)
}
