package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

type docxExtractor struct{}

// Extract reads the paragraphs of the main document part in order.
// Paragraphs styled as headings or as the title become section headers.
func (docxExtractor) Extract(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	f, err := zr.Open(docxBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, docxBody, err)
	}
	defer f.Close()

	blocks, err := readParagraphs(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return buildDocument(blocks), nil
}

func readParagraphs(r io.Reader) ([]block, error) {
	dec := xml.NewDecoder(r)
	var (
		blocks []block
		text   strings.Builder
		style  string
		inPara bool
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				text.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab":
				if inPara {
					text.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					text.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inPara {
					blocks = append(blocks, block{text: text.String(), heading: isHeadingStyle(style)})
				}
				inPara = false
			}
		case xml.CharData:
			if inPara && inText {
				text.Write(t)
			}
		}
	}
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func isHeadingStyle(style string) bool {
	s := strings.ToLower(style)
	return strings.HasPrefix(s, "heading") || s == "title"
}
