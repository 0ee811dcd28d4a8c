package loader

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/lectern/core"
)

// documentXML mirrors the paragraph structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

// loadDocx extracts paragraph text from a DOCX container. The format
// is a zip holding word/document.xml with text split across runs.
func (l *Loader) loadDocx(path string, meta core.ChunkMetadata) ([]core.Chunk, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}
	defer reader.Close()

	text, err := docxDocumentText(&reader.Reader)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}
	if text == "" {
		return nil, &core.LoaderError{Path: path, Err: fmt.Errorf("document contains no text")}
	}
	return []core.Chunk{{Text: text, Metadata: meta}}, nil
}

// docxDocumentText reads and flattens word/document.xml.
func docxDocumentText(reader *zip.Reader) (string, error) {
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("opening document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("reading document.xml: %w", err)
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("parsing document.xml: %w", err)
		}

		var b strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				b.WriteString("\n")
			}
			for _, run := range para.Runs {
				for _, t := range run.Text {
					b.WriteString(t.Content)
				}
			}
		}
		return strings.TrimSpace(b.String()), nil
	}
	return "", fmt.Errorf("no word/document.xml entry")
}
