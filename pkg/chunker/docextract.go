package chunker

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText renders the text of every page of a PDF, in page order
// (spec §4.2's "PDF: page-wise"). No PDF parsing library appears anywhere
// in the retrieval pack, so this is an out-of-pack ecosystem dependency
// named in the design ledger rather than grounded on example code.
func ExtractPDFText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ExtractDOCXText unzips the OOXML container, reads word/document.xml, and
// joins paragraph text followed by table cell text (spec §4.2: "DOCX:
// paragraphs then table cells joined by ' | '"). Implemented directly over
// archive/zip and encoding/xml rather than a higher-level docx library,
// since the handful of full-featured ones in the ecosystem pull in far more
// (styling, images, write support) than extraction needs.
func ExtractDOCXText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening docx container: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("opening word/document.xml: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("reading word/document.xml: %w", err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("word/document.xml not found in docx container")
	}

	paragraphs, tableRows := parseDocumentXML(docXML)
	return JoinDocxParagraphsAndTables(paragraphs, tableRows), nil
}

// parseDocumentXML walks document.xml's token stream, accumulating run
// text (<w:t>) within each paragraph (<w:p>) and table row (<w:tr>)
// separately, since a table row's cells need to stay grouped for the
// " | "-joined output.
func parseDocumentXML(docXML []byte) (paragraphs []string, tableRows [][]string) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var inTable bool
	var curParagraph strings.Builder
	var curRow []string
	var curCell strings.Builder
	var inCell bool

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "tbl":
				inTable = true
			case "tr":
				curRow = nil
			case "tc":
				inCell = true
				curCell.Reset()
			case "p":
				if !inTable {
					curParagraph.Reset()
				}
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &el); err == nil {
					if inCell {
						curCell.WriteString(text)
					} else {
						curParagraph.WriteString(text)
					}
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "tbl":
				inTable = false
			case "tr":
				if len(curRow) > 0 {
					tableRows = append(tableRows, curRow)
				}
			case "tc":
				curRow = append(curRow, strings.TrimSpace(curCell.String()))
				inCell = false
			case "p":
				if !inTable {
					if text := strings.TrimSpace(curParagraph.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
				}
			}
		}
	}
	return paragraphs, tableRows
}
