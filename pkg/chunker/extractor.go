// Package chunker implements file extraction and token-bounded chunking
// (C2): file → normalized text → overlapping chunks.
package chunker

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/models"
)

// sniffType inspects the first 8 KiB of content and reports whether it
// matches declared, per spec §4.2's magic-byte sniff.
func sniffType(declared models.FileType, content []byte) error {
	head := content
	if len(head) > 8192 {
		head = head[:8192]
	}

	switch declared {
	case models.FileTypePDF:
		if !bytes.HasPrefix(head, []byte("%PDF-")) {
			return apperr.ValidationField("file", "File content does not match extension")
		}
	case models.FileTypeDOCX:
		// DOCX is a ZIP/OOXML container; ZIP files begin with "PK\x03\x04".
		if !bytes.HasPrefix(head, []byte{0x50, 0x4B, 0x03, 0x04}) {
			return apperr.ValidationField("file", "File content does not match extension")
		}
	case models.FileTypeTXT, models.FileTypeMD:
		if !isLikelyText(head) {
			return apperr.ValidationField("file", "File content does not match extension")
		}
	default:
		return apperr.ValidationField("file_type", fmt.Sprintf("unsupported file type %q", declared))
	}
	return nil
}

// isLikelyText rejects content containing a NUL byte, or non-empty content
// with no valid UTF-8 in it at all (content mixing valid and invalid UTF-8
// passes), a cheap substitute for a MIME sniff library (none of which appear
// in the retrieval pack) that still satisfies the "text/plain or
// text/markdown" acceptance rule.
func isLikelyText(head []byte) bool {
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	return len(head) == 0 || len(strings.ToValidUTF8(string(head), "")) > 0
}

// Extract validates the declared type against content and returns
// normalized text. PDF/DOCX extraction delegates to the parsers passed in by
// the caller (pkg/pipeline passes ExtractPDFText and ExtractDOCXText from
// docextract.go); plaintext/markdown extraction needs none.
func Extract(filename string, fileType models.FileType, content []byte, pdfExtract func([]byte) (string, error), docxExtract func([]byte) (string, error)) (string, error) {
	if len(content) == 0 {
		return "", apperr.ValidationField("file", "zero length file")
	}
	if err := sniffType(fileType, content); err != nil {
		return "", err
	}

	switch fileType {
	case models.FileTypePDF:
		if pdfExtract == nil {
			return "", apperr.FileProcessing("no PDF extractor configured")
		}
		text, err := pdfExtract(content)
		if err != nil {
			return "", apperr.FileProcessing(fmt.Sprintf("extracting PDF text: %v", err))
		}
		return normalize(text), nil
	case models.FileTypeDOCX:
		if docxExtract == nil {
			return "", apperr.FileProcessing("no DOCX extractor configured")
		}
		text, err := docxExtract(content)
		if err != nil {
			return "", apperr.FileProcessing(fmt.Sprintf("extracting DOCX text: %v", err))
		}
		return normalize(text), nil
	case models.FileTypeTXT, models.FileTypeMD:
		return normalize(string(content)), nil
	default:
		return "", apperr.ValidationField("file_type", fmt.Sprintf("unsupported file type %q", fileType))
	}
}

func normalize(text string) string {
	return strings.TrimSpace(text)
}

// JoinDocxParagraphsAndTables joins extracted DOCX paragraph text and table
// cell text, following the spec's "paragraphs then table cells joined by
// ' | '" rule.
func JoinDocxParagraphsAndTables(paragraphs []string, tableRows [][]string) string {
	var b strings.Builder
	for _, p := range paragraphs {
		b.WriteString(p)
		b.WriteString("\n")
	}
	for _, row := range tableRows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	return b.String()
}
