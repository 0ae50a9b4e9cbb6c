// Package ingestion turns files on disk into plain text and splits that text into
// overlapping chunks for embedding.
package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fabfab/stakeholder-rag/errs"
)

// Kind enumerates supported document payload formats.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindCSV      Kind = "csv"
	KindJSON     Kind = "json"
	KindText     Kind = "txt"
	KindMarkdown Kind = "md"
)

// DetectKind infers a document kind from the path's extension.
func DetectKind(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF, nil
	case ".csv":
		return KindCSV, nil
	case ".json":
		return KindJSON, nil
	case ".txt", ".log":
		return KindText, nil
	case ".md", ".markdown":
		return KindMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %s", errs.ErrUnsupportedInput, filepath.Base(path))
	}
}

// Supported reports whether DetectKind accepts path.
func Supported(path string) bool {
	_, err := DetectKind(path)
	return err == nil
}
