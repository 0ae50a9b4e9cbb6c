package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/stakeholder-rag/errs"
)

func TestDetectKind(t *testing.T) {
	cases := map[string]Kind{
		"report.PDF":     KindPDF,
		"txns.csv":       KindCSV,
		"callbacks.json": KindJSON,
		"notes.txt":      KindText,
		"runbook.md":     KindMarkdown,
		"a/b/c.markdown": KindMarkdown,
		"gateway.log":    KindText,
	}
	for path, want := range cases {
		got, err := DetectKind(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := DetectKind("slides.pptx")
	assert.ErrorIs(t, err, errs.ErrUnsupportedInput)
	assert.False(t, Supported("archive.zip"))
}

func TestExtractTextFromFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}
	e := NewExtractor()
	ctx := context.Background()

	txt, err := e.ExtractText(ctx, write("notes.txt", "  SLA met  \r\nuptime 99.9%\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "SLA met\nuptime 99.9%", txt)

	_, err = e.ExtractText(ctx, write("deck.pptx", "x"))
	assert.ErrorIs(t, err, errs.ErrUnsupportedInput)

	_, err = e.ExtractText(ctx, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestExtractTextEnforcesSizeLimit(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("a", 64)), 0o600))

	e := &Extractor{MaxFileSize: 32}
	_, err := e.ExtractText(context.Background(), p)
	assert.ErrorContains(t, err, "limit")
}

func TestCSVText(t *testing.T) {
	data := "txn_id,amount,status\nTXN0001,100,success\nTXN0002,300,failed\nTXN0003,,success\n"

	got, err := NewExtractor().ExtractBytes(context.Background(), KindCSV, []byte(data))
	require.NoError(t, err)

	assert.Contains(t, got, "Total Rows: 3")
	assert.Contains(t, got, "Columns: txn_id, amount, status")
	assert.Contains(t, got, "  - amount: 2 unique values, 1 nulls")
	assert.Contains(t, got, "    Examples: success, failed")
	assert.Contains(t, got, "    Mean: 200.00")
	assert.Contains(t, got, "Row 1: txn_id: TXN0001 | amount: 100 | status: success")
	assert.Contains(t, got, "Row 3: txn_id: TXN0003 | status: success")
}

func TestJSONText(t *testing.T) {
	e := NewExtractor()
	ctx := context.Background()

	spec := `{"openapi":"3.0.0","info":{"title":"Collect API","version":"1.2"},
		"paths":{"/api/v1/collect":{"post":{"summary":"Collect payment","parameters":[{"name":"vpa","description":"payer VPA"}]}}}}`
	got, err := e.ExtractBytes(ctx, KindJSON, []byte(spec))
	require.NoError(t, err)
	assert.Contains(t, got, "API: Collect API")
	assert.Contains(t, got, "POST /api/v1/collect")
	assert.Contains(t, got, "    - vpa: payer VPA")

	cfg := `{"settings":{"timeout_ms":3000,"bank":"HDFC"},"enabled":true}`
	got, err = e.ExtractBytes(ctx, KindJSON, []byte(cfg))
	require.NoError(t, err)
	assert.Equal(t, "enabled: true\nsettings.bank: HDFC\nsettings.timeout_ms: 3000", got)

	arr := `[{"status":"success"},"raw"]`
	got, err = e.ExtractBytes(ctx, KindJSON, []byte(arr))
	require.NoError(t, err)
	assert.Contains(t, got, "JSON Array with 2 items")
	assert.Contains(t, got, "Item 1:\n  status: success")
	assert.Contains(t, got, "Item 2: raw")

	_, err = e.ExtractBytes(ctx, KindJSON, []byte("{broken"))
	assert.Error(t, err)
}

func TestPDFTextRejectsGarbage(t *testing.T) {
	_, err := NewExtractor().ExtractBytes(context.Background(), KindPDF, []byte("not a pdf"))
	assert.Error(t, err)
}

func TestNewSplitterValidates(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)
	_, err = NewSplitter(10, 10)
	assert.Error(t, err)
	s, err := NewSplitter(500, 50)
	require.NoError(t, err)
	assert.Equal(t, Splitter{Size: 500, Overlap: 50}, s)
}

func TestSplitWithoutWhitespace(t *testing.T) {
	s := Splitter{Size: 4, Overlap: 1}
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, s.Split("abcdefghij"))
}

func TestSplitShortAndEmpty(t *testing.T) {
	s := Splitter{Size: 100, Overlap: 10}
	assert.Nil(t, s.Split(" \n\t "))
	assert.Equal(t, []string{"short text"}, s.Split("short text"))
}

func TestSplitPrefersWhitespaceAndCoversText(t *testing.T) {
	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	text := strings.Join(words, " ")

	s := Splitter{Size: 50, Overlap: 10}
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	joined := strings.Join(chunks, " ")
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 50)
		if i < len(chunks)-1 {
			assert.Len(t, lastWord(c), 4, "chunk %d should end on a word boundary: %q", i, c)
		}
	}
	for _, w := range words {
		assert.Contains(t, joined, w)
	}
	assert.Contains(t, strings.Fields(chunks[1]), lastWord(chunks[0]))
}

func lastWord(s string) string {
	f := strings.Fields(s)
	return f[len(f)-1]
}
