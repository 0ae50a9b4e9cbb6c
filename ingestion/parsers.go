package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxFileSize bounds the size of a single ingested file.
const DefaultMaxFileSize = 10 << 20

const (
	csvSampleRows   = 10
	jsonSampleItems = 20
)

// Extractor reads supported files and returns their text content.
type Extractor struct {
	MaxFileSize int64
}

func NewExtractor() *Extractor {
	return &Extractor{MaxFileSize: DefaultMaxFileSize}
}

// ExtractText returns the text of the file at path. Unsupported kinds fail with
// errs.ErrUnsupportedInput.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	kind, err := DetectKind(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if limit := e.maxSize(); info.Size() > limit {
		return "", fmt.Errorf("%s is %d bytes, larger than the %d byte limit", filepath.Base(path), info.Size(), limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return e.ExtractBytes(ctx, kind, data)
}

// ExtractBytes converts an in-memory payload of the given kind to text.
func (e *Extractor) ExtractBytes(_ context.Context, kind Kind, data []byte) (string, error) {
	if int64(len(data)) > e.maxSize() {
		return "", fmt.Errorf("payload is %d bytes, larger than the %d byte limit", len(data), e.maxSize())
	}

	switch kind {
	case KindPDF:
		return pdfText(data)
	case KindCSV:
		return csvText(data)
	case KindJSON:
		return jsonText(data)
	case KindText, KindMarkdown:
		return normalizePlainText(string(data)), nil
	default:
		return "", fmt.Errorf("no text extractor for kind %q", kind)
	}
}

func (e *Extractor) maxSize() int64 {
	if e.MaxFileSize > 0 {
		return e.MaxFileSize
	}
	return DefaultMaxFileSize
}

func pdfText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return normalizePlainText(buf.String()), nil
}

// csvText renders a summary of the table followed by a sample of its rows.
func csvText(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	headers := records[0]
	for i, h := range headers {
		if headers[i] = strings.TrimSpace(h); headers[i] == "" {
			headers[i] = fmt.Sprintf("Column %d", i+1)
		}
	}
	rows := records[1:]

	b := &strings.Builder{}
	fmt.Fprintln(b, "CSV Data Summary:")
	fmt.Fprintf(b, "Total Rows: %d\n", len(rows))
	fmt.Fprintf(b, "Total Columns: %d\n", len(headers))
	fmt.Fprintf(b, "Columns: %s\n\n", strings.Join(headers, ", "))

	fmt.Fprintln(b, "Column Information:")
	var numeric []int
	for col, header := range headers {
		values := columnValues(rows, col)
		unique := distinct(values)
		fmt.Fprintf(b, "  - %s: %d unique values, %d nulls\n", header, len(unique), len(rows)-len(values))

		if _, ok := parseNumbers(values); ok {
			numeric = append(numeric, col)
		} else if len(unique) > 0 && len(unique) < 10 {
			if len(unique) > 5 {
				unique = unique[:5]
			}
			fmt.Fprintf(b, "    Examples: %s\n", strings.Join(unique, ", "))
		}
	}
	b.WriteString("\n")

	if len(numeric) > 0 {
		fmt.Fprintln(b, "Statistical Summary:")
		for _, col := range numeric {
			nums, _ := parseNumbers(columnValues(rows, col))
			sort.Float64s(nums)
			fmt.Fprintf(b, "  %s:\n", headers[col])
			fmt.Fprintf(b, "    Mean: %.2f\n", mean(nums))
			fmt.Fprintf(b, "    Median: %.2f\n", median(nums))
			fmt.Fprintf(b, "    Min: %.2f\n", nums[0])
			fmt.Fprintf(b, "    Max: %.2f\n", nums[len(nums)-1])
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(b, "Sample Data (first %d rows):\n", csvSampleRows)
	for idx, row := range rows {
		if idx >= csvSampleRows {
			break
		}
		fmt.Fprintf(b, "Row %d: %s\n", idx+1, formatCSVRow(headers, row))
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func formatCSVRow(headers, row []string) string {
	parts := make([]string, 0, len(row))
	for i, value := range row {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		header := fmt.Sprintf("Extra %d", i+1)
		if i < len(headers) {
			header = headers[i]
		}
		parts = append(parts, header+": "+value)
	}
	return strings.Join(parts, " | ")
}

func columnValues(rows [][]string, col int) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			if v := strings.TrimSpace(row[col]); v != "" {
				values = append(values, v)
			}
		}
	}
	return values
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func parseNumbers(values []string) ([]float64, bool) {
	if len(values) == 0 {
		return nil, false
	}
	nums := make([]float64, len(values))
	for i, v := range values {
		n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		nums[i] = n
	}
	return nums, true
}

func mean(sorted []float64) float64 {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// jsonText renders API specs as endpoint listings, arrays as item listings and everything
// else as flattened key paths.
func jsonText(data []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}

	switch v := doc.(type) {
	case map[string]any:
		if hasAnyKey(v, "openapi", "swagger", "paths", "endpoints") {
			return apiSpecText(v), nil
		}
		lines := flatten(v, "")
		return strings.Join(lines, "\n"), nil
	case []any:
		return arrayText(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func hasAnyKey(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func apiSpecText(spec map[string]any) string {
	var parts []string
	if info, ok := spec["info"].(map[string]any); ok {
		parts = append(parts,
			"API: "+stringOr(info["title"], "Unknown"),
			"Version: "+stringOr(info["version"], "Unknown"),
			"Description: "+stringOr(info["description"], "")+"\n",
		)
	}

	if paths, ok := spec["paths"].(map[string]any); ok {
		parts = append(parts, "Endpoints:")
		for _, path := range sortedKeys(paths) {
			methods, ok := paths[path].(map[string]any)
			if !ok {
				continue
			}
			for _, method := range sortedKeys(methods) {
				details, _ := methods[method].(map[string]any)
				parts = append(parts,
					fmt.Sprintf("\n%s %s", strings.ToUpper(method), path),
					"  Summary: "+stringOr(details["summary"], ""),
					"  Description: "+stringOr(details["description"], ""),
				)
				if params, ok := details["parameters"].([]any); ok && len(params) > 0 {
					parts = append(parts, "  Parameters:")
					for _, p := range params {
						pm, _ := p.(map[string]any)
						parts = append(parts, fmt.Sprintf("    - %s: %s", stringOr(pm["name"], ""), stringOr(pm["description"], "")))
					}
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

func arrayText(items []any) string {
	parts := []string{fmt.Sprintf("JSON Array with %d items\n", len(items))}
	for i, item := range items {
		if i >= jsonSampleItems {
			parts = append(parts, fmt.Sprintf("\n... and %d more items", len(items)-jsonSampleItems))
			break
		}
		obj, ok := item.(map[string]any)
		if !ok {
			parts = append(parts, fmt.Sprintf("Item %d: %s", i+1, scalar(item)))
			continue
		}
		parts = append(parts, fmt.Sprintf("Item %d:", i+1))
		for _, k := range sortedKeys(obj) {
			parts = append(parts, fmt.Sprintf("  %s: %s", k, scalar(obj[k])))
		}
	}
	return strings.Join(parts, "\n")
}

func flatten(m map[string]any, prefix string) []string {
	var lines []string
	for _, k := range sortedKeys(m) {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := m[k].(map[string]any); ok {
			lines = append(lines, flatten(child, key)...)
			continue
		}
		lines = append(lines, key+": "+scalar(m[k]))
	}
	return lines
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
