package predictor

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InputParseOptions allows callers to choose which CSV column holds SMILES.
// The column is a header name or a 1-based "#n" index.
type InputParseOptions struct {
	SMILESColumn string
}

// InputFileMetadata provides header information and the detected SMILES column.
type InputFileMetadata struct {
	Columns   []string
	Suggested InputParseOptions
}

// ParseSMILESText splits pasted text into SMILES on newlines, commas or semicolons.
func ParseSMILESText(data string) []string {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	tokens := strings.FieldsFunc(data, func(r rune) bool {
		return r == '\n' || r == ',' || r == ';'
	})
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = cleanCell(token)
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}

// ParseSMILESFile reads SMILES from a .csv, .tsv or plain text file.
func ParseSMILESFile(path string) ([]string, error) {
	return ParseSMILESFileWithOptions(path, InputParseOptions{})
}

// ParseSMILESFileWithOptions allows callers to specify the SMILES column of structured files.
func ParseSMILESFileWithOptions(path string, opts InputParseOptions) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return parseDelimited(path, ',', opts)
	case ".tsv":
		return parseDelimited(path, '\t', opts)
	default:
		return parsePlainText(path)
	}
}

// ReadSMILES reads SMILES from r, interpreting it as the given file type
// ("csv", "tsv" or anything else for one SMILES per line).
func ReadSMILES(r io.Reader, format string, opts InputParseOptions) ([]string, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "csv":
		return readDelimited(r, ',', opts)
	case "tsv":
		return readDelimited(r, '\t', opts)
	default:
		return readPlainText(r)
	}
}

func parsePlainText(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text file: %w", err)
	}
	defer f.Close()
	return readPlainText(f)
}

func readPlainText(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := cleanCell(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan text file: %w", err)
	}
	return out, nil
}

func parseDelimited(path string, comma rune, opts InputParseOptions) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	out, err := readDelimited(f, comma, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func readDelimited(r io.Reader, comma rune, opts InputParseOptions) ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	col, skipHeader, err := resolveSMILESColumn(header, opts.SMILESColumn)
	if err != nil {
		return nil, err
	}
	start := 0
	if skipHeader {
		start = 1
	}
	out := make([]string, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		value := cleanCell(row[col])
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out, nil
}

// resolveSMILESColumn picks the SMILES column and reports whether the first
// row is a header. Files without a recognised header use their first column.
func resolveSMILESColumn(header []string, explicit string) (int, bool, error) {
	if strings.TrimSpace(explicit) != "" {
		return matchExplicitColumn(header, explicit)
	}
	if col := findColumn(header, getColumnCandidates().SMILES); col >= 0 {
		return col, true, nil
	}
	if len(header) == 0 {
		return -1, false, errors.New("no usable SMILES column found")
	}
	return 0, false, nil
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}

func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		for _, cand := range candidates {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

func matchExplicitColumn(header []string, explicit string) (int, bool, error) {
	trimmed := strings.TrimSpace(explicit)
	if trimmed == "" {
		return -1, false, nil
	}
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, true, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, false, err
		}
		if idx >= len(header) {
			return -1, false, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, false, nil
	}
	return -1, false, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	if trimmed == "" {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

func headerNameForIndex(header []string, idx int, fromHeader bool) string {
	if idx < 0 {
		return ""
	}
	if fromHeader && idx < len(header) {
		if name := header[idx]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("#%d", idx+1)
}

// ReadInputFileMetadata returns header information and the suggested SMILES column.
func ReadInputFileMetadata(path string) (InputFileMetadata, error) {
	meta := InputFileMetadata{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".tsv" {
		return meta, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	if ext == ".tsv" {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	row, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return meta, nil
		}
		return meta, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	header := make([]string, len(row))
	for i, cell := range row {
		header[i] = cleanCell(cell)
	}
	meta.Columns = header
	if col, fromHeader, err := resolveSMILESColumn(header, ""); err == nil {
		meta.Suggested.SMILESColumn = headerNameForIndex(header, col, fromHeader)
	}
	return meta, nil
}

// WriteResultsCSV writes one row per prediction.
func WriteResultsCSV(w io.Writer, results []PredictionResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"smiles", "canonical_smiles", "prediction", "probability"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		record := []string{
			r.Structure.Input,
			r.Structure.Canonical,
			string(r.Class),
			strconv.FormatFloat(r.Probability, 'f', 4, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteFeaturesTSV writes the fingerprints of successfully featurized records,
// one row per record with columns f0..f(n-1). It returns the number of rows written.
func WriteFeaturesTSV(w io.Writer, records []StructureRecord, width int) (int, error) {
	writer := csv.NewWriter(w)
	writer.Comma = '\t'
	header := make([]string, 0, width+2)
	header = append(header, "smiles", "canonical_smiles")
	for i := 0; i < width; i++ {
		header = append(header, "f"+strconv.Itoa(i))
	}
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	rows := 0
	row := make([]string, width+2)
	for _, rec := range records {
		if len(rec.Fingerprint) != width {
			continue
		}
		row[0] = rec.Input
		row[1] = rec.Canonical
		for i, v := range rec.Fingerprint {
			row[i+2] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		if err := writer.Write(row); err != nil {
			return rows, fmt.Errorf("write row: %w", err)
		}
		rows++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("flush tsv: %w", err)
	}
	return rows, nil
}
