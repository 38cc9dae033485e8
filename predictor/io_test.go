package predictor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseSMILESFile(t *testing.T) {
	cases := []struct {
		name    string
		content string
		opts    InputParseOptions
		want    []string
	}{
		{"header.csv", "\ufeffid,SMILES\n1,CCO\n2,\n3,c1ccccc1\n", InputParseOptions{}, []string{"CCO", "c1ccccc1"}},
		{"compound.tsv", "name\tcompound_smiles\nethanol\tCCO\n", InputParseOptions{}, []string{"CCO"}},
		{"headerless.csv", "CCO\nc1ccccc1\n", InputParseOptions{}, []string{"CCO", "c1ccccc1"}},
		{"explicit.csv", "a,b\nx,CCN\ny,CCC\n", InputParseOptions{SMILESColumn: "b"}, []string{"CCN", "CCC"}},
		{"index.csv", "x,CCN\ny,CCC\n", InputParseOptions{SMILESColumn: "#2"}, []string{"CCN", "CCC"}},
		{"ragged.csv", "id,smiles\n1\n2,CO\n", InputParseOptions{}, []string{"CO"}},
		{"list.txt", "CCO\n\n  c1ccccc1  \r\n", InputParseOptions{}, []string{"CCO", "c1ccccc1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSMILESFileWithOptions(writeFile(t, tc.name, tc.content), tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseSMILESFileErrors(t *testing.T) {
	_, err := ParseSMILESFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = ParseSMILESFile(writeFile(t, "empty.csv", ""))
	assert.Error(t, err)

	for _, col := range []string{"nope", "#0", "#9", "#x"} {
		_, err = ParseSMILESFileWithOptions(writeFile(t, "a.csv", "a,b\n1,2\n"), InputParseOptions{SMILESColumn: col})
		assert.Error(t, err, col)
	}
}

func TestParseSMILESText(t *testing.T) {
	got := ParseSMILESText("CCO\r\nc1ccccc1; CCN ,\n\nO")
	assert.Equal(t, []string{"CCO", "c1ccccc1", "CCN", "O"}, got)
	assert.Empty(t, ParseSMILESText(" \n "))
}

func TestReadSMILES(t *testing.T) {
	got, err := ReadSMILES(strings.NewReader("smiles\nCCO\n"), ".csv", InputParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CCO"}, got)

	got, err = ReadSMILES(strings.NewReader("CCO\nCCN\n"), "txt", InputParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CCO", "CCN"}, got)
}

func TestReadInputFileMetadata(t *testing.T) {
	meta, err := ReadInputFileMetadata(writeFile(t, "in.csv", "id,Canonical_SMILES\n1,CCO\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "Canonical_SMILES"}, meta.Columns)
	assert.Equal(t, "Canonical_SMILES", meta.Suggested.SMILESColumn)

	meta, err = ReadInputFileMetadata(writeFile(t, "in.tsv", "CCO\tx\n"))
	require.NoError(t, err)
	assert.Equal(t, "#1", meta.Suggested.SMILESColumn)

	meta, err = ReadInputFileMetadata(writeFile(t, "in.txt", "CCO\n"))
	require.NoError(t, err)
	assert.Empty(t, meta.Columns)
}

func TestColumnCandidatesOverride(t *testing.T) {
	t.Cleanup(func() { SetColumnCandidates(DefaultColumnCandidates()) })
	SetColumnCandidates(ColumnCandidates{SMILES: []string{"structure_string"}})
	got, err := ParseSMILESFile(writeFile(t, "custom.csv", "structure_string,smiles\nCCO,CCN\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"CCO"}, got)

	SetColumnCandidates(ColumnCandidates{})
	assert.Equal(t, DefaultColumnCandidates(), getColumnCandidates())
}

func TestWriteResultsCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteResultsCSV(&buf, []PredictionResult{
		{Structure: StructureRecord{Input: "OCC", Canonical: "CCO"}, Class: "active", Probability: 0.8125},
		{Structure: StructureRecord{Input: "C,N", Canonical: "CN"}, Class: "inactive", Probability: 1},
	})
	require.NoError(t, err)
	want := "smiles,canonical_smiles,prediction,probability\n" +
		"OCC,CCO,active,0.8125\n" +
		"\"C,N\",CN,inactive,1.0000\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteFeaturesTSV(t *testing.T) {
	var buf bytes.Buffer
	rows, err := WriteFeaturesTSV(&buf, []StructureRecord{
		{Input: "OCC", Canonical: "CCO", Fingerprint: FixedVector{1, 0, 0.5}},
		{Input: "bad"},
		{Input: "C", Canonical: "C", Fingerprint: FixedVector{0, 0, 1}},
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	want := "smiles\tcanonical_smiles\tf0\tf1\tf2\n" +
		"OCC\tCCO\t1\t0\t0.5\n" +
		"C\tC\t0\t0\t1\n"
	assert.Equal(t, want, buf.String())
}
