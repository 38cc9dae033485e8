package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amrkg/predictor"
)

const ringManifest = `{
  "format": "forest",
  "n_features": 167,
  "classes": ["inactive", "active"],
  "trees": [{
    "children_left": [1, -1, -1],
    "children_right": [2, -1, -1],
    "feature": [165, -2, -2],
    "threshold": [0.5, -2, -2],
    "value": [[4, 4], [3, 1], [1, 3]]
  }]
}`

// setupWorkspace writes a config pointing at a model directory holding a
// MACCS forest and returns the config path.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	return setupWorkspaceWith(t, func(*predictor.Config) {})
}

func setupWorkspaceWith(t *testing.T, mutate func(*predictor.Config)) string {
	t.Helper()
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(models, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(models, "maccs_rf.json"), []byte(ringManifest), 0o644))

	cfg := predictor.DefaultConfig()
	cfg.Fingerprint = "maccs"
	cfg.Artifacts.Dir = models
	cfg.Logging.Level = "error"
	mutate(&cfg)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, predictor.SaveConfig(path, cfg))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--env", filepath.Join(t.TempDir(), "absent.env")))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPredictCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)
	out := filepath.Join(t.TempDir(), "out", "pred.csv")

	stdout, _, err := execute(t, "predict", "--config", cfgPath, "--text", "CCO\nnot_a_smiles\nc1ccccc1", "-o", out, "--stdout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote 2 predictions")
	assert.Contains(t, stdout, "(1 dropped)")
	assert.Contains(t, stdout, "MACCS / rf predictions")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"smiles", "canonical_smiles", "prediction", "probability"},
		{"CCO", "CCO", "inactive", "0.7500"},
		{"c1ccccc1", "c1ccccc1", "active", "0.7500"},
	}, rows)
}

func TestPredictCommandFromFile(t *testing.T) {
	cfgPath := setupWorkspace(t)
	input := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("id,smiles\n1,OCC\n"), 0o644))
	outDir := t.TempDir()

	stdout, _, err := execute(t, "predict", input, "--config", cfgPath, "--output-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote 1 predictions")

	matches, err := filepath.Glob(filepath.Join(outDir, "result_*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestPredictCommandErrors(t *testing.T) {
	cfgPath := setupWorkspace(t)

	_, _, err := execute(t, "predict", "--config", cfgPath)
	assert.ErrorContains(t, err, "no SMILES supplied")

	_, _, err = execute(t, "predict", "--config", cfgPath, "--text", "CCO", "-m", "svm", "-o", filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorIs(t, err, predictor.ErrArtifactNotFound)

	_, _, err = execute(t, "predict", "--config", cfgPath, "--text", "CCO", "-f", "morgan")
	assert.ErrorIs(t, err, predictor.ErrUnknownFingerprint)
}

func TestFeaturizeCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)
	input := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("CCO\nxx\nc1ccccc1\n"), 0o644))

	stdout, _, err := execute(t, "featurize", input, "--config", cfgPath, "-f", "maccs")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	header := strings.Split(lines[0], "\t")
	assert.Len(t, header, 2+167)
	assert.Equal(t, "f166", header[len(header)-1])
	assert.True(t, strings.HasPrefix(lines[2], "c1ccccc1\tc1ccccc1\t"))
}

func TestFeaturizeCommandToFile(t *testing.T) {
	cfgPath := setupWorkspace(t)
	input := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("name,smiles\nethanol,CCO\n"), 0o644))
	out := filepath.Join(t.TempDir(), "features.tsv")

	stdout, _, err := execute(t, "featurize", input, "--config", cfgPath, "-f", "erg", "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Len(t, strings.Split(lines[1], "\t"), 2+315)

	_, _, err = execute(t, "featurize", input, "--config", cfgPath, "-o", filepath.Join(t.TempDir(), "missing", "f.tsv"))
	assert.ErrorContains(t, err, "create feature file")
}

func TestColumnsCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)
	input := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("id,Canonical_SMILES\n1,CCO\n"), 0o644))

	stdout, _, err := execute(t, "columns", input, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "#1\tid\n#2\tCanonical_SMILES\n")
	assert.Contains(t, stdout, "smiles column: Canonical_SMILES")

	plain := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(plain, []byte("CCO\n"), 0o644))
	stdout, _, err = execute(t, "columns", plain, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "one SMILES per line")
}

func TestConfigColumnCandidates(t *testing.T) {
	t.Cleanup(func() { predictor.SetColumnCandidates(predictor.DefaultColumnCandidates()) })
	cfgPath := setupWorkspaceWith(t, func(cfg *predictor.Config) {
		cfg.Columns.SMILES = []string{"mol"}
	})
	input := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("mol,smiles\nc1ccccc1,CCO\n"), 0o644))
	out := filepath.Join(t.TempDir(), "pred.csv")

	_, _, err := execute(t, "predict", input, "--config", cfgPath, "-o", out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "c1ccccc1,c1ccccc1,active,0.7500")
}

func TestCanonCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)
	stdout, stderr, err := execute(t, "canon", "--config", cfgPath, "OCC", "C1CC1(")
	require.NoError(t, err)
	assert.Equal(t, "OCC\tCCO\n", stdout)
	assert.Contains(t, stderr, "C1CC1(")
}

func TestFingerprintCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)
	stdout, _, err := execute(t, "fingerprint", "--config", cfgPath, "-f", "maccs", "c1ccccc1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "c1ccccc1 MACCS length=167")
	assert.Contains(t, stdout, "on bits: ")
	assert.Contains(t, stdout, "165")
}

func TestModelsCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)
	stdout, _, err := execute(t, "models", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "MACCS")
	assert.Contains(t, stdout, "rf")
}

func TestConfigCommands(t *testing.T) {
	cfgPath := setupWorkspace(t)
	stdout, _, err := execute(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "fingerprint: maccs")

	target := filepath.Join(t.TempDir(), "amrkg.yaml")
	_, _, err = execute(t, "config", "init", target, "--config", cfgPath)
	require.NoError(t, err)
	cfg, err := predictor.LoadConfig(target)
	require.NoError(t, err)
	assert.Equal(t, "mhfp6", cfg.Fingerprint)

	_, _, err = execute(t, "config", "init", target, "--config", cfgPath)
	assert.ErrorContains(t, err, "already exists")
}

func TestInvalidConfigFailsEarly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fingerprint":"morgan"}`), 0o644))
	_, _, err := execute(t, "models", "--config", path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "a", "b.csv")
	got, err := resolveOutputPath(explicit, "")
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
	assert.DirExists(t, filepath.Join(dir, "a"))

	got, err = resolveOutputPath("", filepath.Join(dir, "csv"))
	require.NoError(t, err)
	assert.Regexp(t, `result_\d{14}\.csv$`, got)
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "on bits: 1,3", formatVector(predictor.FixedVector{0, 1, 0, 1}))
	assert.Equal(t, "0.5,2", formatVector(predictor.FixedVector{0.5, 2}))
}
