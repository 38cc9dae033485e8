package predictor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maccsVector(t *testing.T, smiles string) FixedVector {
	t.Helper()
	vec, err := NewGenerator(DefaultConfig().Fingerprints, nil).Generate(smiles, MACCS)
	require.NoError(t, err)
	return vec
}

func TestLoaderForest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "maccs_rf.json", ringForest())
	art, err := NewLoader(NewFileStore(dir)).Load(context.Background(), MACCS, "rf")
	require.NoError(t, err)
	defer art.Close()

	assert.Equal(t, []Label{"inactive", "active"}, art.Classes())
	assert.Equal(t, 167, art.NumFeatures())

	batch := []FixedVector{maccsVector(t, "CCO"), maccsVector(t, "c1ccccc1")}
	proba, err := art.PredictProba(batch)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, proba[0], 1e-9)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, proba[1], 1e-9)

	labels, err := art.Predict(batch)
	require.NoError(t, err)
	assert.Equal(t, []Label{"inactive", "active"}, labels)

	_, err = art.Predict([]FixedVector{{1, 2, 3}})
	assert.Error(t, err)
}

func TestForestAveragesTreesAndBreaksTiesByOrder(t *testing.T) {
	m := Manifest{
		Format:    FormatForest,
		NFeatures: 2,
		Classes:   []Label{"0", "1"},
		Trees: []TreeSpec{
			{
				ChildrenLeft:  []int{1, -1, -1},
				ChildrenRight: []int{2, -1, -1},
				Feature:       []int{0, -2, -2},
				Threshold:     []float64{0.5, -2, -2},
				Value:         [][]float64{{1, 1}, {1, 0}, {0, 1}},
			},
			{
				ChildrenLeft:  []int{1, -1, -1},
				ChildrenRight: []int{2, -1, -1},
				Feature:       []int{1, -2, -2},
				Threshold:     []float64{0.5, -2, -2},
				Value:         [][]float64{{1, 1}, {0, 2}, {2, 0}},
			},
		},
	}
	f, err := newForestArtifact(m)
	require.NoError(t, err)

	proba, err := f.PredictProba([]FixedVector{{0, 0}, {1, 0}, {1, 1}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, proba[0], 1e-9)
	assert.InDeltaSlice(t, []float64{0, 1}, proba[1], 1e-9)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, proba[2], 1e-9)

	labels, err := f.Predict([]FixedVector{{0, 0}, {1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []Label{"0", "1"}, labels)
}

func TestLoaderFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maccs_garbled.json"), []byte("{not json"), 0o644))
	writeManifest(t, dir, "maccs_noclasses.json", Manifest{Format: FormatForest, NFeatures: 167})
	writeManifest(t, dir, "maccs_pickle.json", Manifest{Format: "pickle", NFeatures: 167, Classes: []Label{"a"}})

	badFeature := ringForest()
	badFeature.Trees[0].Feature[0] = 500
	writeManifest(t, dir, "maccs_badfeature.json", badFeature)

	cyclic := ringForest()
	cyclic.Trees[0].ChildrenLeft[0] = 0
	writeManifest(t, dir, "maccs_cyclic.json", cyclic)

	onnxNoFile := ringForest()
	onnxNoFile.Format = FormatONNX
	onnxNoFile.Trees = nil
	writeManifest(t, dir, "maccs_onnx.json", onnxNoFile)

	loader := NewLoader(NewFileStore(dir))
	for _, model := range []string{"missing", "garbled", "noclasses", "pickle", "badfeature", "cyclic", "onnx", "", "../rf"} {
		t.Run(model, func(t *testing.T) {
			art, err := loader.Load(context.Background(), MACCS, model)
			assert.ErrorIs(t, err, ErrArtifactNotFound)
			assert.Nil(t, art)
		})
	}
	_, err := loader.Load(context.Background(), FingerprintKind(11), "rf")
	assert.ErrorIs(t, err, ErrUnknownFingerprint)
}

func TestLoaderAcquireReleaseCloses(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "maccs_rf.json", ringForest())
	art, release, err := NewLoader(NewFileStore(dir)).Acquire(context.Background(), MACCS, "rf")
	require.NoError(t, err)
	require.NotNil(t, art)
	release()
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "rdkit_rf.json", ArtifactKey(RDKitFP, "rf"))
	kind, model, ok := ParseArtifactKey("mhfp6_rf.json")
	require.True(t, ok)
	assert.Equal(t, MHFP6, kind)
	assert.Equal(t, "rf", model)

	kind, model, ok = ParseArtifactKey("models/erg_random_forest.json")
	require.True(t, ok)
	assert.Equal(t, ErG, kind)
	assert.Equal(t, "random_forest", model)

	_, _, ok = ParseArtifactKey("metrics.json")
	assert.False(t, ok)
	_, _, ok = ParseArtifactKey("morgan_rf.json")
	assert.False(t, ok)
	assert.Equal(t, "dir/model.onnx", siblingKey("dir/ecfp4_rf.json", "model.onnx"))
}
