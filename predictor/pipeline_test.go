package predictor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMalformedInputIsDropped(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "maccs_rf.json", ringForest())
	p := newTestPipeline(t, NewLoader(NewFileStore(dir)))

	results, dropped, err := p.Run(context.Background(), []string{"CCO", "not_a_smiles", "c1ccccc1"}, MACCS, "rf")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, results, 2)

	assert.Equal(t, "CCO", results[0].Structure.Input)
	assert.Equal(t, "CCO", results[0].Structure.Canonical)
	assert.Equal(t, Label("inactive"), results[0].Class)
	assert.InDelta(t, 0.75, results[0].Probability, 1e-9)

	assert.Equal(t, "c1ccccc1", results[1].Structure.Canonical)
	assert.Equal(t, Label("active"), results[1].Class)
	assert.InDelta(t, 0.75, results[1].Probability, 1e-9)
	assert.Len(t, results[1].Structure.Fingerprint, 167)
}

func TestRunEmptyInputSkipsArtifact(t *testing.T) {
	src := &countingSource{err: errors.New("must not be called")}
	p := newTestPipeline(t, src)

	results, dropped, err := p.Run(context.Background(), nil, MHFP6, "rf")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, dropped)
	assert.Zero(t, src.acquired.Load())
}

func TestRunUnknownModel(t *testing.T) {
	p := newTestPipeline(t, NewLoader(NewFileStore(t.TempDir())))

	results, dropped, err := p.Run(context.Background(), []string{"CCO"}, MACCS, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Nil(t, results)
	assert.Zero(t, dropped)
}

func TestRunAllDropped(t *testing.T) {
	art := &fakeArtifact{classes: []Label{"a"}, width: 167}
	src := &countingSource{art: art}
	p := newTestPipeline(t, src)

	results, dropped, err := p.Run(context.Background(), []string{"xx", "C1CC", ""}, MACCS, "rf")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 3, dropped)
	assert.Empty(t, art.batches, "model is not invoked for an empty batch")
	assert.Equal(t, int32(1), src.released.Load())
}

func TestRunDisconnectedStructureIsDropped(t *testing.T) {
	art := &fakeArtifact{
		classes: []Label{"a", "b"},
		width:   167,
		labels:  []Label{"a"},
		proba:   [][]float64{{0.6, 0.4}},
	}
	p := newTestPipeline(t, &countingSource{art: art})

	results, dropped, err := p.Run(context.Background(), []string{"[Na+].[Cl-]", "CCN"}, MACCS, "rf")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, results, 1)
	assert.Equal(t, "CCN", results[0].Structure.Input)
}

func TestRunReportsProbabilityOfPredictedClass(t *testing.T) {
	art := &fakeArtifact{
		classes: []Label{"a", "b", "c"},
		width:   167,
		// the predicted class is deliberately not the most probable one
		labels: []Label{"b", "c"},
		proba:  [][]float64{{0.7, 0.2, 0.1}, {0.5, 0.1, 0.4}},
	}
	p := newTestPipeline(t, &countingSource{art: art})

	results, _, err := p.Run(context.Background(), []string{"CCO", "CCN"}, MACCS, "rf")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Label("b"), results[0].Class)
	assert.InDelta(t, 0.2, results[0].Probability, 1e-9)
	assert.Equal(t, Label("c"), results[1].Class)
	assert.InDelta(t, 0.4, results[1].Probability, 1e-9)
}

func TestRunPreservesOrder(t *testing.T) {
	inputs := []string{"CCCC", "bad(", "OCC", "c1ccncc1", "C1CC", "CC(=O)O"}
	labels := []Label{"x", "y", "x", "y"}
	proba := [][]float64{{1, 0}, {0, 1}, {1, 0}, {0, 1}}
	art := &fakeArtifact{classes: []Label{"x", "y"}, width: 167, labels: labels, proba: proba}
	p := newTestPipeline(t, &countingSource{art: art})

	results, dropped, err := p.Run(context.Background(), inputs, MACCS, "rf")
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	var got []string
	for _, r := range results {
		got = append(got, r.Structure.Input)
	}
	assert.Equal(t, []string{"CCCC", "OCC", "c1ccncc1", "CC(=O)O"}, got)
	assert.Equal(t, "CCO", results[1].Structure.Canonical)
	require.Len(t, art.batches, 1)
	assert.Len(t, art.batches[0], 4)
}

func TestRunDeterministic(t *testing.T) {
	dir := t.TempDir()
	m := ringForest()
	m.NFeatures = 2048
	m.Trees[0].Feature[0] = 7
	m.Trees[0].Threshold[0] = 2e9
	writeManifest(t, dir, "mhfp6_rf.json", m)
	p := newTestPipeline(t, NewLoader(NewFileStore(dir)))

	inputs := []string{"CC(=O)Oc1ccccc1C(=O)O", "CCO", "c1ccccc1"}
	first, _, err := p.Run(context.Background(), inputs, MHFP6, "rf")
	require.NoError(t, err)
	second, _, err := p.Run(context.Background(), inputs, MHFP6, "rf")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunFeatureWidthMismatch(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "ecfp4_rf.json", ringForest())
	p := newTestPipeline(t, NewLoader(NewFileStore(dir)))

	_, _, err := p.Run(context.Background(), []string{"CCO"}, ECFP4, "rf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1024 features")
}

func TestRunUnknownKind(t *testing.T) {
	src := &countingSource{}
	p := newTestPipeline(t, src)
	_, _, err := p.Run(context.Background(), []string{"CCO"}, FingerprintKind(42), "rf")
	assert.ErrorIs(t, err, ErrUnknownFingerprint)
	assert.Zero(t, src.acquired.Load())
}

func TestRunEveryKind(t *testing.T) {
	gen := NewGenerator(DefaultConfig().Fingerprints, nil)
	for _, kind := range FingerprintKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			art := &fakeArtifact{
				classes: []Label{"0", "1"},
				width:   gen.Length(kind),
				labels:  []Label{"1", "1"},
				proba:   [][]float64{{0.1, 0.9}, {0.2, 0.8}},
			}
			p := newTestPipeline(t, &countingSource{art: art})
			results, dropped, err := p.Run(context.Background(), []string{"Oc1ccccc1", "CCN(CC)CC"}, kind, "rf")
			require.NoError(t, err)
			assert.Zero(t, dropped)
			assert.Len(t, results, 2)
		})
	}
}

func TestRunSourceErrorIsFatal(t *testing.T) {
	src := &countingSource{err: fmt.Errorf("%w: erg_rf.json", ErrArtifactNotFound)}
	p := newTestPipeline(t, src)
	results, dropped, err := p.Run(context.Background(), []string{"CCO", "x"}, ErG, "rf")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Nil(t, results)
	assert.Zero(t, dropped)
}

func TestRunCanceledContext(t *testing.T) {
	art := &fakeArtifact{classes: []Label{"a"}, width: 167}
	src := &countingSource{art: art}
	p := newTestPipeline(t, src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := p.Run(ctx, []string{"CCO"}, MACCS, "rf")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), src.released.Load())
}

func TestFeaturize(t *testing.T) {
	p := newTestPipeline(t, &countingSource{})
	records, errs, err := p.Featurize(context.Background(), []string{"OCC", "C(", "CC.O"}, ErG)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.NoError(t, errs[0])
	assert.Equal(t, "CCO", records[0].Canonical)
	assert.Len(t, records[0].Fingerprint, 315)

	assert.ErrorIs(t, errs[1], ErrInvalidStructure)
	assert.Empty(t, records[1].Canonical)

	assert.ErrorIs(t, errs[2], ErrStructureBuildFailed)
	assert.NotEmpty(t, records[2].Canonical)
	assert.Nil(t, records[2].Fingerprint)
}
