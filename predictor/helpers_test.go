package predictor

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// ringForest splits on MACCS key 165 (any ring): ring-free structures lean
// "inactive", ring structures lean "active".
func ringForest() Manifest {
	return Manifest{
		Format:    FormatForest,
		NFeatures: 167,
		Classes:   []Label{"inactive", "active"},
		Trees: []TreeSpec{{
			ChildrenLeft:  []int{1, -1, -1},
			ChildrenRight: []int{2, -1, -1},
			Feature:       []int{165, -2, -2},
			Threshold:     []float64{0.5, -2, -2},
			Value:         [][]float64{{4, 4}, {3, 1}, {1, 3}},
		}},
	}
}

func writeManifest(t *testing.T, dir, key string, m Manifest) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), data, 0o644))
}

func newTestPipeline(t *testing.T, source ArtifactSource) *Pipeline {
	t.Helper()
	p, err := NewPipeline(source, NewGenerator(DefaultConfig().Fingerprints, nil), nil)
	require.NoError(t, err)
	return p
}

// fakeArtifact returns fixed labels and probabilities.
type fakeArtifact struct {
	classes []Label
	width   int
	labels  []Label
	proba   [][]float64
	closed  atomic.Int32
	batches [][]FixedVector
	mu      sync.Mutex
}

func (f *fakeArtifact) Predict(batch []FixedVector) ([]Label, error) {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
	if err := checkBatch(batch, f.width); err != nil {
		return nil, err
	}
	return f.labels[:len(batch)], nil
}

func (f *fakeArtifact) PredictProba(batch []FixedVector) ([][]float64, error) {
	if err := checkBatch(batch, f.width); err != nil {
		return nil, err
	}
	return f.proba[:len(batch)], nil
}

func (f *fakeArtifact) Classes() []Label { return f.classes }
func (f *fakeArtifact) NumFeatures() int { return f.width }
func (f *fakeArtifact) Close() error {
	f.closed.Add(1)
	return nil
}

// countingSource serves one artifact and records how often it was acquired.
type countingSource struct {
	art      ModelArtifact
	err      error
	acquired atomic.Int32
	released atomic.Int32
}

func (s *countingSource) Acquire(_ context.Context, _ FingerprintKind, _ string) (ModelArtifact, func(), error) {
	s.acquired.Add(1)
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.art, func() { s.released.Add(1) }, nil
}

// countingStore wraps a store and counts Open calls.
type countingStore struct {
	ArtifactStore
	opens atomic.Int32
}

func (c *countingStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	c.opens.Add(1)
	return c.ArtifactStore.Open(ctx, key)
}
