package predictor

import (
	"errors"
	"fmt"
)

// TreeSpec is one fitted decision tree in flat array form: node i is a leaf
// when ChildrenLeft[i] is -1, otherwise samples with
// x[Feature[i]] <= Threshold[i] go left. Value holds per-class leaf weights.
type TreeSpec struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type forestArtifact struct {
	classes   []Label
	nFeatures int
	trees     []TreeSpec
	// leaf distributions, normalized once at load
	leaves [][][]float64
}

func newForestArtifact(m Manifest) (*forestArtifact, error) {
	if len(m.Trees) == 0 {
		return nil, errors.New("forest without trees")
	}
	f := &forestArtifact{
		classes:   cloneLabels(m.Classes),
		nFeatures: m.NFeatures,
		trees:     m.Trees,
		leaves:    make([][][]float64, len(m.Trees)),
	}
	for t, tree := range m.Trees {
		if err := validateTree(tree, len(m.Classes), m.NFeatures); err != nil {
			return nil, fmt.Errorf("tree %d: %w", t, err)
		}
		f.leaves[t] = normalizeLeaves(tree)
	}
	return f, nil
}

func validateTree(tree TreeSpec, nClasses, nFeatures int) error {
	n := len(tree.ChildrenLeft)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(tree.ChildrenRight) != n || len(tree.Feature) != n || len(tree.Threshold) != n || len(tree.Value) != n {
		return errors.New("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		if len(tree.Value[i]) != nClasses {
			return fmt.Errorf("node %d has %d class weights, want %d", i, len(tree.Value[i]), nClasses)
		}
		l, r := tree.ChildrenLeft[i], tree.ChildrenRight[i]
		if l == -1 {
			continue
		}
		// children always follow their parent in fitted trees
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has invalid children %d, %d", i, l, r)
		}
		if f := tree.Feature[i]; f < 0 || f >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d outside 0..%d", i, f, nFeatures-1)
		}
	}
	return nil
}

func normalizeLeaves(tree TreeSpec) [][]float64 {
	out := make([][]float64, len(tree.Value))
	for i, v := range tree.Value {
		if tree.ChildrenLeft[i] != -1 {
			continue
		}
		var sum float64
		for _, w := range v {
			sum += w
		}
		row := make([]float64, len(v))
		if sum > 0 {
			for k, w := range v {
				row[k] = w / sum
			}
		}
		out[i] = row
	}
	return out
}

func (f *forestArtifact) Classes() []Label { return cloneLabels(f.classes) }
func (f *forestArtifact) NumFeatures() int { return f.nFeatures }
func (f *forestArtifact) Close() error { return nil }

// PredictProba averages the normalized leaf distributions over all trees.
func (f *forestArtifact) PredictProba(batch []FixedVector) ([][]float64, error) {
	if err := checkBatch(batch, f.nFeatures); err != nil {
		return nil, err
	}
	out := make([][]float64, len(batch))
	scale := 1 / float64(len(f.trees))
	for i, x := range batch {
		row := make([]float64, len(f.classes))
		for t := range f.trees {
			leaf := f.leaves[t][f.leafIndex(t, x)]
			for k, p := range leaf {
				row[k] += p
			}
		}
		for k := range row {
			row[k] *= scale
		}
		out[i] = row
	}
	return out, nil
}

// Predict returns the class with the highest mean probability; ties go to the
// class listed first.
func (f *forestArtifact) Predict(batch []FixedVector) ([]Label, error) {
	proba, err := f.PredictProba(batch)
	if err != nil {
		return nil, err
	}
	out := make([]Label, len(proba))
	for i, row := range proba {
		out[i] = f.classes[argmax(row)]
	}
	return out, nil
}

func (f *forestArtifact) leafIndex(t int, x FixedVector) int {
	tree := &f.trees[t]
	node := 0
	for tree.ChildrenLeft[node] != -1 {
		if float64(x[tree.Feature[node]]) <= tree.Threshold[node] {
			node = tree.ChildrenLeft[node]
		} else {
			node = tree.ChildrenRight[node]
		}
	}
	return node
}
