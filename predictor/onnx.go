package predictor

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ORTOptions locates the onnxruntime shared library.
type ORTOptions struct {
	LibraryPath string
}

// ONNXSpec names the model file and tensors of an onnx artifact. The model
// must be exported without a zipmap so probabilities come back as a dense
// float tensor in class order.
type ONNXSpec struct {
	File        string `json:"file"`
	Input       string `json:"input,omitempty"`
	LabelOutput string `json:"label_output,omitempty"`
	ProbaOutput string `json:"proba_output,omitempty"`
}

var ortMu sync.Mutex

func initORT(opts ORTOptions) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// Tensor names assumed when a manifest leaves them out; they match the
// skl2onnx defaults for classifiers exported without a zipmap.
const (
	defaultONNXInput       = "float_input"
	defaultONNXProbaOutput = "probabilities"
)

// onnxIO is the resolved tensor layout of a session.
type onnxIO struct {
	input   string
	outputs []string
	// labelIdx is -1 when labels come from argmax
	labelIdx int
	probaIdx int
}

func resolveONNXIO(spec ONNXSpec) onnxIO {
	layout := onnxIO{input: spec.Input, labelIdx: -1}
	if layout.input == "" {
		layout.input = defaultONNXInput
	}
	if spec.LabelOutput != "" {
		layout.labelIdx = len(layout.outputs)
		layout.outputs = append(layout.outputs, spec.LabelOutput)
	}
	proba := spec.ProbaOutput
	if proba == "" {
		proba = defaultONNXProbaOutput
	}
	layout.probaIdx = len(layout.outputs)
	layout.outputs = append(layout.outputs, proba)
	return layout
}

// reshapeProba turns a row-major [rows x nClasses] tensor into rows.
func reshapeProba(data []float32, rows, nClasses int) ([][]float64, error) {
	if len(data) != rows*nClasses {
		return nil, fmt.Errorf("probability output has %d values, want %d", len(data), rows*nClasses)
	}
	proba := make([][]float64, rows)
	for i := range proba {
		row := make([]float64, nClasses)
		for k := range row {
			row[k] = float64(data[i*nClasses+k])
		}
		proba[i] = row
	}
	return proba, nil
}

func decodeLabels(raw []int64, rows int) ([]Label, error) {
	if len(raw) != rows {
		return nil, fmt.Errorf("label output has %d values, want %d", len(raw), rows)
	}
	labels := make([]Label, len(raw))
	for i, v := range raw {
		labels[i] = Label(strconv.FormatInt(v, 10))
	}
	return labels, nil
}

func argmaxLabels(proba [][]float64, classes []Label) []Label {
	out := make([]Label, len(proba))
	for i, row := range proba {
		out[i] = classes[argmax(row)]
	}
	return out
}

type onnxArtifact struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	classes   []Label
	nFeatures int
	io        onnxIO
}

func newONNXArtifact(opts ORTOptions, m Manifest, model []byte) (*onnxArtifact, error) {
	layout := resolveONNXIO(*m.ONNX)
	if err := initORT(opts); err != nil {
		return nil, err
	}
	session, err := ort.NewDynamicAdvancedSessionWithONNXData(model, []string{layout.input}, layout.outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &onnxArtifact{
		session:   session,
		classes:   cloneLabels(m.Classes),
		nFeatures: m.NFeatures,
		io:        layout,
	}, nil
}

func (a *onnxArtifact) Classes() []Label { return cloneLabels(a.classes) }
func (a *onnxArtifact) NumFeatures() int { return a.nFeatures }

func (a *onnxArtifact) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	err := a.session.Destroy()
	a.session = nil
	return err
}

func (a *onnxArtifact) PredictProba(batch []FixedVector) ([][]float64, error) {
	_, proba, err := a.run(batch, false)
	return proba, err
}

func (a *onnxArtifact) Predict(batch []FixedVector) ([]Label, error) {
	labels, proba, err := a.run(batch, a.io.labelIdx >= 0)
	if err != nil {
		return nil, err
	}
	if labels != nil {
		return labels, nil
	}
	return argmaxLabels(proba, a.classes), nil
}

func (a *onnxArtifact) run(batch []FixedVector, wantLabels bool) ([]Label, [][]float64, error) {
	if err := checkBatch(batch, a.nFeatures); err != nil {
		return nil, nil, err
	}
	if len(batch) == 0 {
		return nil, [][]float64{}, nil
	}
	flat := make([]float32, len(batch)*a.nFeatures)
	for i, row := range batch {
		copy(flat[i*a.nFeatures:], row)
	}
	input, err := ort.NewTensor(ort.NewShape(int64(len(batch)), int64(a.nFeatures)), flat)
	if err != nil {
		return nil, nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, len(a.io.outputs))
	a.mu.Lock()
	if a.session == nil {
		a.mu.Unlock()
		return nil, nil, errors.New("onnx session is closed")
	}
	err = a.session.Run([]ort.Value{input}, outputs)
	a.mu.Unlock()
	defer func() {
		for _, v := range outputs {
			if v != nil {
				_ = v.Destroy()
			}
		}
	}()
	if err != nil {
		return nil, nil, fmt.Errorf("run onnx session: %w", err)
	}

	probaTensor, ok := outputs[a.io.probaIdx].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("probability output has type %T, want float32 tensor", outputs[a.io.probaIdx])
	}
	proba, err := reshapeProba(probaTensor.GetData(), len(batch), len(a.classes))
	if err != nil {
		return nil, nil, err
	}
	if !wantLabels {
		return nil, proba, nil
	}

	labelTensor, ok := outputs[a.io.labelIdx].(*ort.Tensor[int64])
	if !ok {
		return nil, nil, fmt.Errorf("label output has type %T, want int64 tensor", outputs[a.io.labelIdx])
	}
	labels, err := decodeLabels(labelTensor.GetData(), len(batch))
	if err != nil {
		return nil, nil, err
	}
	return labels, proba, nil
}
