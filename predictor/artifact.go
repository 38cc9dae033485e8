package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Artifact formats understood by the loader.
const (
	FormatForest = "forest"
	FormatONNX   = "onnx"
)

// ModelArtifact is a fitted classifier over fixed-length feature vectors.
// Implementations are read-only after load and safe for concurrent use.
type ModelArtifact interface {
	Predict(batch []FixedVector) ([]Label, error)
	PredictProba(batch []FixedVector) ([][]float64, error)
	Classes() []Label
	NumFeatures() int
	Close() error
}

// ArtifactSource hands out artifacts for a (kind, model) pair. The release
// func must be called once the caller is done with the artifact.
type ArtifactSource interface {
	Acquire(ctx context.Context, kind FingerprintKind, model string) (ModelArtifact, func(), error)
}

// Manifest describes a stored model artifact.
type Manifest struct {
	Format      string     `json:"format"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Model       string     `json:"model,omitempty"`
	NFeatures   int        `json:"n_features"`
	Classes     []Label    `json:"classes"`
	Trees       []TreeSpec `json:"trees,omitempty"`
	ONNX        *ONNXSpec  `json:"onnx,omitempty"`
}

// ArtifactKey returns the storage key of the manifest for (kind, model).
func ArtifactKey(kind FingerprintKind, model string) string {
	return kind.Key() + "_" + model + ".json"
}

// Loader reads manifests from a store and builds artifacts. Each Acquire loads
// a fresh artifact that is closed on release.
type Loader struct {
	store  ArtifactStore
	ort    ORTOptions
	logger *zap.Logger
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger used for load events.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithORT configures the onnxruntime shared library for onnx artifacts.
func WithORT(opts ORTOptions) LoaderOption {
	return func(l *Loader) { l.ort = opts }
}

// NewLoader constructs a loader over store.
func NewLoader(store ArtifactStore, opts ...LoaderOption) *Loader {
	l := &Loader{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying artifact store.
func (l *Loader) Store() ArtifactStore {
	return l.store
}

// Acquire implements ArtifactSource.
func (l *Loader) Acquire(ctx context.Context, kind FingerprintKind, model string) (ModelArtifact, func(), error) {
	art, err := l.Load(ctx, kind, model)
	if err != nil {
		return nil, nil, err
	}
	return art, func() { _ = art.Close() }, nil
}

// Load reads and decodes the artifact for (kind, model).
func (l *Loader) Load(ctx context.Context, kind FingerprintKind, model string) (ModelArtifact, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFingerprint, kind)
	}
	model = strings.TrimSpace(model)
	if model == "" || strings.ContainsAny(model, `/\`) || strings.Contains(model, "..") {
		return nil, fmt.Errorf("%w: invalid model name %q", ErrArtifactNotFound, model)
	}
	key := ArtifactKey(kind, model)
	manifest, err := l.readManifest(ctx, key)
	if err != nil {
		return nil, err
	}
	var art ModelArtifact
	switch manifest.Format {
	case FormatForest:
		art, err = newForestArtifact(manifest)
	case FormatONNX:
		art, err = l.loadONNX(ctx, key, manifest)
	default:
		err = fmt.Errorf("unknown format %q", manifest.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactNotFound, key, err)
	}
	l.logger.Info("model artifact loaded",
		zap.String("key", key),
		zap.String("format", manifest.Format),
		zap.Int("classes", len(manifest.Classes)),
		zap.Int("features", manifest.NFeatures))
	return art, nil
}

func (l *Loader) readManifest(ctx context.Context, key string) (Manifest, error) {
	var manifest Manifest
	rc, err := l.store.Open(ctx, key)
	if err != nil {
		return manifest, fmt.Errorf("open artifact %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return manifest, fmt.Errorf("%w: read %s: %w", ErrArtifactNotFound, key, err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("%w: decode %s: %w", ErrArtifactNotFound, key, err)
	}
	if len(manifest.Classes) == 0 {
		return manifest, fmt.Errorf("%w: %s has no classes", ErrArtifactNotFound, key)
	}
	if manifest.NFeatures <= 0 {
		return manifest, fmt.Errorf("%w: %s has no feature width", ErrArtifactNotFound, key)
	}
	return manifest, nil
}

func (l *Loader) loadONNX(ctx context.Context, manifestKey string, manifest Manifest) (ModelArtifact, error) {
	if manifest.ONNX == nil || manifest.ONNX.File == "" {
		return nil, fmt.Errorf("onnx manifest without model file")
	}
	key := siblingKey(manifestKey, manifest.ONNX.File)
	rc, err := l.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return newONNXArtifact(l.ort, manifest, data)
}

// siblingKey resolves name relative to the directory part of key.
func siblingKey(key, name string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i+1] + name
	}
	return name
}

func checkBatch(batch []FixedVector, width int) error {
	for i, row := range batch {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), width)
		}
	}
	return nil
}

func argmax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

func cloneLabels(in []Label) []Label {
	out := make([]Label, len(in))
	copy(out, in)
	return out
}
