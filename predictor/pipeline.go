package predictor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Pipeline runs normalization, featurization and model inference over a batch
// of raw SMILES strings.
type Pipeline struct {
	source ArtifactSource
	gen    *Generator
	logger *zap.Logger
}

// NewPipeline constructs a pipeline reading artifacts from source.
func NewPipeline(source ArtifactSource, gen *Generator, logger *zap.Logger) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("artifact source is required")
	}
	if gen == nil {
		return nil, errors.New("fingerprint generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{source: source, gen: gen, logger: logger}, nil
}

// Generator returns the fingerprint generator used by the pipeline.
func (p *Pipeline) Generator() *Generator {
	return p.gen
}

// Featurize normalizes and fingerprints each input. errs[i] is non-nil when
// input i was dropped; its record then carries whatever stages succeeded.
func (p *Pipeline) Featurize(ctx context.Context, inputs []string, kind FingerprintKind) ([]StructureRecord, []error, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFingerprint, kind)
	}
	records := make([]StructureRecord, len(inputs))
	errs := make([]error, len(inputs))
	for i, raw := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		records[i].Input = raw
		canonical, err := Normalize(raw)
		if err != nil {
			errs[i] = err
			continue
		}
		records[i].Canonical = canonical
		vec, err := p.gen.Generate(canonical, kind)
		if err != nil {
			errs[i] = err
			continue
		}
		records[i].Fingerprint = vec
	}
	return records, errs, nil
}

// Run predicts a class for every input that survives normalization and
// featurization. Results keep input order; dropped counts the inputs that
// failed. A missing artifact aborts the whole call with no partial output.
func (p *Pipeline) Run(ctx context.Context, inputs []string, kind FingerprintKind, model string) ([]PredictionResult, int, error) {
	if len(inputs) == 0 {
		return nil, 0, nil
	}
	if !kind.Valid() {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownFingerprint, kind)
	}
	art, release, err := p.source.Acquire(ctx, kind, model)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	records, errs, err := p.Featurize(ctx, inputs, kind)
	if err != nil {
		return nil, 0, err
	}
	survivors := make([]StructureRecord, 0, len(records))
	batch := make([]FixedVector, 0, len(records))
	dropped := 0
	for i, rec := range records {
		if errs[i] != nil {
			if !IsRecordError(errs[i]) {
				return nil, 0, fmt.Errorf("featurize input %d: %w", i, errs[i])
			}
			dropped++
			p.logger.Debug("structure dropped",
				zap.Int("index", i),
				zap.String("input", rec.Input),
				zap.Error(errs[i]))
			continue
		}
		survivors = append(survivors, rec)
		batch = append(batch, rec.Fingerprint)
	}
	if len(batch) == 0 {
		return []PredictionResult{}, dropped, nil
	}

	labels, err := art.Predict(batch)
	if err != nil {
		return nil, 0, fmt.Errorf("predict: %w", err)
	}
	proba, err := art.PredictProba(batch)
	if err != nil {
		return nil, 0, fmt.Errorf("predict proba: %w", err)
	}
	if len(labels) != len(batch) || len(proba) != len(batch) {
		return nil, 0, fmt.Errorf("model returned %d labels and %d probability rows for %d inputs", len(labels), len(proba), len(batch))
	}
	classIndex := make(map[Label]int)
	for i, c := range art.Classes() {
		if _, ok := classIndex[c]; !ok {
			classIndex[c] = i
		}
	}

	results := make([]PredictionResult, len(batch))
	for i, label := range labels {
		idx, ok := classIndex[label]
		if !ok || idx >= len(proba[i]) {
			return nil, 0, fmt.Errorf("predicted class %q is not among the model classes", label)
		}
		results[i] = PredictionResult{
			Structure:   survivors[i],
			Class:       label,
			Probability: proba[i][idx],
		}
	}
	p.logger.Debug("batch predicted",
		zap.String("fingerprint", kind.String()),
		zap.String("model", model),
		zap.Int("inputs", len(inputs)),
		zap.Int("results", len(results)),
		zap.Int("dropped", dropped))
	return results, dropped, nil
}
