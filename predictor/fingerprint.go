package predictor

import (
	"fmt"
	"sync"

	"amrkg/chem"
)

type generatorFunc func(g *Generator, m *chem.Molecule) FixedVector

var generators = [kindCount]generatorFunc{
	ECFP4:   (*Generator).ecfp,
	RDKitFP: (*Generator).rdkit,
	MACCS:   (*Generator).maccs,
	MHFP6:   (*Generator).mhfp,
	ErG:     (*Generator).erg,
}

// Generator turns canonical SMILES into fixed-length feature vectors. Its
// parameters are fixed at construction so training and inference share them.
type Generator struct {
	params   FingerprintConfig
	paramsID string
	cache    *VectorCache

	mhfpOnce sync.Once
	mhfpEnc  *chem.MHFPEncoder
}

// NewGenerator builds a generator. Zero fields of params take the defaults,
// so FingerprintConfig{} and DefaultConfig().Fingerprints are equivalent. A nil
// cache disables vector caching.
func NewGenerator(params FingerprintConfig, cache *VectorCache) *Generator {
	params = params.resolved()
	return &Generator{
		params:   params,
		paramsID: paramsID(params),
		cache:    cache,
	}
}

// paramsID identifies a parameter set in vector cache keys.
func paramsID(p FingerprintConfig) string {
	return fmt.Sprintf("ecfp=%d/%d rdkit=%d-%d/%d/%d mhfp=%d/%d/%d/%t erg=%g",
		p.ECFPRadius, p.ECFPBits,
		p.RDKitMinPath, p.RDKitMaxPath, p.RDKitBits, p.RDKitBitsPerPath,
		p.MHFPPermutations, p.Seed(), p.MHFPRadius, p.Rings(),
		p.Fuzz())
}

// Length returns the vector length produced for kind, or 0 for an unknown kind.
func (g *Generator) Length(kind FingerprintKind) int {
	switch kind {
	case ECFP4:
		return g.params.ECFPBits
	case RDKitFP:
		return g.params.RDKitBits
	case MACCS:
		return chem.MACCSLength
	case MHFP6:
		return g.params.MHFPPermutations
	case ErG:
		return chem.ErGLength
	}
	return 0
}

// Generate builds the molecule for a canonical SMILES and computes the
// fingerprint of the given kind.
func (g *Generator) Generate(canonical string, kind FingerprintKind) (FixedVector, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFingerprint, kind)
	}
	if vec, ok := g.cache.Get(g.paramsID, kind, canonical); ok {
		return vec, nil
	}
	m, err := Build(canonical)
	if err != nil {
		return nil, err
	}
	vec := generators[kind](g, m)
	g.cache.Put(g.paramsID, kind, canonical, vec)
	return vec, nil
}

func (g *Generator) ecfp(m *chem.Molecule) FixedVector {
	return bitsToVector(chem.MorganFingerprint(m, g.params.ECFPRadius, g.params.ECFPBits))
}

func (g *Generator) rdkit(m *chem.Molecule) FixedVector {
	p := g.params
	return bitsToVector(chem.PathFingerprint(m, p.RDKitMinPath, p.RDKitMaxPath, p.RDKitBits, p.RDKitBitsPerPath))
}

func (g *Generator) maccs(m *chem.Molecule) FixedVector {
	return bitsToVector(chem.MACCSKeys(m))
}

func (g *Generator) mhfp(m *chem.Molecule) FixedVector {
	g.mhfpOnce.Do(func() {
		g.mhfpEnc = chem.NewMHFPEncoder(g.params.MHFPPermutations, g.params.Seed())
	})
	hashes := g.mhfpEnc.Encode(m, g.params.MHFPRadius, g.params.Rings())
	out := make(FixedVector, len(hashes))
	for i, h := range hashes {
		out[i] = float32(h)
	}
	return out
}

func (g *Generator) erg(m *chem.Molecule) FixedVector {
	return FixedVector(chem.ErGFingerprint(m, g.params.Fuzz()))
}

func bitsToVector(bits chem.Bits) FixedVector {
	out := make(FixedVector, len(bits))
	for i, b := range bits {
		out[i] = float32(b)
	}
	return out
}
