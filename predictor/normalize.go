package predictor

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"amrkg/chem"
)

// NormalizeText performs Unicode normalization and trims whitespace.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.TrimSpace(normed)
	// Collapse internal control characters except newlines.
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	return normed
}

// Normalize parses raw SMILES and returns its canonical form. The result is a
// fixed point: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	text := NormalizeText(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidStructure)
	}
	m, err := chem.ParseSMILES(text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidStructure, err)
	}
	return chem.CanonicalSMILES(m), nil
}

// NormalizeAll canonicalizes every input, collecting per-input errors.
func NormalizeAll(inputs []string) ([]string, []error) {
	out := make([]string, len(inputs))
	errs := make([]error, len(inputs))
	for i, raw := range inputs {
		out[i], errs[i] = Normalize(raw)
	}
	return out, errs
}

// Build turns a canonical SMILES into a molecule ready for featurization.
func Build(canonical string) (*chem.Molecule, error) {
	m, err := chem.ParseSMILES(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructureBuildFailed, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructureBuildFailed, err)
	}
	return m, nil
}

// IsRecordError reports whether err is a per-record failure that drops the
// input rather than aborting the batch.
func IsRecordError(err error) bool {
	return errors.Is(err, ErrInvalidStructure) || errors.Is(err, ErrStructureBuildFailed)
}
