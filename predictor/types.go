package predictor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FingerprintKind selects one of the supported fingerprint representations.
type FingerprintKind int

const (
	// ECFP4 is a folded Morgan circular fingerprint.
	ECFP4 FingerprintKind = iota
	// RDKitFP is a folded linear path fingerprint.
	RDKitFP
	// MACCS is the 167 bit structural key set.
	MACCS
	// MHFP6 is a MinHash over circular substructure shingles.
	MHFP6
	// ErG is the extended reduced graph pharmacophore descriptor.
	ErG

	kindCount
)

var kindNames = [kindCount]string{
	ECFP4:   "ECFP4",
	RDKitFP: "RDKitFP",
	MACCS:   "MACCS",
	MHFP6:   "MHFP6",
	ErG:     "ErG",
}

// storage keys used in artifact names
var kindKeys = [kindCount]string{
	ECFP4:   "ecfp4",
	RDKitFP: "rdkit",
	MACCS:   "maccs",
	MHFP6:   "mhfp6",
	ErG:     "erg",
}

// FingerprintKinds lists every supported kind in declaration order.
func FingerprintKinds() []FingerprintKind {
	out := make([]FingerprintKind, kindCount)
	for i := range out {
		out[i] = FingerprintKind(i)
	}
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k FingerprintKind) Valid() bool {
	return k >= 0 && k < kindCount
}

func (k FingerprintKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("FingerprintKind(%d)", int(k))
	}
	return kindNames[k]
}

// Key returns the lowercase name used in artifact storage keys.
func (k FingerprintKind) Key() string {
	if !k.Valid() {
		return ""
	}
	return kindKeys[k]
}

// ParseFingerprintKind accepts a display name or storage key, case-insensitively.
// "rdkit" and "RDKIT" map to RDKitFP.
func ParseFingerprintKind(s string) (FingerprintKind, error) {
	name := strings.TrimSpace(s)
	for k := FingerprintKind(0); k < kindCount; k++ {
		if strings.EqualFold(name, kindNames[k]) || strings.EqualFold(name, kindKeys[k]) {
			return k, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownFingerprint, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k FingerprintKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFingerprint, int(k))
	}
	return []byte(kindKeys[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FingerprintKind) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprintKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// FixedVector is a fingerprint laid out as model input features.
type FixedVector []float32

// Label is a class label as reported by a model artifact.
type Label string

// UnmarshalJSON accepts both string and numeric class labels.
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode label %s: %w", data, err)
	}
	*l = Label(n.String())
	return nil
}

// StructureRecord tracks one input through normalization and featurization.
// Canonical and Fingerprint stay empty when the corresponding stage failed.
type StructureRecord struct {
	Input       string      `json:"input"`
	Canonical   string      `json:"canonical,omitempty"`
	Fingerprint FixedVector `json:"-"`
}

// PredictionResult pairs a structure with its predicted class and the
// probability the model assigned to that class.
type PredictionResult struct {
	Structure   StructureRecord `json:"structure"`
	Class       Label           `json:"class"`
	Probability float64         `json:"probability"`
}
