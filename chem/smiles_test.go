package chem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSMILESCounts(t *testing.T) {
	cases := []struct {
		smiles string
		atoms  int
		bonds  int
	}{
		{"C", 1, 0},
		{"CCO", 3, 2},
		{"c1ccccc1", 6, 6},
		{"C1=CC=CC=C1", 6, 6},
		{"CC(=O)O", 4, 3},
		{"[NH4+]", 1, 0},
		{"C%10CC%10", 3, 3},
		{"ClCBr", 3, 2},
		{"C.C", 2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.smiles, func(t *testing.T) {
			m, err := ParseSMILES(tc.smiles)
			require.NoError(t, err)
			assert.Equal(t, tc.atoms, m.NumAtoms())
			assert.Equal(t, tc.bonds, m.NumBonds())
		})
	}
}

func TestParseSMILESSyntaxErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"   ",
		"not_a_smiles",
		"C1CC",
		"C(C",
		"C)",
		"[Xx]",
		"C=",
		"[CH4",
		"(C)",
		"C%1",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseSMILES(s)
			require.Error(t, err)
			var syn *SyntaxError
			assert.True(t, errors.As(err, &syn), "want *SyntaxError, got %T", err)
		})
	}
}

func TestImplicitHydrogens(t *testing.T) {
	m, err := ParseSMILES("CC(=O)N")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Atoms[0].HCount)
	assert.Equal(t, 0, m.Atoms[1].HCount)
	assert.Equal(t, 0, m.Atoms[2].HCount)
	assert.Equal(t, 2, m.Atoms[3].HCount)
}

func TestBracketAtom(t *testing.T) {
	m, err := ParseSMILES("[13CH3-]")
	require.NoError(t, err)
	a := m.Atoms[0]
	assert.Equal(t, 6, a.AtomicNum)
	assert.Equal(t, 13, a.Isotope)
	assert.Equal(t, 3, a.HCount)
	assert.Equal(t, -1, a.Charge)
	assert.True(t, a.Bracket)

	m, err = ParseSMILES("[Fe++]")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Atoms[0].Charge)

	m, err = ParseSMILES("[C@TH1H](F)(Cl)Br")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Atoms[0].HCount)
}

func TestAromaticityPerception(t *testing.T) {
	cases := []struct {
		smiles   string
		aromatic bool
	}{
		{"C1=CC=CC=C1", true},
		{"C1=CC=NC=C1", true},
		{"C1=CNC=C1", true},
		{"C1=COC=C1", true},
		{"C1=CCC=C1", false},
		{"C1CCCCC1", false},
		{"O=C1C=CC=CN1", true},
	}
	for _, tc := range cases {
		t.Run(tc.smiles, func(t *testing.T) {
			m, err := ParseSMILES(tc.smiles)
			require.NoError(t, err)
			assert.Equal(t, tc.aromatic, m.Atoms[1].Aromatic)
		})
	}
}

func TestRings(t *testing.T) {
	m, err := ParseSMILES("c1ccc2ccccc2c1")
	require.NoError(t, err)
	rings := m.Rings()
	require.Len(t, rings, 2)
	assert.Len(t, rings[0], 6)
	assert.Len(t, rings[1], 6)

	m, err = ParseSMILES("CCCC")
	require.NoError(t, err)
	assert.Empty(t, m.Rings())
	assert.False(t, m.IsRingAtom(0))
}

func TestValidate(t *testing.T) {
	m, err := ParseSMILES("CCO")
	require.NoError(t, err)
	assert.NoError(t, m.Validate())

	m, err = ParseSMILES("CC.O")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Validate(), ErrDisconnected)

	m, err = ParseSMILES("C(C)(C)(C)(C)C")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Validate(), ErrValence)

	m, err = ParseSMILES("c1cc[nH]c1")
	require.NoError(t, err)
	assert.NoError(t, m.Validate())

	m, err = ParseSMILES("C[N+](C)(C)C")
	require.NoError(t, err)
	assert.NoError(t, m.Validate())
}

func TestDistanceMatrix(t *testing.T) {
	m, err := ParseSMILES("CCCO")
	require.NoError(t, err)
	d := m.DistanceMatrix()
	assert.Equal(t, 3, d[0][3])
	assert.Equal(t, 1, d[2][3])
	assert.Equal(t, 0, d[1][1])
}
