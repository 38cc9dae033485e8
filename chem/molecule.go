package chem

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// BondOrder is the multiplicity of a bond. Aromatic bonds have their own order.
type BondOrder uint8

const (
	BondSingle BondOrder = iota + 1
	BondDouble
	BondTriple
	BondQuadruple
	BondAromatic
)

// valence returns the contribution of the bond to an atom's explicit valence.
// Aromatic bonds count as one; the extra pi electron is added per atom.
func (o BondOrder) valence() int {
	switch o {
	case BondDouble:
		return 2
	case BondTriple:
		return 3
	case BondQuadruple:
		return 4
	default:
		return 1
	}
}

// Atom is a heavy atom with its attached hydrogens folded into HCount.
type Atom struct {
	AtomicNum int
	Aromatic  bool
	Charge    int
	Isotope   int
	HCount    int
	// Bracket is true when the atom was written in square brackets and its
	// hydrogen count is therefore explicit.
	Bracket bool
}

// Symbol returns the element symbol of the atom.
func (a Atom) Symbol() string { return Symbol(a.AtomicNum) }

// Bond connects atoms A and B.
type Bond struct {
	A, B  int
	Order BondOrder
}

// Other returns the atom on the other end of the bond.
func (b Bond) Other(atom int) int {
	if b.A == atom {
		return b.B
	}
	return b.A
}

// Neighbor is an adjacency entry.
type Neighbor struct {
	Atom int
	Bond int
}

// Molecule is a hydrogen-suppressed molecular graph. A Molecule must not be
// mutated after it is returned from ParseSMILES or Subgraph; derived data
// (rings, fragments) is computed lazily and memoized.
type Molecule struct {
	Atoms []Atom
	Bonds []Bond

	adj [][]Neighbor

	ringsOnce sync.Once
	rings     [][]int
	ringBond  []bool
	ringAtom  []int
}

// ErrValence is returned by Validate when an atom exceeds its allowed valence.
var ErrValence = errors.New("valence exceeded")

// ErrDisconnected is returned by Validate for multi-fragment structures.
var ErrDisconnected = errors.New("disconnected structure")

// ErrEmpty is returned by Validate for a structure without atoms.
var ErrEmpty = errors.New("empty structure")

func newMolecule() *Molecule {
	return &Molecule{}
}

func (m *Molecule) addAtom(a Atom) int {
	m.Atoms = append(m.Atoms, a)
	m.adj = append(m.adj, nil)
	return len(m.Atoms) - 1
}

func (m *Molecule) addBond(a, b int, order BondOrder) int {
	m.Bonds = append(m.Bonds, Bond{A: a, B: b, Order: order})
	idx := len(m.Bonds) - 1
	m.adj[a] = append(m.adj[a], Neighbor{Atom: b, Bond: idx})
	m.adj[b] = append(m.adj[b], Neighbor{Atom: a, Bond: idx})
	return idx
}

// NumAtoms returns the number of heavy atoms.
func (m *Molecule) NumAtoms() int { return len(m.Atoms) }

// NumBonds returns the number of bonds between heavy atoms.
func (m *Molecule) NumBonds() int { return len(m.Bonds) }

// Neighbors returns the adjacency list of atom i. The slice must not be modified.
func (m *Molecule) Neighbors(i int) []Neighbor { return m.adj[i] }

// Degree returns the number of heavy-atom neighbors of atom i.
func (m *Molecule) Degree(i int) int { return len(m.adj[i]) }

// BondBetween returns the index of the bond joining a and b.
func (m *Molecule) BondBetween(a, b int) (int, bool) {
	for _, nb := range m.adj[a] {
		if nb.Atom == b {
			return nb.Bond, true
		}
	}
	return -1, false
}

// ExplicitValence sums bond contributions at atom i, counting the pi electron
// of aromatic carbon-like atoms once.
func (m *Molecule) ExplicitValence(i int) int {
	return m.explicitValence(i, m.Atoms[i].HCount)
}

func (m *Molecule) explicitValence(i, hCount int) int {
	v := 0
	exoMultiple := false
	for _, nb := range m.adj[i] {
		o := m.Bonds[nb.Bond].Order
		v += o.valence()
		if o == BondDouble || o == BondTriple {
			exoMultiple = true
		}
	}
	a := m.Atoms[i]
	if a.Aromatic && !exoMultiple {
		switch a.AtomicNum {
		case numB, numC:
			if a.Charge == 0 {
				v++
			}
		case numN, numP:
			// pyridine-like: two ring bonds and no hydrogen
			if len(m.adj[i]) == 2 && hCount == 0 && a.Charge == 0 {
				v++
			}
		}
	}
	return v
}

// TotalValence is the explicit valence plus attached hydrogens.
func (m *Molecule) TotalValence(i int) int {
	return m.ExplicitValence(i) + m.Atoms[i].HCount
}

// implicitHydrogens computes the hydrogen count a SMILES reader infers for an
// organic-subset atom written without brackets.
func (m *Molecule) implicitHydrogens(i int) int {
	a := m.Atoms[i]
	valences, ok := organicValences[a.AtomicNum]
	if !ok || a.Charge != 0 || a.Isotope != 0 {
		return 0
	}
	v := m.explicitValence(i, 0)
	for _, target := range valences {
		if target >= v {
			return target - v
		}
	}
	return 0
}

// Fragments returns the connected components as sorted atom index lists.
func (m *Molecule) Fragments() [][]int {
	seen := make([]bool, len(m.Atoms))
	var out [][]int
	for start := range m.Atoms {
		if seen[start] {
			continue
		}
		var frag []int
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			frag = append(frag, cur)
			for _, nb := range m.adj[cur] {
				if !seen[nb.Atom] {
					seen[nb.Atom] = true
					stack = append(stack, nb.Atom)
				}
			}
		}
		sort.Ints(frag)
		out = append(out, frag)
	}
	return out
}

// Validate checks that the structure can be used for fingerprinting: at least
// one atom, a single fragment and no valence violations.
func (m *Molecule) Validate() error {
	if len(m.Atoms) == 0 {
		return ErrEmpty
	}
	if frags := m.Fragments(); len(frags) > 1 {
		return fmt.Errorf("%w: %d fragments", ErrDisconnected, len(frags))
	}
	for i, a := range m.Atoms {
		limit, ok := maxValence(a.AtomicNum, a.Charge)
		if !ok {
			continue
		}
		if v := m.TotalValence(i); v > limit {
			return fmt.Errorf("%w: %s atom %d has valence %d (max %d)", ErrValence, a.Symbol(), i, v, limit)
		}
	}
	return nil
}

// DistanceMatrix returns all-pairs topological distances; -1 marks
// unreachable pairs.
func (m *Molecule) DistanceMatrix() [][]int {
	n := len(m.Atoms)
	dist := make([][]int, n)
	for s := 0; s < n; s++ {
		row := make([]int, n)
		for j := range row {
			row[j] = -1
		}
		row[s] = 0
		queue := []int{s}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range m.adj[cur] {
				if row[nb.Atom] < 0 {
					row[nb.Atom] = row[cur] + 1
					queue = append(queue, nb.Atom)
				}
			}
		}
		dist[s] = row
	}
	return dist
}

// SubgraphFromBonds builds a new molecule containing the given bonds and
// their end atoms. Atom properties, including hydrogen counts, are copied
// from the parent. The returned slice maps new atom indices to parent ones.
func (m *Molecule) SubgraphFromBonds(bonds []int) (*Molecule, []int) {
	sorted := append([]int(nil), bonds...)
	sort.Ints(sorted)
	index := make(map[int]int)
	sub := newMolecule()
	var parent []int
	mapAtom := func(a int) int {
		if idx, ok := index[a]; ok {
			return idx
		}
		idx := sub.addAtom(m.Atoms[a])
		index[a] = idx
		parent = append(parent, a)
		return idx
	}
	for _, b := range sorted {
		bond := m.Bonds[b]
		a := mapAtom(bond.A)
		c := mapAtom(bond.B)
		sub.addBond(a, c, bond.Order)
	}
	return sub, parent
}
