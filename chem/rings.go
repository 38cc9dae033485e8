package chem

import (
	"math/bits"
	"sort"
)

// Rings returns a smallest set of smallest rings. Each ring lists its atoms in
// cycle order, so consecutive atoms (and the last/first pair) are bonded.
func (m *Molecule) Rings() [][]int {
	m.ringsOnce.Do(m.perceiveRings)
	return m.rings
}

// IsRingBond reports whether bond b belongs to at least one cycle.
func (m *Molecule) IsRingBond(b int) bool {
	m.ringsOnce.Do(m.perceiveRings)
	return m.ringBond[b]
}

// RingCount returns how many SSSR rings contain atom i.
func (m *Molecule) RingCount(i int) int {
	m.ringsOnce.Do(m.perceiveRings)
	return m.ringAtom[i]
}

// IsRingAtom reports whether atom i is in a ring.
func (m *Molecule) IsRingAtom(i int) bool {
	return m.RingCount(i) > 0
}

// RingSizes returns the sizes of the SSSR rings containing atom i.
func (m *Molecule) RingSizes(i int) []int {
	var out []int
	for _, r := range m.Rings() {
		for _, a := range r {
			if a == i {
				out = append(out, len(r))
				break
			}
		}
	}
	return out
}

type bondSet []uint64

func newBondSet(n int) bondSet { return make(bondSet, (n+63)/64) }

func (s bondSet) set(i int)      { s[i/64] |= 1 << (uint(i) % 64) }
func (s bondSet) has(i int) bool { return s[i/64]&(1<<(uint(i)%64)) != 0 }
func (s bondSet) clone() bondSet { return append(bondSet(nil), s...) }
func (s bondSet) empty() bool    { return s.count() == 0 }

func (s bondSet) xor(o bondSet) {
	for i := range s {
		s[i] ^= o[i]
	}
}

func (s bondSet) lowest() int {
	for i, w := range s {
		if w != 0 {
			return i*64 + bits.TrailingZeros64(w)
		}
	}
	return -1
}

func (s bondSet) count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s bondSet) key() string {
	buf := make([]byte, 0, len(s)*8)
	for _, w := range s {
		for k := 0; k < 8; k++ {
			buf = append(buf, byte(w>>(8*k)))
		}
	}
	return string(buf)
}

type ringCandidate struct {
	atoms []int
	bonds bondSet
}

func (m *Molecule) perceiveRings() {
	nAtoms, nBonds := len(m.Atoms), len(m.Bonds)
	m.ringBond = make([]bool, nBonds)
	m.ringAtom = make([]int, nAtoms)
	if nBonds == 0 {
		return
	}
	target := nBonds - nAtoms + len(m.Fragments())
	if target <= 0 {
		return
	}

	seen := make(map[string]bool)
	var candidates []ringCandidate
	for b, bond := range m.Bonds {
		path := m.shortestPathAvoiding(bond.A, bond.B, b)
		if path == nil {
			continue
		}
		m.ringBond[b] = true
		set := newBondSet(nBonds)
		set.set(b)
		for k := 0; k+1 < len(path); k++ {
			idx, _ := m.BondBetween(path[k], path[k+1])
			set.set(idx)
		}
		key := set.key()
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, ringCandidate{atoms: path, bonds: set})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].atoms) < len(candidates[j].atoms)
	})

	// Gaussian elimination over GF(2) keeps only independent cycles.
	var basis []bondSet
	var pivots []int
	for _, c := range candidates {
		if len(m.rings) == target {
			break
		}
		v := c.bonds.clone()
		for k, bv := range basis {
			if v.has(pivots[k]) {
				v.xor(bv)
			}
		}
		if v.empty() {
			continue
		}
		basis = append(basis, v)
		pivots = append(pivots, v.lowest())
		m.rings = append(m.rings, c.atoms)
	}
	for _, r := range m.rings {
		for _, a := range r {
			m.ringAtom[a]++
		}
	}
}

// shortestPathAvoiding finds the shortest path from a to b that does not use
// bond skip. It returns the atoms from a to b inclusive, or nil.
func (m *Molecule) shortestPathAvoiding(a, b, skip int) []int {
	prev := make([]int, len(m.Atoms))
	for i := range prev {
		prev[i] = -2
	}
	prev[a] = -1
	queue := []int{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == b {
			break
		}
		nbs := append([]Neighbor(nil), m.adj[cur]...)
		sort.Slice(nbs, func(i, j int) bool { return nbs[i].Atom < nbs[j].Atom })
		for _, nb := range nbs {
			if nb.Bond == skip || prev[nb.Atom] != -2 {
				continue
			}
			prev[nb.Atom] = cur
			queue = append(queue, nb.Atom)
		}
	}
	if prev[b] == -2 {
		return nil
	}
	var path []int
	for cur := b; cur != -1; cur = prev[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
