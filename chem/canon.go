package chem

import (
	"cmp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// CanonicalRanks assigns every atom a distinct rank that does not depend on
// input atom order for non-equivalent atoms. Symmetry-equivalent atoms are
// split by lowest index, which yields the same string for any of them.
func (m *Molecule) CanonicalRanks() []int {
	n := len(m.Atoms)
	if n == 0 {
		return nil
	}
	inv := make([][]int, n)
	for i := range inv {
		inv[i] = m.atomInvariant(i)
	}
	ranks := denseRanks(n, func(a, b int) int { return slices.Compare(inv[a], inv[b]) })
	ranks = m.refineRanks(ranks)
	for classCount(ranks) < n {
		counts := make([]int, n)
		for _, r := range ranks {
			counts[r]++
		}
		target := slices.IndexFunc(counts, func(c int) bool { return c > 1 })
		chosen := slices.Index(ranks, target)
		prev := ranks
		ranks = denseRanks(n, func(a, b int) int {
			if c := cmp.Compare(prev[a], prev[b]); c != 0 {
				return c
			}
			return cmp.Compare(boolInt(a != chosen), boolInt(b != chosen))
		})
		ranks = m.refineRanks(ranks)
	}
	return ranks
}

func (m *Molecule) atomInvariant(i int) []int {
	a := m.Atoms[i]
	return []int{
		len(m.adj[i]),
		a.AtomicNum,
		a.Isotope,
		a.Charge,
		a.HCount,
		boolInt(a.Aromatic),
		m.RingCount(i),
		m.ExplicitValence(i),
	}
}

// refineRanks splits rank classes by the sorted ranks of neighbours until the
// number of classes stops growing.
func (m *Molecule) refineRanks(ranks []int) []int {
	n := len(ranks)
	classes := classCount(ranks)
	sig := make([][]int, n)
	for {
		for i := 0; i < n; i++ {
			s := sig[i][:0]
			for _, nb := range m.adj[i] {
				s = append(s, ranks[nb.Atom]*8+int(m.Bonds[nb.Bond].Order))
			}
			slices.Sort(s)
			sig[i] = s
		}
		next := denseRanks(n, func(a, b int) int {
			if c := cmp.Compare(ranks[a], ranks[b]); c != 0 {
				return c
			}
			return slices.Compare(sig[a], sig[b])
		})
		ranks = next
		nc := classCount(ranks)
		if nc == classes {
			return ranks
		}
		classes = nc
	}
}

func denseRanks(n int, compare func(a, b int) int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, compare)
	ranks := make([]int, n)
	r := 0
	for k, idx := range order {
		if k > 0 && compare(order[k-1], idx) != 0 {
			r++
		}
		ranks[idx] = r
	}
	return ranks
}

func classCount(ranks []int) int {
	if len(ranks) == 0 {
		return 0
	}
	return slices.Max(ranks) + 1
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CanonicalSMILES writes the molecule as a canonical SMILES string. Aromatic
// atoms are written lowercase, hydrogens are implicit wherever a reader would
// infer the same count, and fragments are sorted and joined with '.'.
func CanonicalSMILES(m *Molecule) string {
	return writeSMILES(m, -1, false)
}

// writeSMILES writes the fragment containing root starting from root. With
// explicitBonds every bond symbol is written, including single and aromatic.
func writeSMILES(m *Molecule, root int, explicitBonds bool) string {
	if m == nil || len(m.Atoms) == 0 {
		return ""
	}
	w := &smilesWriter{
		m:         m,
		ranks:     m.CanonicalRanks(),
		visited:   make([]bool, len(m.Atoms)),
		emitted:   make([]bool, len(m.Atoms)),
		children:  make([][]Neighbor, len(m.Atoms)),
		closure:   make(map[int]bool),
		ringDigit: make(map[int]int),
		explicit:  explicitBonds,
	}
	var parts []string
	for _, frag := range m.Fragments() {
		start := frag[0]
		for _, a := range frag {
			if w.ranks[a] < w.ranks[start] {
				start = a
			}
		}
		if root >= 0 && slices.Contains(frag, root) {
			start = root
		}
		w.spanningTree(start, -1)
		w.sb.Reset()
		w.emit(start, -1)
		parts = append(parts, w.sb.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ".")
}

type smilesWriter struct {
	m         *Molecule
	ranks     []int
	visited   []bool
	emitted   []bool
	children  [][]Neighbor
	closure   map[int]bool
	ringDigit map[int]int
	digitUsed [100]bool
	explicit  bool
	sb        strings.Builder
}

func (w *smilesWriter) sortedNeighbors(a int) []Neighbor {
	nbs := append([]Neighbor(nil), w.m.adj[a]...)
	sort.Slice(nbs, func(i, j int) bool { return w.ranks[nbs[i].Atom] < w.ranks[nbs[j].Atom] })
	return nbs
}

// spanningTree records DFS tree children; every non-tree bond is a ring closure.
func (w *smilesWriter) spanningTree(a, from int) {
	w.visited[a] = true
	for _, nb := range w.sortedNeighbors(a) {
		if nb.Bond == from {
			continue
		}
		if w.visited[nb.Atom] {
			w.closure[nb.Bond] = true
			continue
		}
		w.children[a] = append(w.children[a], nb)
		w.spanningTree(nb.Atom, nb.Bond)
	}
}

func (w *smilesWriter) emit(a, from int) {
	if from >= 0 {
		w.sb.WriteString(w.bondSymbol(from))
	}
	w.sb.WriteString(w.atomToken(a))
	w.emitted[a] = true

	var closing []int
	for _, nb := range w.sortedNeighbors(a) {
		if !w.closure[nb.Bond] {
			continue
		}
		if d, ok := w.ringDigit[nb.Bond]; ok {
			w.sb.WriteString(ringLabel(d))
			closing = append(closing, d)
			continue
		}
		if w.emitted[nb.Atom] {
			continue
		}
		d := w.freeDigit()
		w.ringDigit[nb.Bond] = d
		w.digitUsed[d] = true
		w.sb.WriteString(w.bondSymbol(nb.Bond))
		w.sb.WriteString(ringLabel(d))
	}
	for _, d := range closing {
		w.digitUsed[d] = false
	}

	kids := w.children[a]
	for k, nb := range kids {
		if k < len(kids)-1 {
			w.sb.WriteByte('(')
			w.emit(nb.Atom, nb.Bond)
			w.sb.WriteByte(')')
			continue
		}
		w.emit(nb.Atom, nb.Bond)
	}
}

func (w *smilesWriter) freeDigit() int {
	for d := 1; d < len(w.digitUsed); d++ {
		if !w.digitUsed[d] {
			return d
		}
	}
	return len(w.digitUsed) - 1
}

func ringLabel(d int) string {
	if d < 10 {
		return strconv.Itoa(d)
	}
	return "%" + strconv.Itoa(d)
}

func (w *smilesWriter) bondSymbol(b int) string {
	bond := w.m.Bonds[b]
	bothAromatic := w.m.Atoms[bond.A].Aromatic && w.m.Atoms[bond.B].Aromatic
	switch bond.Order {
	case BondDouble:
		return "="
	case BondTriple:
		return "#"
	case BondQuadruple:
		return "$"
	case BondAromatic:
		if bothAromatic && !w.explicit {
			return ""
		}
		return ":"
	default:
		if bothAromatic || w.explicit {
			return "-"
		}
		return ""
	}
}

func (w *smilesWriter) atomToken(i int) string {
	a := w.m.Atoms[i]
	sym := Symbol(a.AtomicNum)
	if a.Aromatic {
		sym = strings.ToLower(sym)
	}
	if !w.m.needsBracket(i) {
		return sym
	}
	var sb strings.Builder
	sb.WriteByte('[')
	if a.Isotope > 0 {
		sb.WriteString(strconv.Itoa(a.Isotope))
	}
	sb.WriteString(sym)
	if a.HCount > 0 {
		sb.WriteByte('H')
		if a.HCount > 1 {
			sb.WriteString(strconv.Itoa(a.HCount))
		}
	}
	switch {
	case a.Charge == 1:
		sb.WriteByte('+')
	case a.Charge == -1:
		sb.WriteByte('-')
	case a.Charge > 1:
		sb.WriteString("+" + strconv.Itoa(a.Charge))
	case a.Charge < -1:
		sb.WriteString("-" + strconv.Itoa(-a.Charge))
	}
	sb.WriteByte(']')
	return sb.String()
}

func (m *Molecule) needsBracket(i int) bool {
	a := m.Atoms[i]
	if a.Charge != 0 || a.Isotope != 0 {
		return true
	}
	if a.AtomicNum == 0 {
		return a.HCount != 0
	}
	if _, ok := organicValences[a.AtomicNum]; !ok {
		return true
	}
	if a.Aromatic && isHalogen(a.AtomicNum) {
		return true
	}
	return a.HCount != m.implicitHydrogens(i)
}
