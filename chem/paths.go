package chem

// PathFingerprint computes a folded linear-path fingerprint in the style of
// the RDKit topological fingerprint: every simple path of minLen..maxLen
// bonds is hashed from its atom and bond labels, read in the direction that
// gives the smaller hash, and sets bitsPerPath positions.
func PathFingerprint(m *Molecule, minLen, maxLen, size, bitsPerPath int) Bits {
	bits := make(Bits, size)
	if len(m.Bonds) == 0 || size <= 0 {
		return bits
	}
	if minLen < 1 {
		minLen = 1
	}
	seen := make(map[string]bool)
	onAtom := make([]bool, len(m.Atoms))
	atoms := make([]int, 0, maxLen+1)
	bonds := make([]int, 0, maxLen)

	var extend func(cur int)
	extend = func(cur int) {
		if len(bonds) >= minLen {
			set := newBondSet(len(m.Bonds))
			for _, b := range bonds {
				set.set(b)
			}
			if key := set.key(); !seen[key] {
				seen[key] = true
				h := m.pathHash(atoms, bonds)
				for k := 0; k < bitsPerPath; k++ {
					bits[h%uint64(size)] = 1
					h = hashInts(h, uint64(k))
				}
			}
		}
		if len(bonds) == maxLen {
			return
		}
		for _, nb := range m.adj[cur] {
			if onAtom[nb.Atom] {
				continue
			}
			onAtom[nb.Atom] = true
			atoms = append(atoms, nb.Atom)
			bonds = append(bonds, nb.Bond)
			extend(nb.Atom)
			atoms = atoms[:len(atoms)-1]
			bonds = bonds[:len(bonds)-1]
			onAtom[nb.Atom] = false
		}
	}
	for start := range m.Atoms {
		onAtom[start] = true
		atoms = append(atoms[:0], start)
		bonds = bonds[:0]
		extend(start)
		onAtom[start] = false
	}
	return bits
}

// pathHash hashes a path of atoms joined by bonds independently of the
// direction it was walked in.
func (m *Molecule) pathHash(atoms, bonds []int) uint64 {
	label := func(i int) uint64 {
		a := m.Atoms[i]
		return uint64(a.AtomicNum)<<1 | uint64(boolInt(a.Aromatic))
	}
	forward := make([]uint64, 0, 2*len(atoms))
	backward := make([]uint64, 0, 2*len(atoms))
	for k := range atoms {
		forward = append(forward, label(atoms[k]))
		if k < len(bonds) {
			forward = append(forward, uint64(m.Bonds[bonds[k]].Order))
		}
	}
	for k := len(forward) - 1; k >= 0; k-- {
		backward = append(backward, forward[k])
	}
	fh, bh := hashInts(forward...), hashInts(backward...)
	if bh < fh {
		return bh
	}
	return fh
}
