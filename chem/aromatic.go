package chem

// perceiveAromaticity marks Kekulé rings of five to seven atoms aromatic when
// their pi-electron count satisfies 4n+2. Fused systems are resolved by
// repeating the scan until no ring changes.
func perceiveAromaticity(m *Molecule) {
	rings := m.Rings()
	if len(rings) == 0 {
		return
	}
	done := make([]bool, len(rings))
	for changed := true; changed; {
		changed = false
		for ri, ring := range rings {
			if done[ri] || len(ring) < 5 || len(ring) > 7 {
				continue
			}
			if ringAlreadyAromatic(m, ring) {
				done[ri] = true
				continue
			}
			electrons, ok := ringPiElectrons(m, ring)
			if !ok || electrons%4 != 2 {
				continue
			}
			markAromatic(m, ring)
			done[ri] = true
			changed = true
		}
	}
}

func ringAlreadyAromatic(m *Molecule, ring []int) bool {
	for k, a := range ring {
		if !m.Atoms[a].Aromatic {
			return false
		}
		b, _ := m.BondBetween(a, ring[(k+1)%len(ring)])
		if m.Bonds[b].Order != BondAromatic {
			return false
		}
	}
	return true
}

// ringPiElectrons counts the electrons each ring atom donates to the ring's
// pi system. ok is false when an atom cannot take part (sp3 carbon, exocyclic
// C=C, unsupported element).
func ringPiElectrons(m *Molecule, ring []int) (int, bool) {
	inRing := make(map[int]bool, len(ring))
	for _, a := range ring {
		inRing[a] = true
	}
	total := 0
	for _, a := range ring {
		atom := m.Atoms[a]
		switch atom.AtomicNum {
		case numC, numN, numO, numS, numP, numB, numSe:
		default:
			return 0, false
		}
		if atom.Aromatic {
			total++
			continue
		}
		contributes, ok := atomPiContribution(m, a, inRing)
		if !ok {
			return 0, false
		}
		total += contributes
	}
	return total, true
}

func atomPiContribution(m *Molecule, a int, inRing map[int]bool) (int, bool) {
	atom := m.Atoms[a]
	for _, nb := range m.adj[a] {
		bond := m.Bonds[nb.Bond]
		if bond.Order == BondTriple {
			return 0, false
		}
		if bond.Order != BondDouble {
			continue
		}
		if inRing[nb.Atom] || m.IsRingBond(nb.Bond) || m.Atoms[nb.Atom].Aromatic {
			return 1, true
		}
		// exocyclic double bond to an electronegative atom empties the p orbital
		switch m.Atoms[nb.Atom].AtomicNum {
		case numO, numN, numS:
			if atom.AtomicNum == numC || atom.AtomicNum == numS || atom.AtomicNum == numP {
				return 0, true
			}
		}
		return 0, false
	}
	switch atom.AtomicNum {
	case numN, numP:
		if atom.Charge == 0 && len(m.adj[a])+atom.HCount == 3 {
			return 2, true
		}
	case numO, numS, numSe:
		if atom.Charge == 0 && len(m.adj[a]) == 2 {
			return 2, true
		}
	case numC:
		if atom.Charge == -1 {
			return 2, true
		}
		if atom.Charge == 1 {
			return 0, true
		}
	case numB:
		if atom.Charge == 0 && len(m.adj[a])+atom.HCount == 3 {
			return 0, true
		}
	}
	return 0, false
}

func markAromatic(m *Molecule, ring []int) {
	for k, a := range ring {
		m.Atoms[a].Aromatic = true
		next := ring[(k+1)%len(ring)]
		b, _ := m.BondBetween(a, next)
		m.Bonds[b].Order = BondAromatic
	}
}
