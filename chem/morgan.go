package chem

import (
	"cmp"
	"encoding/binary"
	"slices"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Bits is a dense bit fingerprint with one byte (0 or 1) per position.
type Bits []uint8

// OnCount returns the number of set bits.
func (b Bits) OnCount() int {
	n := 0
	for _, v := range b {
		if v != 0 {
			n++
		}
	}
	return n
}

// hashInts hashes a sequence of integers with xxhash.
func hashInts(vals ...uint64) uint64 {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], v)
	}
	return xxhash.Sum64(buf)
}

func signed(v int) uint64 { return uint64(int64(v)) }

// morganInvariant is the ECFP atom invariant: element, heavy and total
// connectivity, hydrogens, charge, isotope and ring membership.
func (m *Molecule) morganInvariant(i int) uint64 {
	a := m.Atoms[i]
	return hashInts(
		signed(a.AtomicNum),
		signed(len(m.adj[i])),
		signed(len(m.adj[i])+a.HCount),
		signed(a.HCount),
		signed(a.Charge),
		signed(a.Isotope),
		uint64(boolInt(m.IsRingAtom(i))),
	)
}

type morganEnv struct {
	key  string
	id   uint64
	atom int
}

// MorganFingerprint computes a folded circular (ECFP-style) fingerprint.
// Each radius refines atom identifiers with their neighbours' identifiers and
// bond orders; environments that cover the same bonds as one seen before are
// not folded in twice.
func MorganFingerprint(m *Molecule, radius, size int) Bits {
	bits := make(Bits, size)
	n := len(m.Atoms)
	if n == 0 || size <= 0 {
		return bits
	}
	ids := make([]uint64, n)
	cover := make([]bondSet, n)
	for i := range ids {
		ids[i] = m.morganInvariant(i)
		cover[i] = newBondSet(len(m.Bonds) + 1)
		bits[ids[i]%uint64(size)] = 1
	}
	seen := make(map[string]bool)
	for r := 1; r <= radius; r++ {
		next := make([]uint64, n)
		nextCover := make([]bondSet, n)
		envs := make([]morganEnv, 0, n)
		for i := 0; i < n; i++ {
			pairs := make([]uint64, 0, 2+2*len(m.adj[i]))
			type nbHash struct{ order, id uint64 }
			nbs := make([]nbHash, 0, len(m.adj[i]))
			c := cover[i].clone()
			for _, nb := range m.adj[i] {
				nbs = append(nbs, nbHash{uint64(m.Bonds[nb.Bond].Order), ids[nb.Atom]})
				c.set(nb.Bond)
				for w := range c {
					c[w] |= cover[nb.Atom][w]
				}
			}
			sort.Slice(nbs, func(x, y int) bool {
				if nbs[x].order != nbs[y].order {
					return nbs[x].order < nbs[y].order
				}
				return nbs[x].id < nbs[y].id
			})
			pairs = append(pairs, uint64(r), ids[i])
			for _, p := range nbs {
				pairs = append(pairs, p.order, p.id)
			}
			next[i] = hashInts(pairs...)
			nextCover[i] = c
			envs = append(envs, morganEnv{key: c.key(), id: next[i], atom: i})
		}
		slices.SortFunc(envs, func(a, b morganEnv) int {
			if c := strings.Compare(a.key, b.key); c != 0 {
				return c
			}
			if c := cmp.Compare(a.id, b.id); c != 0 {
				return c
			}
			return cmp.Compare(a.atom, b.atom)
		})
		for _, env := range envs {
			if seen[env.key] {
				continue
			}
			seen[env.key] = true
			if len(m.adj[env.atom]) == 0 {
				continue
			}
			bits[env.id%uint64(size)] = 1
		}
		ids, cover = next, nextCover
	}
	return bits
}
