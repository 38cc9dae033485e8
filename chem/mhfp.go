package chem

import (
	"crypto/sha1"
	"encoding/binary"
	"sort"
)

const mhfpMaxHash = 0xFFFFFFFF

// MHFPEncoder computes MinHash fingerprints over circular substructure
// shingles. The permutation table is derived only from the seed.
type MHFPEncoder struct {
	a, b []uint32
}

// NewMHFPEncoder draws n unique (a, b) permutation pairs from a Mersenne
// Twister seeded with seed.
func NewMHFPEncoder(n int, seed uint32) *MHFPEncoder {
	rng := newMT19937(seed)
	e := &MHFPEncoder{a: make([]uint32, n), b: make([]uint32, n)}
	// unfilled slots hold zero, so zero is never accepted
	usedA := map[uint32]bool{0: true}
	usedB := map[uint32]bool{0: true}
	for i := 0; i < n; i++ {
		a := rng.boundedUint32(1, mhfpMaxHash)
		b := rng.boundedUint32(0, mhfpMaxHash)
		for usedA[a] {
			a = rng.boundedUint32(1, mhfpMaxHash)
		}
		for usedB[b] {
			b = rng.boundedUint32(0, mhfpMaxHash)
		}
		usedA[a], usedB[b] = true, true
		e.a[i], e.b[i] = a, b
	}
	return e
}

// Permutations returns the number of hash values Encode produces.
func (e *MHFPEncoder) Permutations() int { return len(e.a) }

// Encode returns the MinHash of the molecule's shingles with circular
// environments up to radius bonds.
func (e *MHFPEncoder) Encode(m *Molecule, radius int, rings bool) []uint32 {
	return e.FromShingles(Shingles(m, radius, rings))
}

// FromShingles hashes each shingle with SHA-1 and keeps, per permutation, the
// minimum of a*h + b. The arithmetic wraps at 32 bits.
func (e *MHFPEncoder) FromShingles(shingles []string) []uint32 {
	out := make([]uint32, len(e.a))
	for i := range out {
		out[i] = mhfpMaxHash
	}
	for _, s := range shingles {
		sum := sha1.Sum([]byte(s))
		h := binary.LittleEndian.Uint32(sum[:4])
		for i := range out {
			v := e.a[i]*h + e.b[i]
			if v < out[i] {
				out[i] = v
			}
		}
	}
	return out
}

// Shingles lists the distinct substructure strings MHFP hashes: one per SSSR
// ring when rings is set, and one rooted SMILES per atom and radius 1..radius.
func Shingles(m *Molecule, radius int, rings bool) []string {
	set := make(map[string]struct{})
	if rings {
		for _, ring := range m.Rings() {
			var bonds []int
			for x := 0; x < len(ring); x++ {
				for y := x + 1; y < len(ring); y++ {
					if b, ok := m.BondBetween(ring[x], ring[y]); ok {
						bonds = append(bonds, b)
					}
				}
			}
			sub, _ := m.SubgraphFromBonds(bonds)
			set[writeSMILES(sub, -1, true)] = struct{}{}
		}
	}
	for center := range m.Atoms {
		for r := 1; r <= radius; r++ {
			env := m.environment(center, r)
			if len(env) == 0 {
				continue
			}
			sub, parent := m.SubgraphFromBonds(env)
			root := -1
			for k, p := range parent {
				if p == center {
					root = k
					break
				}
			}
			if root < 0 {
				continue
			}
			if s := writeSMILES(sub, root, true); s != "" {
				set[s] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// environment returns the bonds within radius of center, or nil when the
// molecule is too small for an environment of exactly that radius.
func (m *Molecule) environment(center, radius int) []int {
	inEnv := make(map[int]bool)
	visited := map[int]bool{center: true}
	frontier := []int{center}
	var bonds []int
	for layer := 0; layer < radius; layer++ {
		var next []int
		added := 0
		for _, a := range frontier {
			for _, nb := range m.adj[a] {
				if inEnv[nb.Bond] {
					continue
				}
				inEnv[nb.Bond] = true
				bonds = append(bonds, nb.Bond)
				added++
				if !visited[nb.Atom] {
					visited[nb.Atom] = true
					next = append(next, nb.Atom)
				}
			}
		}
		if added == 0 {
			return nil
		}
		frontier = next
	}
	return bonds
}
