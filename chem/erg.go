package chem

import "sync"

// ErG property types.
const (
	ergDonor = iota
	ergAcceptor
	ergPositive
	ergNegative
	ergHydrophobic
	ergAromatic
	ergTypes
)

const (
	ergPairs   = ergTypes * (ergTypes + 1) / 2
	ergMinPath = 1
	ergMaxPath = 15
	// ErGLength is the number of ErG descriptor bins.
	ErGLength = ergPairs * (ergMaxPath - ergMinPath + 1)
)

var ergFeatureSMARTS = [ergHydrophobic + 1][]string{
	ergDonor: {
		"[N;!H0;v3,v4&+1]",
		"[O,S;H1;+0]",
		"[n;H1;+0]",
	},
	ergAcceptor: {
		"[O,S;H1;v2;!$(*-*=[O,N,P,S])]",
		"[O;H0;v2]",
		"[O,S;v1;-]",
		"[o;+0]",
		"[n;H0;+0]",
		"[N;H0;$(N#C)]",
	},
	ergPositive: {
		"[+,+2,+3;!$(*~[-])]",
		"[$([N;H2;+0][C;!$(C=*)]),$([N;H1;+0]([C;!$(C=*)])[C;!$(C=*)]),$([N;H0;+0]([C;!$(C=*)])([C;!$(C=*)])[C;!$(C=*)])]",
		"[$(C(N)(N)=N)]",
	},
	ergNegative: {
		"[-;!$(*~[+])]",
		"[$([OH]-[C,S,P]=O)]",
	},
	ergHydrophobic: {
		"[C;D3,D4](-[CH3])-[CH3]",
		"[S;D2](-C)-C",
	},
}

var (
	ergOnce     sync.Once
	ergPatterns [ergHydrophobic + 1][]*Pattern
)

func compiledErG() *[ergHydrophobic + 1][]*Pattern {
	ergOnce.Do(func() {
		for t, list := range ergFeatureSMARTS {
			for _, s := range list {
				ergPatterns[t] = append(ergPatterns[t], MustCompileSMARTS(s))
			}
		}
	})
	return &ergPatterns
}

// atomFeatures flags each atom with the property types whose patterns match
// with the atom in first position.
func atomFeatures(m *Molecule) [][ergTypes]bool {
	flags := make([][ergTypes]bool, len(m.Atoms))
	for t, list := range compiledErG() {
		for _, pat := range list {
			for i := range m.Atoms {
				if !flags[i][t] && pat.matchesAt(m, i) {
					flags[i][t] = true
				}
			}
		}
	}
	return flags
}

// ErGFingerprint computes the extended reduced graph descriptor. Rings
// collapse into single nodes (aromatic or hydrophobic) that inherit the
// properties of their atoms; every pair of typed nodes increments the bin for
// its topological distance and adds fuzz to the neighbouring bins.
func ErGFingerprint(m *Molecule, fuzz float32) []float32 {
	out := make([]float32, ErGLength)
	if len(m.Atoms) == 0 {
		return out
	}
	flags := atomFeatures(m)
	rings := m.Rings()

	var types [][ergTypes]bool
	nodesOf := make([][]int, len(m.Atoms))
	for _, ring := range rings {
		node := len(types)
		var t [ergTypes]bool
		if ringIsAromatic(m, ring) {
			t[ergAromatic] = true
		} else {
			t[ergHydrophobic] = true
		}
		for _, a := range ring {
			nodesOf[a] = append(nodesOf[a], node)
			for k := ergDonor; k <= ergNegative; k++ {
				t[k] = t[k] || flags[a][k]
			}
		}
		types = append(types, t)
	}
	for i := range m.Atoms {
		if len(nodesOf[i]) > 0 {
			continue
		}
		nodesOf[i] = []int{len(types)}
		types = append(types, flags[i])
	}

	adj := make([]map[int]bool, len(types))
	for i := range adj {
		adj[i] = make(map[int]bool)
	}
	for _, bond := range m.Bonds {
		for _, u := range nodesOf[bond.A] {
			for _, v := range nodesOf[bond.B] {
				if u != v {
					adj[u][v] = true
					adj[v][u] = true
				}
			}
		}
	}

	for u := range types {
		dist := reducedDistances(adj, u)
		for v := u + 1; v < len(types); v++ {
			d := dist[v]
			if d < ergMinPath || d > ergMaxPath {
				continue
			}
			for ti, okI := range types[u] {
				if !okI {
					continue
				}
				for tj, okJ := range types[v] {
					if !okJ {
						continue
					}
					base := ergPairIndex(ti, tj) * (ergMaxPath - ergMinPath + 1)
					bin := d - ergMinPath
					out[base+bin]++
					if bin > 0 {
						out[base+bin-1] += fuzz
					}
					if bin < ergMaxPath-ergMinPath {
						out[base+bin+1] += fuzz
					}
				}
			}
		}
	}
	return out
}

func reducedDistances(adj []map[int]bool, start int) []int {
	dist := make([]int, len(adj))
	for i := range dist {
		dist[i] = -1
	}
	dist[start] = 0
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for nb := range adj[cur] {
			if dist[nb] < 0 {
				dist[nb] = dist[cur] + 1
				queue = append(queue, nb)
			}
		}
	}
	return dist
}

// ergPairIndex numbers unordered type pairs row by row of the upper triangle.
func ergPairIndex(a, b int) int {
	if a > b {
		a, b = b, a
	}
	return a*ergTypes - a*(a-1)/2 + (b - a)
}
