package chem

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// matcher tests one atom or one bond of a molecule.
type matcher func(m *Molecule, idx int) bool

type patternEdge struct {
	atom int
	bond int
}

// Pattern is a compiled SMARTS query. It supports the subset used by the
// structural key and pharmacophore tables: element, aromaticity, ring, degree,
// valence, hydrogen and charge primitives, logical operators, ring closures
// and recursive $() environments.
type Pattern struct {
	src    string
	atoms  []matcher
	bonds  []matcher
	edges  [][]patternEdge
	order  []int
	parent []int
}

// CompileSMARTS parses a SMARTS query.
func CompileSMARTS(s string) (*Pattern, error) {
	p := &smartsParser{
		src:   s,
		pat:   &Pattern{src: s},
		prev:  -1,
		rings: make(map[int]smartsRing),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	p.pat.plan()
	return p.pat, nil
}

// MustCompileSMARTS is CompileSMARTS for package-level tables.
func MustCompileSMARTS(s string) *Pattern {
	p, err := CompileSMARTS(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string { return p.src }

// plan orders the query atoms depth-first so every atom after a component
// root is reached through an already-mapped neighbour.
func (p *Pattern) plan() {
	n := len(p.atoms)
	seen := make([]bool, n)
	p.parent = make([]int, n)
	for root := 0; root < n; root++ {
		if seen[root] {
			continue
		}
		p.parent[root] = -1
		stack := []int{root}
		seen[root] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			p.order = append(p.order, cur)
			for k := len(p.edges[cur]) - 1; k >= 0; k-- {
				nb := p.edges[cur][k].atom
				if !seen[nb] {
					seen[nb] = true
					p.parent[nb] = cur
					stack = append(stack, nb)
				}
			}
		}
	}
}

// Matches reports whether the query occurs in m.
func (p *Pattern) Matches(m *Molecule) bool {
	return p.CountMatches(m, 1) > 0
}

// CountMatches counts embeddings with distinct atom sets, stopping once limit
// is reached. A limit of zero or less counts all of them.
func (p *Pattern) CountMatches(m *Molecule, limit int) int {
	seen := make(map[string]struct{})
	p.search(m, -1, func(mapping []int) bool {
		key := atomSetKey(mapping)
		seen[key] = struct{}{}
		return limit > 0 && len(seen) >= limit
	})
	return len(seen)
}

// matchesAt reports whether the query matches with its first atom on atom.
func (p *Pattern) matchesAt(m *Molecule, atom int) bool {
	found := false
	p.search(m, atom, func([]int) bool {
		found = true
		return true
	})
	return found
}

func atomSetKey(mapping []int) string {
	atoms := append([]int(nil), mapping...)
	sort.Ints(atoms)
	var sb strings.Builder
	for _, a := range atoms {
		sb.WriteString(strconv.Itoa(a))
		sb.WriteByte(',')
	}
	return sb.String()
}

func (p *Pattern) search(m *Molecule, anchor int, visit func([]int) bool) {
	if len(p.atoms) == 0 || len(m.Atoms) < len(p.atoms) {
		return
	}
	mapping := make([]int, len(p.atoms))
	for i := range mapping {
		mapping[i] = -1
	}
	used := make([]bool, len(m.Atoms))
	var step func(k int) bool
	step = func(k int) bool {
		if k == len(p.order) {
			return visit(mapping)
		}
		qa := p.order[k]
		try := func(cand int) bool {
			if used[cand] || !p.atoms[qa](m, cand) {
				return false
			}
			for _, e := range p.edges[qa] {
				other := mapping[e.atom]
				if other < 0 {
					continue
				}
				b, ok := m.BondBetween(cand, other)
				if !ok || !p.bonds[e.bond](m, b) {
					return false
				}
			}
			mapping[qa] = cand
			used[cand] = true
			stop := step(k + 1)
			mapping[qa] = -1
			used[cand] = false
			return stop
		}
		switch {
		case k == 0 && anchor >= 0:
			return try(anchor)
		case p.parent[qa] >= 0:
			for _, nb := range m.adj[mapping[p.parent[qa]]] {
				if try(nb.Atom) {
					return true
				}
			}
		default:
			for cand := range m.Atoms {
				if try(cand) {
					return true
				}
			}
		}
		return false
	}
	step(0)
}

type smartsRing struct {
	atom int
	bond matcher
}

type smartsParser struct {
	src     string
	pos     int
	pat     *Pattern
	prev    int
	pending matcher
	branch  []int
	rings   map[int]smartsRing
}

func (p *smartsParser) fail(msg string, args ...any) error {
	return &SyntaxError{Input: p.src, Pos: p.pos, Msg: fmt.Sprintf(msg, args...)}
}

func (p *smartsParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *smartsParser) parse() error {
	if p.src == "" {
		return p.fail("empty pattern")
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.fail("branch without preceding atom")
			}
			p.branch = append(p.branch, p.prev)
			p.pos++
		case c == ')':
			if len(p.branch) == 0 {
				return p.fail("unbalanced ')'")
			}
			p.prev = p.branch[len(p.branch)-1]
			p.branch = p.branch[:len(p.branch)-1]
			p.pos++
		case c == '.':
			p.prev = -1
			p.pos++
		case isBondStart(c):
			if p.prev < 0 {
				return p.fail("bond without preceding atom")
			}
			bond, err := p.parseExpr(p.bondPrimitive, isBondStart)
			if err != nil {
				return err
			}
			p.pending = bond
		case isDigit(c) || c == '%':
			if err := p.ringClosure(); err != nil {
				return err
			}
		case c == '[':
			p.pos++
			atom, err := p.parseExpr(p.atomPrimitive, func(c byte) bool {
				return c != ',' && c != ';' && c != ']' && c != 0
			})
			if err != nil {
				return err
			}
			if p.peek() != ']' {
				return p.fail("unclosed '['")
			}
			p.pos++
			p.addAtom(atom)
		default:
			atom, err := p.bareAtom()
			if err != nil {
				return err
			}
			p.addAtom(atom)
		}
	}
	if len(p.branch) > 0 {
		return p.fail("unclosed branch")
	}
	if len(p.rings) > 0 {
		return p.fail("unclosed ring bond")
	}
	return nil
}

func isBondStart(c byte) bool {
	return c != 0 && strings.IndexByte("-=#:~@!/\\", c) >= 0
}

func (p *smartsParser) addAtom(atom matcher) {
	pat := p.pat
	pat.atoms = append(pat.atoms, atom)
	pat.edges = append(pat.edges, nil)
	idx := len(pat.atoms) - 1
	if p.prev >= 0 {
		p.addBond(p.prev, idx, p.pending)
	}
	p.pending = nil
	p.prev = idx
}

func (p *smartsParser) addBond(a, b int, bond matcher) {
	if bond == nil {
		bond = singleOrAromatic
	}
	pat := p.pat
	pat.bonds = append(pat.bonds, bond)
	idx := len(pat.bonds) - 1
	pat.edges[a] = append(pat.edges[a], patternEdge{atom: b, bond: idx})
	pat.edges[b] = append(pat.edges[b], patternEdge{atom: a, bond: idx})
}

func (p *smartsParser) ringClosure() error {
	if p.prev < 0 {
		return p.fail("ring bond without preceding atom")
	}
	var num int
	if p.src[p.pos] == '%' {
		if p.pos+2 >= len(p.src) || !isDigit(p.src[p.pos+1]) || !isDigit(p.src[p.pos+2]) {
			return p.fail("malformed ring number")
		}
		num = int(p.src[p.pos+1]-'0')*10 + int(p.src[p.pos+2]-'0')
		p.pos += 3
	} else {
		num = int(p.src[p.pos] - '0')
		p.pos++
	}
	open, ok := p.rings[num]
	if !ok {
		p.rings[num] = smartsRing{atom: p.prev, bond: p.pending}
		p.pending = nil
		return nil
	}
	delete(p.rings, num)
	bond := p.pending
	if bond == nil {
		bond = open.bond
	}
	p.addBond(open.atom, p.prev, bond)
	p.pending = nil
	return nil
}

// parseExpr parses a logical expression with SMARTS precedence:
// '!' binds tightest, then implicit or '&' conjunction, then ',', then ';'.
func (p *smartsParser) parseExpr(prim func() (matcher, error), startsPrim func(byte) bool) (matcher, error) {
	low, err := p.parseOr(prim, startsPrim)
	if err != nil {
		return nil, err
	}
	for p.peek() == ';' {
		p.pos++
		rhs, err := p.parseOr(prim, startsPrim)
		if err != nil {
			return nil, err
		}
		low = and(low, rhs)
	}
	return low, nil
}

func (p *smartsParser) parseOr(prim func() (matcher, error), startsPrim func(byte) bool) (matcher, error) {
	lhs, err := p.parseHighAnd(prim, startsPrim)
	if err != nil {
		return nil, err
	}
	for p.peek() == ',' {
		p.pos++
		rhs, err := p.parseHighAnd(prim, startsPrim)
		if err != nil {
			return nil, err
		}
		lhs = or(lhs, rhs)
	}
	return lhs, nil
}

func (p *smartsParser) parseHighAnd(prim func() (matcher, error), startsPrim func(byte) bool) (matcher, error) {
	lhs, err := p.parseNot(prim)
	if err != nil {
		return nil, err
	}
	for {
		c := p.peek()
		if c == '&' {
			p.pos++
		} else if c == ';' || c == ',' || !startsPrim(c) {
			return lhs, nil
		}
		rhs, err := p.parseNot(prim)
		if err != nil {
			return nil, err
		}
		lhs = and(lhs, rhs)
	}
}

func (p *smartsParser) parseNot(prim func() (matcher, error)) (matcher, error) {
	if p.peek() == '!' {
		p.pos++
		inner, err := p.parseNot(prim)
		if err != nil {
			return nil, err
		}
		return func(m *Molecule, i int) bool { return !inner(m, i) }, nil
	}
	return prim()
}

func and(a, b matcher) matcher {
	return func(m *Molecule, i int) bool { return a(m, i) && b(m, i) }
}

func or(a, b matcher) matcher {
	return func(m *Molecule, i int) bool { return a(m, i) || b(m, i) }
}

func singleOrAromatic(m *Molecule, b int) bool {
	o := m.Bonds[b].Order
	return o == BondSingle || o == BondAromatic
}

func (p *smartsParser) bondPrimitive() (matcher, error) {
	c := p.peek()
	p.pos++
	switch c {
	case '-', '/', '\\':
		return bondOrderIs(BondSingle), nil
	case '=':
		return bondOrderIs(BondDouble), nil
	case '#':
		return bondOrderIs(BondTriple), nil
	case ':':
		return bondOrderIs(BondAromatic), nil
	case '~':
		return func(*Molecule, int) bool { return true }, nil
	case '@':
		return func(m *Molecule, b int) bool { return m.IsRingBond(b) }, nil
	}
	p.pos--
	return nil, p.fail("unexpected bond primitive %q", c)
}

func bondOrderIs(o BondOrder) matcher {
	return func(m *Molecule, b int) bool { return m.Bonds[b].Order == o }
}

func (p *smartsParser) bareAtom() (matcher, error) {
	rest := p.src[p.pos:]
	for _, sym := range []string{"Cl", "Br"} {
		if strings.HasPrefix(rest, sym) {
			p.pos += 2
			num, _ := lookupElement(sym)
			return elementIs(num, false), nil
		}
	}
	c := rest[0]
	p.pos++
	switch c {
	case '*':
		return anyAtom, nil
	case 'A':
		return func(m *Molecule, i int) bool { return !m.Atoms[i].Aromatic }, nil
	case 'a':
		return func(m *Molecule, i int) bool { return m.Atoms[i].Aromatic }, nil
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		num, _ := lookupElement(string(c))
		return elementIs(num, false), nil
	case 'b', 'c', 'n', 'o', 'p', 's':
		num, _ := lookupElement(strings.ToUpper(string(c)))
		return elementIs(num, true), nil
	}
	p.pos--
	return nil, p.fail("unexpected character %q", c)
}

func anyAtom(*Molecule, int) bool { return true }

func elementIs(num int, aromatic bool) matcher {
	return func(m *Molecule, i int) bool {
		a := m.Atoms[i]
		return a.AtomicNum == num && a.Aromatic == aromatic
	}
}

func (p *smartsParser) number(def int) int {
	start := p.pos
	for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return def
	}
	n, _ := strconv.Atoi(p.src[start:p.pos])
	return n
}

// twoLetterElement returns the atomic number of a two-letter element symbol
// at the current position, if any.
func (p *smartsParser) twoLetterElement() (int, bool) {
	if p.pos+1 >= len(p.src) {
		return 0, false
	}
	c := p.src[p.pos+1]
	if c < 'a' || c > 'z' {
		return 0, false
	}
	return lookupElement(p.src[p.pos : p.pos+2])
}

func (p *smartsParser) atomPrimitive() (matcher, error) {
	c := p.peek()
	switch {
	case c == '*':
		p.pos++
		return anyAtom, nil
	case c == '#':
		p.pos++
		num := p.number(-1)
		if num < 0 {
			return nil, p.fail("missing atomic number")
		}
		return func(m *Molecule, i int) bool { return m.Atoms[i].AtomicNum == num }, nil
	case c == '$':
		return p.recursive()
	case c == '+' || c == '-':
		return p.charge()
	case c == 'v':
		p.pos++
		n := p.number(1)
		return func(m *Molecule, i int) bool { return m.TotalValence(i) == n }, nil
	case c == 'a' && !p.isAromaticTwoLetter():
		p.pos++
		return func(m *Molecule, i int) bool { return m.Atoms[i].Aromatic }, nil
	case c >= 'a' && c <= 'z':
		return p.aromaticSymbol()
	}
	if num, ok := p.twoLetterElement(); ok {
		p.pos += 2
		return elementIs(num, false), nil
	}
	p.pos++
	switch c {
	case 'H':
		n := p.number(1)
		return func(m *Molecule, i int) bool { return m.Atoms[i].HCount == n }, nil
	case 'D':
		n := p.number(1)
		return func(m *Molecule, i int) bool { return m.Degree(i) == n }, nil
	case 'X':
		n := p.number(1)
		return func(m *Molecule, i int) bool { return m.Degree(i)+m.Atoms[i].HCount == n }, nil
	case 'R':
		n := p.number(-1)
		if n < 0 {
			return func(m *Molecule, i int) bool { return m.IsRingAtom(i) }, nil
		}
		return func(m *Molecule, i int) bool { return m.RingCount(i) == n }, nil
	case 'A':
		return func(m *Molecule, i int) bool { return !m.Atoms[i].Aromatic }, nil
	}
	if num, ok := lookupElement(string(c)); ok && c >= 'A' && c <= 'Z' {
		return elementIs(num, false), nil
	}
	p.pos--
	return nil, p.fail("unsupported atom primitive %q", c)
}

func (p *smartsParser) isAromaticTwoLetter() bool {
	return strings.HasPrefix(p.src[p.pos:], "as")
}

func (p *smartsParser) aromaticSymbol() (matcher, error) {
	rest := p.src[p.pos:]
	for _, sym := range []string{"se", "as", "te"} {
		if strings.HasPrefix(rest, sym) {
			p.pos += 2
			num, _ := lookupElement(strings.ToUpper(sym[:1]) + sym[1:])
			return elementIs(num, true), nil
		}
	}
	switch rest[0] {
	case 'b', 'c', 'n', 'o', 'p', 's':
		p.pos++
		num, _ := lookupElement(strings.ToUpper(rest[:1]))
		return elementIs(num, true), nil
	case 'r':
		p.pos++
		size := p.number(-1)
		return func(m *Molecule, i int) bool {
			for _, s := range m.RingSizes(i) {
				if size < 0 || s == size {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, p.fail("unsupported atom primitive %q", rest[0])
}

func (p *smartsParser) charge() (matcher, error) {
	sign := 1
	if p.src[p.pos] == '-' {
		sign = -1
	}
	ch := p.src[p.pos]
	p.pos++
	mag := 1
	if isDigit(p.peek()) {
		mag = p.number(1)
	} else {
		for p.peek() == ch {
			mag++
			p.pos++
		}
	}
	want := sign * mag
	return func(m *Molecule, i int) bool { return m.Atoms[i].Charge == want }, nil
}

// recursive compiles $(...) into a predicate that is true for atoms the
// sub-pattern's first atom can be mapped onto.
func (p *smartsParser) recursive() (matcher, error) {
	if !strings.HasPrefix(p.src[p.pos:], "$(") {
		return nil, p.fail("malformed recursive expression")
	}
	start := p.pos + 2
	depth := 1
	end := start
	for ; end < len(p.src) && depth > 0; end++ {
		switch p.src[end] {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	if depth != 0 {
		return nil, p.fail("unclosed recursive expression")
	}
	sub, err := CompileSMARTS(p.src[start : end-1])
	if err != nil {
		return nil, err
	}
	p.pos = end
	return func(m *Molecule, i int) bool { return sub.matchesAt(m, i) }, nil
}
