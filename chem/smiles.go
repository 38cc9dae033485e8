package chem

import (
	"fmt"
	"strings"
)

// SyntaxError describes a SMILES string that could not be parsed.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("smiles %q: %s at position %d", e.Input, e.Msg, e.Pos)
}

type ringOpening struct {
	atom  int
	order BondOrder
	pos   int
}

type smilesParser struct {
	src  string
	pos  int
	mol  *Molecule
	prev int
	// pending is the explicit bond symbol waiting for the next atom or ring digit.
	pending BondOrder
	branch  []int
	rings   map[int]ringOpening
	// organic marks atoms written without brackets; their hydrogens are implicit.
	organic []bool
}

// ParseSMILES parses a SMILES string into a hydrogen-suppressed graph.
// Stereo descriptors (@, @@, /, \) are accepted and discarded. Rings written
// in Kekulé form are perceived as aromatic when they satisfy the 4n+2 rule.
func ParseSMILES(s string) (*Molecule, error) {
	p := &smilesParser{
		src:   s,
		mol:   newMolecule(),
		prev:  -1,
		rings: make(map[int]ringOpening),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	for i, implicit := range p.organic {
		if implicit {
			p.mol.Atoms[i].HCount = p.mol.implicitHydrogens(i)
		}
	}
	perceiveAromaticity(p.mol)
	return p.mol, nil
}

func (p *smilesParser) fail(msg string, args ...any) error {
	return &SyntaxError{Input: p.src, Pos: p.pos, Msg: fmt.Sprintf(msg, args...)}
}

func (p *smilesParser) parse() error {
	if strings.TrimSpace(p.src) == "" {
		return p.fail("empty input")
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.fail("branch without preceding atom")
			}
			if p.pending != 0 {
				return p.fail("bond before branch")
			}
			p.branch = append(p.branch, p.prev)
			p.pos++
		case c == ')':
			if len(p.branch) == 0 {
				return p.fail("unbalanced ')'")
			}
			if p.pending != 0 {
				return p.fail("dangling bond before ')'")
			}
			p.prev = p.branch[len(p.branch)-1]
			p.branch = p.branch[:len(p.branch)-1]
			p.pos++
		case c == '.':
			if p.pending != 0 {
				return p.fail("bond before '.'")
			}
			if len(p.branch) > 0 {
				return p.fail("'.' inside branch")
			}
			p.prev = -1
			p.pos++
		case c == '-' || c == '=' || c == '#' || c == '$' || c == ':' || c == '/' || c == '\\':
			if p.pending != 0 {
				return p.fail("consecutive bond symbols")
			}
			if p.prev < 0 {
				return p.fail("bond without preceding atom")
			}
			p.pending = bondFromSymbol(c)
			p.pos++
		case c >= '0' && c <= '9' || c == '%':
			if err := p.ringClosure(); err != nil {
				return err
			}
		case c == '[':
			if err := p.bracketAtom(); err != nil {
				return err
			}
		default:
			if err := p.organicAtom(); err != nil {
				return err
			}
		}
	}
	if p.pending != 0 {
		return p.fail("dangling bond at end of input")
	}
	if len(p.branch) > 0 {
		return p.fail("unclosed branch")
	}
	if len(p.rings) > 0 {
		first := -1
		for num := range p.rings {
			if first < 0 || num < first {
				first = num
			}
		}
		p.pos = p.rings[first].pos
		return p.fail("unclosed ring bond %d", first)
	}
	if len(p.mol.Atoms) == 0 {
		return p.fail("no atoms")
	}
	return nil
}

func bondFromSymbol(c byte) BondOrder {
	switch c {
	case '=':
		return BondDouble
	case '#':
		return BondTriple
	case '$':
		return BondQuadruple
	case ':':
		return BondAromatic
	default:
		return BondSingle
	}
}

func (p *smilesParser) defaultOrder(a, b int) BondOrder {
	if p.mol.Atoms[a].Aromatic && p.mol.Atoms[b].Aromatic {
		return BondAromatic
	}
	return BondSingle
}

func (p *smilesParser) attach(atom Atom, organic bool) {
	idx := p.mol.addAtom(atom)
	p.organic = append(p.organic, organic)
	if p.prev >= 0 {
		order := p.pending
		if order == 0 {
			order = p.defaultOrder(p.prev, idx)
		}
		p.mol.addBond(p.prev, idx, order)
	}
	p.pending = 0
	p.prev = idx
}

func (p *smilesParser) organicAtom() error {
	rest := p.src[p.pos:]
	var sym string
	aromatic := false
	switch {
	case strings.HasPrefix(rest, "Cl"):
		sym = "Cl"
	case strings.HasPrefix(rest, "Br"):
		sym = "Br"
	default:
		switch rest[0] {
		case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
			sym = rest[:1]
		case 'b', 'c', 'n', 'o', 'p', 's':
			sym = strings.ToUpper(rest[:1])
			aromatic = true
		case '*':
			sym = "*"
		default:
			return p.fail("unexpected character %q", rest[0])
		}
	}
	num, _ := lookupElement(sym)
	p.attach(Atom{AtomicNum: num, Aromatic: aromatic}, num != 0)
	if sym == "Cl" || sym == "Br" {
		p.pos += 2
	} else {
		p.pos++
	}
	return nil
}

func (p *smilesParser) ringClosure() error {
	if p.prev < 0 {
		return p.fail("ring bond without preceding atom")
	}
	start := p.pos
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
		p.rings[num] = ringOpening{atom: p.prev, order: p.pending, pos: start}
		p.pending = 0
		return nil
	}
	delete(p.rings, num)
	if open.atom == p.prev {
		return p.fail("ring bond %d closes on itself", num)
	}
	if _, exists := p.mol.BondBetween(open.atom, p.prev); exists {
		return p.fail("ring bond %d duplicates an existing bond", num)
	}
	order := p.pending
	switch {
	case order == 0:
		order = open.order
	case open.order != 0 && open.order != order:
		return p.fail("conflicting ring bond orders for %d", num)
	}
	if order == 0 {
		order = p.defaultOrder(open.atom, p.prev)
	}
	p.mol.addBond(open.atom, p.prev, order)
	p.pending = 0
	return nil
}

func (p *smilesParser) bracketAtom() error {
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return p.fail("unclosed '['")
	}
	body := p.src[p.pos+1 : p.pos+end]
	atom, err := parseBracketBody(body)
	if err != nil {
		return p.fail("bracket atom [%s]: %v", body, err)
	}
	p.attach(atom, false)
	p.pos += end + 1
	return nil
}

func parseBracketBody(body string) (Atom, error) {
	var atom Atom
	atom.Bracket = true
	i := 0
	for i < len(body) && isDigit(body[i]) {
		atom.Isotope = atom.Isotope*10 + int(body[i]-'0')
		i++
	}
	if i >= len(body) {
		return atom, fmt.Errorf("missing element")
	}
	sym, aromatic, n := readBracketSymbol(body[i:])
	if n == 0 {
		return atom, fmt.Errorf("unknown element")
	}
	num, ok := lookupElement(sym)
	if !ok {
		return atom, fmt.Errorf("unknown element %q", sym)
	}
	if aromatic && !aromaticCapable[num] {
		return atom, fmt.Errorf("element %q cannot be aromatic", sym)
	}
	atom.AtomicNum = num
	atom.Aromatic = aromatic
	i += n

	// chirality
	if i < len(body) && body[i] == '@' {
		i++
		if i < len(body) && body[i] == '@' {
			i++
		} else {
			for _, class := range []string{"TH", "AL", "SP", "TB", "OH"} {
				if strings.HasPrefix(body[i:], class) && i+2 < len(body) && isDigit(body[i+2]) {
					i += 2
					for i < len(body) && isDigit(body[i]) {
						i++
					}
					break
				}
			}
		}
	}
	if i < len(body) && body[i] == 'H' {
		i++
		atom.HCount = 1
		if i < len(body) && isDigit(body[i]) {
			atom.HCount = int(body[i] - '0')
			i++
		}
	}
	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		ch := body[i]
		i++
		mag := 1
		switch {
		case i < len(body) && isDigit(body[i]):
			mag = 0
			for i < len(body) && isDigit(body[i]) {
				mag = mag*10 + int(body[i]-'0')
				i++
			}
		default:
			for i < len(body) && body[i] == ch {
				mag++
				i++
			}
		}
		atom.Charge = sign * mag
	}
	if i < len(body) && body[i] == ':' {
		i++
		if i >= len(body) || !isDigit(body[i]) {
			return atom, fmt.Errorf("malformed atom class")
		}
		for i < len(body) && isDigit(body[i]) {
			i++
		}
	}
	if i != len(body) {
		return atom, fmt.Errorf("unexpected %q", body[i:])
	}
	return atom, nil
}

// readBracketSymbol reads an element symbol inside brackets, preferring
// two-letter symbols.
func readBracketSymbol(s string) (string, bool, int) {
	if s[0] == '*' {
		return "*", false, 1
	}
	for _, arom := range []string{"se", "as", "te"} {
		if strings.HasPrefix(s, arom) {
			return strings.ToUpper(arom[:1]) + arom[1:], true, 2
		}
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		switch s[0] {
		case 'b', 'c', 'n', 'o', 'p', 's':
			return strings.ToUpper(s[:1]), true, 1
		}
		return "", false, 0
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return "", false, 0
	}
	if len(s) >= 2 && s[1] >= 'a' && s[1] <= 'z' {
		if _, ok := lookupElement(s[:2]); ok {
			return s[:2], false, 2
		}
	}
	return s[:1], false, 1
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
