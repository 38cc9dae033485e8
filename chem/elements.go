package chem

// elementSymbols is indexed by atomic number; index 0 is the SMILES wildcard.
var elementSymbols = [...]string{
	"*",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd",
	"In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba", "La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy",
	"Ho", "Er", "Tm", "Yb", "Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt",
	"Au", "Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra", "Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf",
	"Es", "Fm", "Md", "No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds",
	"Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var atomicNumbers = func() map[string]int {
	m := make(map[string]int, len(elementSymbols))
	for i, sym := range elementSymbols {
		m[sym] = i
	}
	return m
}()

// Atomic numbers used throughout the package.
const (
	numH  = 1
	numB  = 5
	numC  = 6
	numN  = 7
	numO  = 8
	numF  = 9
	numSi = 14
	numP  = 15
	numS  = 16
	numCl = 17
	numSe = 34
	numBr = 35
	numI  = 53
)

// organicValences lists the normal valences of the SMILES organic subset.
var organicValences = map[int][]int{
	numB:  {3},
	numC:  {4},
	numN:  {3, 5},
	numO:  {2},
	numP:  {3, 5},
	numS:  {2, 4, 6},
	numF:  {1},
	numCl: {1},
	numBr: {1},
	numI:  {1},
}

// aromaticCapable lists elements allowed as lowercase aromatic symbols.
var aromaticCapable = map[int]bool{
	numB: true, numC: true, numN: true, numO: true, numP: true, numS: true,
	numSe: true, 33: true, 52: true,
}

// Symbol returns the element symbol for an atomic number.
func Symbol(atomicNum int) string {
	if atomicNum < 0 || atomicNum >= len(elementSymbols) {
		return "*"
	}
	return elementSymbols[atomicNum]
}

func lookupElement(symbol string) (int, bool) {
	n, ok := atomicNumbers[symbol]
	return n, ok
}

func isHalogen(atomicNum int) bool {
	switch atomicNum {
	case numF, numCl, numBr, numI, 85:
		return true
	}
	return false
}

// maxValence is the largest valence accepted for a neutral or simply charged
// organic-subset atom. ok is false when the atom is not checked.
func maxValence(atomicNum, charge int) (int, bool) {
	switch charge {
	case 0:
		switch atomicNum {
		case numB:
			return 3, true
		case numC:
			return 4, true
		case numN:
			return 3, true
		case numO:
			return 2, true
		case numF, numCl, numBr, numI:
			return 1, true
		case numP:
			return 5, true
		case numS:
			return 6, true
		}
	case 1:
		switch atomicNum {
		case numC:
			return 3, true
		case numN, numP:
			return 4, true
		case numO, numS:
			return 3, true
		}
	case -1:
		switch atomicNum {
		case numC:
			return 3, true
		case numN:
			return 2, true
		case numO, numF, numCl, numBr, numI:
			return 1, true
		case numS:
			return 1, true
		}
	}
	return 0, false
}
