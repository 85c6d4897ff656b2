package model

// CompanySet holds company identities. Membership follows CompanyKey.Same,
// so a company stored by domain is found again once it gains an id.
type CompanySet struct {
	byAlias map[string][]CompanyKey
	n       int
}

// NewCompanySet returns an empty set.
func NewCompanySet() *CompanySet {
	return &CompanySet{byAlias: make(map[string][]CompanyKey)}
}

// Add inserts k and reports whether it was new. Zero keys are never added.
func (s *CompanySet) Add(k CompanyKey) bool {
	if k.IsZero() || s.Has(k) {
		return false
	}
	for _, a := range k.Aliases() {
		s.byAlias[a] = append(s.byAlias[a], k)
	}
	s.n++
	return true
}

// Has reports whether a key identifying the same company was added.
func (s *CompanySet) Has(k CompanyKey) bool {
	if s == nil {
		return false
	}
	for _, a := range k.Aliases() {
		for _, o := range s.byAlias[a] {
			if k.Same(o) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of companies in the set.
func (s *CompanySet) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}
