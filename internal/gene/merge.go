package gene

import (
	"strings"
)

// Priority orders biotypes from weakest to strongest. Biotypes that are not
// listed rank below every listed one. An empty Priority ranks all biotypes
// equally.
type Priority []string

// Rank returns the position of biotype in p, or -1 when absent.
func (p Priority) Rank(biotype string) int {
	for i, candidate := range p {
		if candidate == biotype {
			return i
		}
	}
	return -1
}

// Outranks reports whether a wins a merge against b.
//
// Authoritative records beat synthesized ones, then the biotype rank decides.
// Equal ranks fall back to a fixed ordering on stable id, then symbol, then
// biotype, so the winner does not depend on which row was read first.
func (p Priority) Outranks(a, b *Record) bool {
	if a.Synthesized != b.Synthesized {
		return !a.Synthesized
	}
	ra, rb := p.Rank(a.Biotype), p.Rank(b.Biotype)
	if ra != rb {
		return ra > rb
	}
	if (a.StableID == "") != (b.StableID == "") {
		return a.StableID != ""
	}
	if a.StableID != b.StableID {
		return a.StableID < b.StableID
	}
	if a.Symbol != b.Symbol {
		return a.Symbol < b.Symbol
	}
	if a.Biotype != b.Biotype {
		return a.Biotype < b.Biotype
	}
	return a.Description < b.Description
}

// Merge folds other into r in place.
//
// When other outranks r, r takes over other's symbol, biotype and flags and
// keeps its former symbol and aliases as additional aliases. Otherwise
// other's aliases are appended to r. In both cases the winner's aliases come
// first and descriptions are joined winner first, so A.Merge(B) and
// B.Merge(A) leave the same content behind.
func (r *Record) Merge(other *Record, priority Priority) {
	if other == nil || other == r {
		return
	}
	if priority.Outranks(other, r) {
		loserAliases := append([]string(nil), r.Aliases...)
		loserDescription := r.Description
		loserStableID := r.StableID

		r.Symbol = other.Symbol
		r.Biotype = other.Biotype
		r.Synthesized = other.Synthesized
		r.StableID = other.StableID
		if r.StableID == "" {
			r.StableID = loserStableID
		}
		r.Aliases = make([]string, 0, len(other.Aliases)+len(loserAliases))
		r.aliasSet = make(map[string]struct{}, len(other.Aliases)+len(loserAliases))
		for _, alias := range other.Aliases {
			r.AddAlias(alias)
		}
		for _, alias := range loserAliases {
			r.AddAlias(alias)
		}
		r.Description = joinDescriptions(other.Description, loserDescription)
		return
	}
	for _, alias := range other.Aliases {
		r.AddAlias(alias)
	}
	if r.StableID == "" {
		r.StableID = other.StableID
	}
	r.Description = joinDescriptions(r.Description, other.Description)
}

func joinDescriptions(winner, loser string) string {
	winner = strings.TrimSpace(winner)
	loser = strings.TrimSpace(loser)
	switch {
	case loser == "" || loser == winner:
		return winner
	case winner == "":
		return loser
	}
	for _, part := range strings.Split(winner, "; ") {
		if part == loser {
			return winner
		}
	}
	return winner + "; " + loser
}
