// Package gene defines the gene record shared by annotation tables, clusters
// and the alias index, together with the biotype-priority merge used when two
// annotation rows collide on the same key.
package gene

import (
	"strings"
)

// BiotypeOther is assigned to records whose source row carries no biotype.
const BiotypeOther = "other"

// Record describes one gene of one species.
//
// Records are shared by pointer: an annotation table owns them and clusters
// reference them, so a merge applied to a table entry is visible from every
// cluster that lists it.
type Record struct {
	Symbol      string   `json:"symbol"`
	StableID    string   `json:"stableId,omitempty"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description"`
	Biotype     string   `json:"biotype"`
	// Synthesized marks placeholders built from a membership row whose stable
	// id is missing from the species annotation table.
	Synthesized bool `json:"synthesized,omitempty"`

	aliasSet map[string]struct{}
}

// New constructs an authoritative record. The symbol is always the first
// alias; remaining aliases are deduplicated case-insensitively.
func New(symbol, stableID string, aliases []string, description, biotype string) *Record {
	if biotype == "" {
		biotype = BiotypeOther
	}
	r := &Record{
		Symbol:      symbol,
		StableID:    stableID,
		Description: description,
		Biotype:     biotype,
		Aliases:     make([]string, 0, len(aliases)+1),
		aliasSet:    make(map[string]struct{}, len(aliases)+1),
	}
	r.AddAlias(symbol)
	for _, alias := range aliases {
		r.AddAlias(alias)
	}
	return r
}

// NewSynthesized builds a placeholder for a stable id that only appears in a
// cluster membership file. The display name doubles as symbol; when it is
// empty the stable id is used so the record stays searchable.
func NewSynthesized(stableID, displayName string) *Record {
	symbol := strings.TrimSpace(displayName)
	if symbol == "" {
		symbol = stableID
	}
	r := New(symbol, stableID, nil, "", BiotypeOther)
	r.Synthesized = true
	return r
}

// AddAlias appends alias unless an alias equal to it ignoring case is
// already present. Empty aliases are ignored. Returns true when added.
func (r *Record) AddAlias(alias string) bool {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return false
	}
	if r.aliasSet == nil {
		r.rebuildAliasSet()
	}
	key := strings.ToLower(alias)
	if _, ok := r.aliasSet[key]; ok {
		return false
	}
	r.aliasSet[key] = struct{}{}
	r.Aliases = append(r.Aliases, alias)
	return true
}

// HasAlias reports whether alias (compared case-insensitively) is known.
func (r *Record) HasAlias(alias string) bool {
	if r.aliasSet == nil {
		r.rebuildAliasSet()
	}
	_, ok := r.aliasSet[strings.ToLower(strings.TrimSpace(alias))]
	return ok
}

// FoldedAliases returns the lower-cased alias keys in alias order.
func (r *Record) FoldedAliases() []string {
	out := make([]string, 0, len(r.Aliases))
	for _, alias := range r.Aliases {
		out = append(out, strings.ToLower(alias))
	}
	return out
}

func (r *Record) rebuildAliasSet() {
	r.aliasSet = make(map[string]struct{}, len(r.Aliases))
	for _, alias := range r.Aliases {
		r.aliasSet[strings.ToLower(alias)] = struct{}{}
	}
}
