package annotation

import (
	"strings"

	"genecluster/internal/gene"
)

// Table maps lookup keys of one species to gene records. It is filled once
// by Parse and read-only afterwards.
type Table struct {
	records         map[string]*gene.Record
	caseInsensitive bool
}

func newTable(caseInsensitive bool) *Table {
	return &Table{records: make(map[string]*gene.Record), caseInsensitive: caseInsensitive}
}

// NewTable builds a table from prepared records keyed by stable id. Intended
// for tests and callers that obtain records from elsewhere.
func NewTable(records []*gene.Record, priority gene.Priority) *Table {
	t := newTable(false)
	for _, rec := range records {
		t.add(rec, []KeyKind{KeyStableID}, priority)
	}
	return t
}

func (t *Table) normalize(key string) string {
	if t.caseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

// insert stores target under key when the key is free. A different record
// already present under key absorbs rec through gene.Record.Merge and is
// returned so later keys of rec can point at the surviving record.
func (t *Table) insert(key string, rec, target *gene.Record, priority gene.Priority) (*gene.Record, bool) {
	key = t.normalize(key)
	existing, ok := t.records[key]
	if !ok {
		t.records[key] = target
		return target, false
	}
	if existing == target {
		return existing, false
	}
	existing.Merge(rec, priority)
	return existing, true
}

// add indexes rec under each non-empty key. Once rec has been absorbed by
// an existing record, its remaining keys only claim free slots for that
// record so rec is never merged twice.
func (t *Table) add(rec *gene.Record, keys []KeyKind, priority gene.Priority) (merged bool) {
	target := rec
	for _, kind := range keys {
		key := keyOf(rec, kind)
		if key == "" {
			continue
		}
		if merged {
			t.claim(key, target)
			continue
		}
		stored, didMerge := t.insert(key, rec, target, priority)
		if didMerge {
			merged = true
			target = stored
		}
	}
	return merged
}

func (t *Table) claim(key string, target *gene.Record) {
	key = t.normalize(key)
	if _, ok := t.records[key]; !ok {
		t.records[key] = target
	}
}

// Lookup returns the record stored under key.
func (t *Table) Lookup(key string) (*gene.Record, bool) {
	if t == nil {
		return nil, false
	}
	rec, ok := t.records[t.normalize(key)]
	return rec, ok
}

// Len returns the number of keys.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Records returns each distinct record once, in no particular order.
func (t *Table) Records() []*gene.Record {
	if t == nil {
		return nil
	}
	seen := make(map[*gene.Record]struct{}, len(t.records))
	out := make([]*gene.Record, 0, len(t.records))
	for _, rec := range t.records {
		if _, ok := seen[rec]; ok {
			continue
		}
		seen[rec] = struct{}{}
		out = append(out, rec)
	}
	return out
}
