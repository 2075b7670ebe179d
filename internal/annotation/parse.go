package annotation

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"genecluster/internal/gene"
)

// NCBI gene_info column positions.
const (
	colTaxID       = 0
	colGeneID      = 1
	colSymbol      = 2
	colLocusTag    = 3
	colSynonyms    = 4
	colDBXrefs     = 5
	colChromosome  = 6
	colMapLocation = 7
	colDescription = 8
	colTypeOfGene  = 9
)

const (
	emptyField   = "-"
	maxLineBytes = 4 << 20
)

// KeyKind selects which record field a Table is keyed by.
type KeyKind string

const (
	KeyStableID KeyKind = "stableId"
	KeySymbol   KeyKind = "symbol"
)

// ParseOptions control decoding and indexing of one annotation file.
type ParseOptions struct {
	Keys            []KeyKind
	CaseInsensitive bool
	Priority        gene.Priority
	// XrefPrefix is the dbXrefs database whose value becomes the stable id.
	XrefPrefix string
}

// ParseStats summarises one parse.
type ParseStats struct {
	Lines   int `json:"lines"`
	Records int `json:"records"`
	Skipped int `json:"skipped"`
	Merged  int `json:"merged"`
}

// Parse decodes a gzip-compressed gene_info stream into a Table.
// Malformed lines are skipped and counted; only read and decompression
// errors are returned.
func Parse(r io.Reader, opts ParseOptions) (*Table, ParseStats, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()
	return ParsePlain(zr, opts)
}

// ParsePlain decodes an uncompressed gene_info stream.
func ParsePlain(r io.Reader, opts ParseOptions) (*Table, ParseStats, error) {
	keys := opts.Keys
	if len(keys) == 0 {
		keys = []KeyKind{KeyStableID}
	}
	prefix := opts.XrefPrefix
	if prefix == "" {
		prefix = DefaultXrefPrefix
	}
	table := newTable(opts.CaseInsensitive)
	var stats ParseStats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Lines++
		rec, ok := parseLine(line, prefix)
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Records++
		if table.add(rec, keys, opts.Priority) {
			stats.Merged++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, stats, fmt.Errorf("read gene_info: %w", err)
	}
	return table, stats, nil
}

func parseLine(line, xrefPrefix string) (*gene.Record, bool) {
	tokens := strings.Split(line, "\t")
	if len(tokens) <= colDescription {
		return nil, false
	}
	symbol := strings.TrimSpace(tokens[colSymbol])
	if symbol == "" || symbol == emptyField {
		return nil, false
	}
	var aliases []string
	if syn := tokens[colSynonyms]; syn != emptyField && syn != "" {
		aliases = strings.Split(syn, "|")
	}
	description := tokens[colDescription]
	if description == emptyField {
		description = ""
	}
	biotype := ""
	if len(tokens) > colTypeOfGene && tokens[colTypeOfGene] != emptyField {
		biotype = strings.TrimSpace(tokens[colTypeOfGene])
	}
	return gene.New(symbol, stableIDFromXrefs(tokens[colDBXrefs], xrefPrefix), aliases, description, biotype), true
}

// stableIDFromXrefs picks the value of the first "<prefix>:<value>" entry in a
// pipe-separated dbXrefs field.
func stableIDFromXrefs(field, prefix string) string {
	if field == emptyField {
		return ""
	}
	for _, entry := range strings.Split(field, "|") {
		key, value, ok := strings.Cut(entry, ":")
		if ok && key == prefix && value != "" {
			return value
		}
	}
	return ""
}

func keyOf(rec *gene.Record, kind KeyKind) string {
	switch kind {
	case KeyStableID:
		return rec.StableID
	case KeySymbol:
		return rec.Symbol
	default:
		return ""
	}
}
