// Package geo generalizes ZIP codes and FIPS county codes to their
// population-safe form: small-population geographies are suppressed so
// a coarse location can't single out an individual.
package geo

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
)

// PopulationTable maps a geographic key (3-digit ZIP prefix, or 5-char
// FIPS county code) to its population.
type PopulationTable map[string]int

// LoadCSV reads a two-column CSV (key,population) with an optional
// header row. It's used for both the ZIP-prefix table and the FIPS
// county table; the column layout is identical.
func LoadCSV(path string) (PopulationTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) (PopulationTable, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	table := make(PopulationTable)
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 2 {
			continue
		}
		key := strings.TrimSpace(record[0])
		popStr := strings.TrimSpace(record[1])
		pop, err := strconv.Atoi(popStr)
		if err != nil {
			if first {
				// Header row ("zip_prefix,population" or similar); skip it.
				first = false
				continue
			}
			continue
		}
		first = false
		table[key] = pop
	}
	return table, nil
}

// Population returns the population for key, and whether it was found.
func (t PopulationTable) Population(key string) (int, bool) {
	pop, ok := t[key]
	return pop, ok
}

// synthetic builds a deterministic, non-authoritative population table
// used only when no real table is configured, so the pipeline remains
// runnable without a production population feed. It is never used when
// PopulationTablePath/CountyTablePath is set.
func synthetic(keys []string, basePopulation int) PopulationTable {
	table := make(PopulationTable, len(keys))
	for i, k := range keys {
		// Deterministic spread above and below the threshold so tests
		// exercise both the suppressed and unsuppressed branches.
		table[k] = basePopulation + (i%5-2)*5000
	}
	return table
}
